package auth

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type subjectKey struct{}

// SubjectFromContext returns the authenticated account id placed by
// Middleware.
func SubjectFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(subjectKey{}).(int64)
	return id, ok
}

// Middleware validates a bearer access token and stores the subject account
// id in the request context.
func Middleware(jwtSecret string, next http.Handler) http.Handler {
	secret := []byte(jwtSecret)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			writeError(w, http.StatusUnauthorized, "invalid authorization format")
			return
		}

		accountID, ok := parseSubject(strings.TrimSpace(parts[1]), secret)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), subjectKey{}, accountID)))
	})
}

// SubjectFromRequest extracts the account id from an optional bearer token.
// Used by public endpoints that reveal more to the resource owner.
func SubjectFromRequest(jwtSecret string, r *http.Request) (int64, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return 0, false
	}

	return parseSubject(strings.TrimSpace(parts[1]), []byte(jwtSecret))
}

func parseSubject(tokenStr string, secret []byte) (int64, bool) {
	if tokenStr == "" {
		return 0, false
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return 0, false
	}
	if tokenType, _ := claims["typ"].(string); tokenType != "access" {
		return 0, false
	}

	subject, _ := claims["sub"].(string)
	accountID, err := strconv.ParseInt(subject, 10, 64)
	if err != nil {
		return 0, false
	}

	return accountID, true
}
