package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"social-auth/internal/observability"
)

var (
	usernameRegex = regexp.MustCompile(`^[a-z0-9_.-]{3,20}$`)
	phoneRegex    = regexp.MustCompile(`^\+\d{5,29}$`)
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service *Service
	logger  *observability.Logger

	// retryAfter is advisory: attempts decay via the retention sweep, so
	// the exact unlock time is not knowable from the count alone.
	retryAfter time.Duration
}

func NewHandler(service *Service, logger *observability.Logger, retryAfter time.Duration) *Handler {
	if retryAfter <= 0 {
		retryAfter = time.Hour
	}

	return &Handler{service: service, logger: logger, retryAfter: retryAfter}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	FullName string `json:"full_name"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type authResponse struct {
	User   Account `json:"user"`
	Tokens Tokens  `json:"tokens"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body loginRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	// The login identifier may be a username, email, or phone, so it only
	// gets a length check here.
	body.Username = strings.TrimSpace(body.Username)
	body.Password = strings.TrimSpace(body.Password)
	if len(body.Username) < 3 || len(body.Username) > 50 {
		writeError(w, http.StatusBadRequest, "username format is invalid")
		return
	}
	if len(body.Password) < 5 || len(body.Password) > 200 {
		writeError(w, http.StatusBadRequest, "password format is invalid")
		return
	}

	origin := observability.ClientIP(r)
	result, err := h.service.Login(r.Context(), body.Username, body.Password, origin)
	if err != nil {
		// Unknown user and bad password look identical to the caller so
		// the endpoint cannot be used to enumerate accounts; the log line
		// keeps the distinction.
		if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrInvalidCredentials) {
			h.logger.Info("login_failed", map[string]any{"reason": err.Error(), "origin": origin})
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		if errors.Is(err, ErrTooManyAttempts) {
			w.Header().Set("Retry-After", strconv.Itoa(int(h.retryAfter.Seconds())))
			writeError(w, http.StatusTooManyRequests, "too many login attempts")
			return
		}

		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to login")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{User: result.Account, Tokens: result.Tokens})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body registerRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	body.Username = strings.TrimSpace(body.Username)
	body.Password = strings.TrimSpace(body.Password)
	body.Email = strings.TrimSpace(body.Email)
	body.Phone = strings.TrimSpace(body.Phone)
	body.FullName = strings.TrimSpace(body.FullName)

	if !usernameRegex.MatchString(strings.ToLower(body.Username)) {
		writeError(w, http.StatusBadRequest, "username format is invalid")
		return
	}
	if len(body.Password) < 5 || len(body.Password) > 200 {
		writeError(w, http.StatusBadRequest, "password format is invalid")
		return
	}
	if body.Email != "" {
		if _, err := mail.ParseAddress(body.Email); err != nil {
			writeError(w, http.StatusBadRequest, "email format is invalid")
			return
		}
	}
	if body.Phone != "" && !phoneRegex.MatchString(body.Phone) {
		writeError(w, http.StatusBadRequest, "phone number must start with + and contain only digits")
		return
	}
	if len(body.FullName) > 50 {
		writeError(w, http.StatusBadRequest, "full name is too long")
		return
	}

	result, err := h.service.Register(r.Context(), RegisterParams{
		Username: body.Username,
		Password: body.Password,
		Email:    body.Email,
		Phone:    body.Phone,
		FullName: body.FullName,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		var taken *UsernameTakenError
		if errors.As(err, &taken) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":       taken.Error(),
				"suggestions": taken.Suggestions,
			})
			return
		}
		if errors.Is(err, ErrEmailTaken) || errors.Is(err, ErrPhoneTaken) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}

		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to register")
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{User: result.Account, Tokens: result.Tokens})
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body refreshRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	tokens, err := h.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidRefreshToken) {
			writeError(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to refresh token")
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	accountID, ok := SubjectFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	account, err := h.service.Me(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to load account")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": account})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
