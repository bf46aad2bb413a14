package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/getsentry/sentry-go"

	"social-auth/internal/auth"
)

const maxJSONBodyBytes = 1 << 20

// Store is the subset of Repository the handler needs; a fake stands in
// during tests.
type Store interface {
	GetByUsername(ctx context.Context, username string) (Record, error)
	Update(ctx context.Context, userID int64, input UpdateInput) (Record, error)
}

type Handler struct {
	store     Store
	jwtSecret string
}

func NewHandler(store Store, jwtSecret string) *Handler {
	return &Handler{store: store, jwtSecret: jwtSecret}
}

// Get serves a public profile view. Private accounts reveal only the
// username and the private flag unless the viewer is the owner.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	username := strings.ToLower(strings.TrimSpace(r.PathValue("username")))
	if username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	rec, err := h.store.GetByUsername(r.Context(), username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "profile not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}

	view := View{Username: rec.Username, IsPrivate: rec.IsPrivate}
	viewerID, authenticated := auth.SubjectFromRequest(h.jwtSecret, r)
	if !rec.IsPrivate || (authenticated && viewerID == rec.UserID) {
		view.FullName = rec.FullName
		memberSince := rec.CreatedAt
		view.MemberSince = &memberSince
	}

	writeJSON(w, http.StatusOK, view)
}

// Update changes the caller's own full name and visibility flag. Routed
// behind auth.Middleware, so the subject is always present.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.SubjectFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var input UpdateInput
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	input.FullName = strings.TrimSpace(input.FullName)
	if !utf8.ValidString(input.FullName) || len(input.FullName) > 50 {
		writeError(w, http.StatusBadRequest, "full name is invalid")
		return
	}

	rec, err := h.store.Update(r.Context(), accountID, input)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "profile not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}

	memberSince := rec.CreatedAt
	writeJSON(w, http.StatusOK, View{
		Username:    rec.Username,
		FullName:    rec.FullName,
		IsPrivate:   rec.IsPrivate,
		MemberSince: &memberSince,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
