package maintenance

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"social-auth/internal/auth"
	"social-auth/internal/observability"
)

// CleanupHandler is the sweep the throttle relies on for time-based decay:
// deleting attempt rows past the retention window is what unlocks a key
// that never logged in successfully. The endpoint is meant to be hit by an
// external scheduler (default cadence: every 10 minutes) and is guarded by
// a shared cron secret.
type CleanupHandler struct {
	repo             *auth.Repository
	logger           *observability.Logger
	cronSecret       string
	attemptRetention time.Duration
	tokenRetention   time.Duration
	batchSize        int
}

func NewCleanupHandler(
	repo *auth.Repository,
	logger *observability.Logger,
	cronSecret string,
	attemptRetention time.Duration,
	tokenRetention time.Duration,
	batchSize int,
) *CleanupHandler {
	if attemptRetention <= 0 {
		attemptRetention = time.Hour
	}
	if tokenRetention <= 0 {
		tokenRetention = 14 * 24 * time.Hour
	}
	if batchSize <= 0 {
		batchSize = 500
	}

	return &CleanupHandler{
		repo:             repo,
		logger:           logger,
		cronSecret:       strings.TrimSpace(cronSecret),
		attemptRetention: attemptRetention,
		tokenRetention:   tokenRetention,
		batchSize:        batchSize,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	now := time.Now().UTC()

	deletedAttempts, err := h.repo.DeleteAttemptsOlderThan(r.Context(), now.Add(-h.attemptRetention), h.batchSize)
	if err != nil {
		h.logger.Error("attempt_sweep_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	deletedTokens, err := h.repo.DeleteStaleRefreshTokens(r.Context(), now.Add(-h.tokenRetention), h.batchSize)
	if err != nil {
		h.logger.Error("token_sweep_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	h.logger.Info("auth_cleanup_completed", map[string]any{
		"deleted_login_attempts": deletedAttempts,
		"deleted_refresh_tokens": deletedTokens,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": map[string]int64{
			"deleted_login_attempts": deletedAttempts,
			"deleted_refresh_tokens": deletedTokens,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
