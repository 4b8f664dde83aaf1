package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/foodalloc/internal/auth"
	"github.com/dukerupert/foodalloc/internal/store"
)

type AuthHandler struct {
	userStore *store.UserStore
	issuer    *auth.Issuer
	logger    *slog.Logger
}

func NewAuthHandler(us *store.UserStore, issuer *auth.Issuer, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{userStore: us, issuer: issuer, logger: logger}
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Token exchanges a username and password for a signed bearer token.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := h.userStore.Authenticate(req.Username, req.Password)
	if errors.Is(err, store.ErrInvalidCredentials) {
		h.logger.Info("token denied", "username", req.Username)
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	if err != nil {
		h.logger.Error("authenticate", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	token, exp, err := h.issuer.Issue(user.ID, user.Username)
	if err != nil {
		h.logger.Error("issue token", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: exp})
}
