package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Keekuk/notesnook/internal/audit"
	"github.com/Keekuk/notesnook/internal/auth"
	"github.com/Keekuk/notesnook/internal/vault"
)

// tokenSubject is the subject of every access token. notesnookd serves a
// single local user.
const tokenSubject = "local"

type unlockRequest struct {
	Passphrase string `json:"passphrase"`
}

type unlockResponse struct {
	Unlocked    bool   `json:"unlocked"`
	AccessToken string `json:"access_token,omitempty"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int    `json:"expires_in,omitempty"` // seconds
}

// handleUnlock applies the vault key and returns an access token when
// authentication is enabled.
func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	if s.unlocker == nil {
		writeError(w, http.StatusConflict, ErrCodeConflict, "vault is disabled")
		return
	}

	var req unlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Passphrase == "" {
		writeBadRequest(w, "passphrase is required")
		return
	}

	s.unlockGate.Lock()
	err := s.unlocker.Unlock(r.Context(), req.Passphrase)
	s.unlockGate.Unlock()

	if err != nil {
		switch {
		case errors.Is(err, vault.ErrWrongPassphrase):
			s.logger.Warn("unlock rejected", "reason", "wrong passphrase")
			writeUnauthorized(w, "wrong passphrase")
		case errors.Is(err, vault.ErrWeakPassphrase):
			writeValidationError(w, err.Error())
		case errors.Is(err, vault.ErrStillLocked):
			writeError(w, http.StatusConflict, ErrCodeConflict, "key does not open this database")
		default:
			s.logger.Error("unlock failed", "error", err)
			writeInternalError(w, "unlock failed")
		}
		return
	}

	s.logger.Info("database unlocked", "state", s.db.State())
	s.recordAudit(r, audit.ActionUnlock, audit.EntityDatabase, "", nil)

	resp := unlockResponse{Unlocked: true}
	if s.authEnabled() {
		token, err := auth.GenerateAccessToken(tokenSubject, s.secCfg.JWT.Secret, s.secCfg.JWT.AccessTokenTTL)
		if err != nil {
			s.logger.Error("issuing access token failed", "error", err)
			writeInternalError(w, "issuing access token failed")
			return
		}
		resp.AccessToken = token
		resp.TokenType = "Bearer"
		resp.ExpiresIn = accessTokenTTLMinutes(s.secCfg.JWT.AccessTokenTTL) * 60 //nolint:mnd // minutes to seconds
	}

	writeJSON(w, http.StatusOK, resp)
}

// accessTokenTTLMinutes mirrors the default applied by auth.GenerateAccessToken.
func accessTokenTTLMinutes(configured int) int {
	if configured <= 0 {
		return auth.DefaultTTLMinutes
	}
	return configured
}
