package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/larderapp/larder/internal/auth"
	"github.com/larderapp/larder/internal/email"
	"github.com/larderapp/larder/internal/entitlement"
	"github.com/larderapp/larder/internal/middleware"
	"github.com/larderapp/larder/internal/model"
	"github.com/larderapp/larder/internal/roster"
	"github.com/larderapp/larder/internal/store"
)

const maxCodeAttempts = 5

type AuthHandler struct {
	users     *store.UserStore
	profiles  *store.ProfileStore
	sessions  *store.SessionStore
	authCodes *store.AuthCodeStore
	loader    *roster.Loader
	resolver  *entitlement.Resolver
	email     *email.Client
	secure    bool
	logger    *slog.Logger
}

func NewAuthHandler(
	users *store.UserStore,
	profiles *store.ProfileStore,
	sessions *store.SessionStore,
	authCodes *store.AuthCodeStore,
	loader *roster.Loader,
	resolver *entitlement.Resolver,
	ec *email.Client,
	secureCookies bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		users:     users,
		profiles:  profiles,
		sessions:  sessions,
		authCodes: authCodes,
		loader:    loader,
		resolver:  resolver,
		email:     ec,
		secure:    secureCookies,
		logger:    logger,
	}
}

type requestCodeRequest struct {
	Email string `json:"email"`
}

// RequestCode emails a sign-in code. The response does not reveal whether
// the address has an account.
func (h *AuthHandler) RequestCode(w http.ResponseWriter, r *http.Request) {
	var req requestCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	addr := strings.ToLower(strings.TrimSpace(req.Email))
	if addr == "" || !strings.Contains(addr, "@") {
		writeError(w, http.StatusBadRequest, "valid email is required")
		return
	}

	existing, err := h.users.GetByEmail(addr)
	if err != nil {
		h.logger.Error("lookup user", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to send code")
		return
	}
	purpose := "register"
	if existing != nil {
		purpose = "login"
	}

	code, err := h.authCodes.Create(addr, purpose, nil)
	if err != nil {
		h.logger.Error("create auth code", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to send code")
		return
	}

	if err := h.email.SendAuthCode(addr, code.Code, purpose, ""); err != nil {
		h.logger.Error("send auth code", "email", addr, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to send code")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

type verifyCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
	Name  string `json:"name"`
}

// VerifyCode exchanges a valid code for a session. New addresses get an
// account created on the spot. The session cookie is set and the user's
// roster and entitlement are resolved for the response.
func (h *AuthHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	addr := strings.ToLower(strings.TrimSpace(req.Email))

	code, err := h.authCodes.GetLatestByEmail(addr)
	if err != nil {
		h.logger.Error("get auth code", "error", err)
		writeError(w, http.StatusInternalServerError, "verification failed")
		return
	}
	if code == nil {
		writeError(w, http.StatusUnauthorized, "invalid or expired code")
		return
	}

	if code.Code != strings.TrimSpace(req.Code) {
		attempts, err := h.authCodes.IncrementAttempts(code.ID)
		if err == nil && attempts >= maxCodeAttempts {
			h.authCodes.MarkUsed(code.ID)
		}
		writeError(w, http.StatusUnauthorized, "invalid or expired code")
		return
	}
	if code.Attempts >= maxCodeAttempts {
		writeError(w, http.StatusUnauthorized, "too many attempts, request a new code")
		return
	}
	if err := h.authCodes.MarkUsed(code.ID); err != nil {
		h.logger.Error("mark code used", "error", err)
	}

	user, err := h.users.GetByEmail(addr)
	if err != nil {
		h.logger.Error("lookup user", "error", err)
		writeError(w, http.StatusInternalServerError, "verification failed")
		return
	}
	created := false
	if user == nil {
		name := strings.TrimSpace(req.Name)
		if name == "" {
			name = addr[:strings.Index(addr, "@")]
		}
		user, err = h.users.Create(addr, name)
		if err != nil {
			h.logger.Error("create user", "error", err)
			writeError(w, http.StatusInternalServerError, "verification failed")
			return
		}
		created = true
	}

	// Session start: load the roster (this is where empty-roster
	// provisioning happens) and pick the selected household.
	result, err := h.loader.Load(r.Context(), user.ID, 0)
	if err != nil {
		h.logger.Error("load roster", "user_id", user.ID, "error", err)
	}
	var selectedID int64
	if result != nil && result.Selected != nil {
		selectedID = result.Selected.Household.ID
	}

	sess, err := h.sessions.Create(user.ID, selectedID)
	if err != nil {
		h.logger.Error("create session", "error", err)
		writeError(w, http.StatusInternalServerError, "verification failed")
		return
	}
	h.setSessionCookie(w, sess.Token, sess.ExpiresAt)

	status, _ := h.resolver.Refresh(user.ID, true)

	writeJSON(w, http.StatusOK, map[string]any{
		"user":        user,
		"created":     created,
		"roster":      result,
		"entitlement": status,
	})
}

type onboardingRequest struct {
	Choice     string `json:"choice"`
	Name       string `json:"name"`
	InviteCode string `json:"invite_code"`
}

// CompleteOnboarding records the user's onboarding choice and performs it:
// create a household, join one by invite code, or skip.
func (h *AuthHandler) CompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req onboardingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	var selectedID int64
	switch req.Choice {
	case model.OnboardingCreated:
		name := strings.TrimSpace(req.Name)
		if name == "" {
			name = roster.DefaultHouseholdName
		}
		hh, err := h.loader.CreateHousehold(r.Context(), userID, name)
		if err != nil {
			h.logger.Error("create household", "user_id", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to create household")
			return
		}
		selectedID = hh.ID
	case model.OnboardingJoined:
		hh, err := h.loader.Join(r.Context(), userID, req.InviteCode)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		selectedID = hh.ID
	case model.OnboardingSkipped:
		// Recorded only; the next roster load provisions a default.
	default:
		writeError(w, http.StatusBadRequest, "invalid choice")
		return
	}

	if err := h.profiles.SetOnboarding(userID, true, req.Choice); err != nil {
		h.logger.Error("set onboarding", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to complete onboarding")
		return
	}

	if selectedID != 0 {
		ac, _ := auth.FromContext(r.Context())
		if err := h.sessions.UpdateHouseholdID(ac.SessionID, selectedID); err != nil {
			h.logger.Error("update session household", "error", err)
		}
	}

	result, err := h.loader.Load(r.Context(), userID, selectedID)
	if err != nil {
		h.logger.Error("load roster", "user_id", userID, "error", err)
	}
	writeJSON(w, http.StatusOK, result)
}

// Me returns the caller's account, profile, roster, and entitlement.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	user, err := h.users.GetByID(ac.UserID)
	if err != nil || user == nil {
		writeError(w, http.StatusInternalServerError, "failed to load account")
		return
	}
	profile, err := h.profiles.Get(ac.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load account")
		return
	}

	result, err := h.loader.Load(r.Context(), ac.UserID, ac.HouseholdID)
	if err != nil {
		h.logger.Error("load roster", "user_id", ac.UserID, "error", err)
	}
	status, _ := h.resolver.Refresh(ac.UserID, false)

	writeJSON(w, http.StatusOK, map[string]any{
		"user":        user,
		"profile":     profile,
		"roster":      result,
		"entitlement": status,
	})
}

// Logout deletes the session and drops cached entitlement.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	if err := h.sessions.Delete(ac.SessionID); err != nil {
		h.logger.Error("delete session", "error", err)
	}
	h.resolver.Forget(ac.UserID)
	h.setSessionCookie(w, "", time.Unix(0, 0))
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
