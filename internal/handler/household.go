package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/larderapp/larder/internal/auth"
	"github.com/larderapp/larder/internal/email"
	"github.com/larderapp/larder/internal/entitlement"
	"github.com/larderapp/larder/internal/reconcile"
	"github.com/larderapp/larder/internal/roster"
	"github.com/larderapp/larder/internal/store"
	"github.com/larderapp/larder/internal/websocket"
)

type HouseholdHandler struct {
	households *store.HouseholdStore
	profiles   *store.ProfileStore
	sessions   *store.SessionStore
	users      *store.UserStore
	loader     *roster.Loader
	resolver   *entitlement.Resolver
	reconciler *reconcile.Reconciler
	hub        *websocket.Hub
	email      *email.Client
	logger     *slog.Logger

	onInvite func(userID int64, householdName string)
}

// OnInvite registers a callback fired when an invited address belongs to an
// existing account.
func (h *HouseholdHandler) OnInvite(fn func(userID int64, householdName string)) {
	h.onInvite = fn
}

func NewHouseholdHandler(
	households *store.HouseholdStore,
	profiles *store.ProfileStore,
	sessions *store.SessionStore,
	users *store.UserStore,
	loader *roster.Loader,
	resolver *entitlement.Resolver,
	reconciler *reconcile.Reconciler,
	hub *websocket.Hub,
	emailClient *email.Client,
	logger *slog.Logger,
) *HouseholdHandler {
	return &HouseholdHandler{
		households: households,
		profiles:   profiles,
		sessions:   sessions,
		users:      users,
		loader:     loader,
		resolver:   resolver,
		reconciler: reconciler,
		hub:        hub,
		email:      emailClient,
		logger:     logger,
	}
}

// List returns the caller's roster.
func (h *HouseholdHandler) List(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	result, err := h.loader.Load(r.Context(), ac.UserID, ac.HouseholdID)
	if err != nil {
		h.logger.Error("load roster", "user_id", ac.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load households")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type createHouseholdRequest struct {
	Name string `json:"name"`
}

func (h *HouseholdHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req createHouseholdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	hh, err := h.loader.CreateHousehold(r.Context(), userID, name)
	if err != nil {
		h.logger.Error("create household", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create household")
		return
	}
	writeJSON(w, http.StatusCreated, hh)
}

type joinRequest struct {
	InviteCode string `json:"invite_code"`
}

func (h *HouseholdHandler) Join(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	hh, err := h.loader.Join(r.Context(), userID, req.InviteCode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.hub.BroadcastHousehold(hh.ID, websocket.MemberEvent("joined", userID))
	writeJSON(w, http.StatusOK, hh)
}

// Switch makes the given household the caller's only active one and records
// it on the session. Switching resolves the multi-active-household state, so
// the selection flag is cleared.
func (h *HouseholdHandler) Switch(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	householdID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.households.SwitchActive(ac.UserID, householdID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.sessions.UpdateHouseholdID(ac.SessionID, householdID); err != nil {
		h.logger.Error("update session household", "error", err)
	}
	if err := h.profiles.SetNeedsHouseholdSelection(ac.UserID, false); err != nil {
		h.logger.Error("clear selection flag", "error", err)
	}

	result, err := h.loader.Load(r.Context(), ac.UserID, householdID)
	if err != nil {
		h.logger.Error("load roster", "error", err)
	}
	writeJSON(w, http.StatusOK, result)
}

// Leave removes the caller's membership. Owners must transfer first.
func (h *HouseholdHandler) Leave(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	householdID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	hh, err := h.households.GetByID(householdID)
	if err != nil || hh == nil {
		writeError(w, http.StatusNotFound, "household not found")
		return
	}
	if hh.OwnerID == ac.UserID {
		writeError(w, http.StatusConflict, "transfer ownership before leaving")
		return
	}

	if err := h.households.RemoveMember(householdID, ac.UserID); err != nil {
		h.logger.Error("remove member", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to leave household")
		return
	}
	if ac.HouseholdID == householdID {
		if err := h.sessions.UpdateHouseholdID(ac.SessionID, 0); err != nil {
			h.logger.Error("clear session household", "error", err)
		}
	}
	h.hub.BroadcastHousehold(householdID, websocket.MemberEvent("left", ac.UserID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

type inviteRequest struct {
	Email string `json:"email"`
}

// Invite emails the household's invite code to an address. Any member may
// invite while the household has room.
func (h *HouseholdHandler) Invite(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	householdID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	hh, err := h.households.GetByID(householdID)
	if err != nil || hh == nil {
		writeError(w, http.StatusNotFound, "household not found")
		return
	}
	if m, err := h.households.GetMember(householdID, ac.UserID); err != nil || m == nil {
		writeError(w, http.StatusForbidden, "not a member of this household")
		return
	}

	var req inviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	addr := strings.ToLower(strings.TrimSpace(req.Email))
	if addr == "" || !strings.Contains(addr, "@") {
		writeError(w, http.StatusBadRequest, "valid email is required")
		return
	}

	active, err := h.households.CountActiveMembers(householdID)
	if err != nil {
		h.logger.Error("count active members", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to send invite")
		return
	}
	if active >= hh.MaxMembers {
		writeError(w, http.StatusConflict, "household is at member capacity")
		return
	}

	if err := h.email.SendAuthCode(addr, hh.InviteCode, "invite", hh.Name); err != nil {
		h.logger.Error("send invite", "email", addr, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to send invite")
		return
	}

	// Nudge invitees who already have an account.
	if h.onInvite != nil {
		if u, err := h.users.GetByEmail(addr); err == nil && u != nil {
			h.onInvite(u.ID, hh.Name)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

type transferRequest struct {
	NewOwnerID int64 `json:"new_owner_id"`
}

func (h *HouseholdHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	householdID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	hh, err := h.households.GetByID(householdID)
	if err != nil || hh == nil {
		writeError(w, http.StatusNotFound, "household not found")
		return
	}
	if hh.OwnerID != ac.UserID {
		writeError(w, http.StatusForbidden, "only the owner can transfer ownership")
		return
	}

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := h.households.TransferOwnership(householdID, req.NewOwnerID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.hub.BroadcastHousehold(householdID, websocket.MemberEvent("owner_changed", req.NewOwnerID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "transferred"})
}

type settingsRequest struct {
	Name string `json:"name"`
}

func (h *HouseholdHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	householdID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	hh, err := h.households.GetByID(householdID)
	if err != nil || hh == nil {
		writeError(w, http.StatusNotFound, "household not found")
		return
	}
	if hh.OwnerID != ac.UserID {
		writeError(w, http.StatusForbidden, "only the owner can change settings")
		return
	}

	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	updated, err := h.households.UpdateSettings(householdID, name)
	if err != nil {
		h.logger.Error("update settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update household")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Members lists a household's member rows, active and inactive.
func (h *HouseholdHandler) Members(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	householdID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if m, err := h.households.GetMember(householdID, ac.UserID); err != nil || m == nil {
		writeError(w, http.StatusForbidden, "not a member of this household")
		return
	}

	members, err := h.households.ListMembers(householdID)
	if err != nil {
		h.logger.Error("list members", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list members")
		return
	}
	writeJSON(w, http.StatusOK, members)
}

type memberRequest struct {
	UserID int64 `json:"user_id"`
}

// Reactivate flips a deactivated member back to active, capacity permitting.
func (h *HouseholdHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	householdID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	hh, err := h.households.GetByID(householdID)
	if err != nil || hh == nil {
		writeError(w, http.StatusNotFound, "household not found")
		return
	}
	if hh.OwnerID != ac.UserID {
		writeError(w, http.StatusForbidden, "only the owner can reactivate members")
		return
	}

	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := h.households.ReactivateMember(householdID, req.UserID); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	h.hub.BroadcastHousehold(householdID, websocket.MemberEvent("reactivated", req.UserID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "reactivated"})
}

func (h *HouseholdHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	householdID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	hh, err := h.households.GetByID(householdID)
	if err != nil || hh == nil {
		writeError(w, http.StatusNotFound, "household not found")
		return
	}
	if hh.OwnerID != ac.UserID {
		writeError(w, http.StatusForbidden, "only the owner can remove members")
		return
	}

	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.UserID == hh.OwnerID {
		writeError(w, http.StatusBadRequest, "owner cannot be removed")
		return
	}

	if err := h.households.RemoveMember(householdID, req.UserID); err != nil {
		h.logger.Error("remove member", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to remove member")
		return
	}
	h.hub.BroadcastHousehold(householdID, websocket.MemberEvent("removed", req.UserID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// DowngradeStatus reports where a household stands relative to free-tier
// capacity, and whether the owner's premium covers it.
func (h *HouseholdHandler) DowngradeStatus(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	householdID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if m, err := h.households.GetMember(householdID, ac.UserID); err != nil || m == nil {
		writeError(w, http.StatusForbidden, "not a member of this household")
		return
	}

	state, active, err := h.reconciler.Check(householdID)
	if err != nil {
		h.logger.Error("downgrade status", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to check status")
		return
	}
	premium, err := h.resolver.HouseholdPremium(householdID)
	if err != nil {
		h.logger.Error("household premium", "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"state":          state,
		"active_members": active,
		"owner_premium":  premium,
	})
}
