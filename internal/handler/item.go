package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/larderapp/larder/internal/auth"
	"github.com/larderapp/larder/internal/entitlement"
	"github.com/larderapp/larder/internal/grocery"
	"github.com/larderapp/larder/internal/model"
	"github.com/larderapp/larder/internal/store"
	"github.com/larderapp/larder/internal/websocket"
)

type ItemHandler struct {
	items    *store.ItemStore
	resolver *entitlement.Resolver
	hub      *websocket.Hub
	logger   *slog.Logger
}

func NewItemHandler(items *store.ItemStore, resolver *entitlement.Resolver, hub *websocket.Hub, logger *slog.Logger) *ItemHandler {
	return &ItemHandler{items: items, resolver: resolver, hub: hub, logger: logger}
}

type itemRequest struct {
	Name       string     `json:"name"`
	Category   string     `json:"category"`
	Quantity   int        `json:"quantity"`
	PriceCents int64      `json:"price_cents"`
	ExpiresAt  *time.Time `json:"expires_at"`
}

// Create adds a pantry item. The item cap follows the household OWNER's
// entitlement, so members of a premium household are not limited.
func (h *ItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	if ac.HouseholdID == 0 {
		writeError(w, http.StatusConflict, "no household selected")
		return
	}

	var req itemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}
	if req.Category == "" {
		req.Category = grocery.Categorize(req.Name)
	}

	premium, err := h.resolver.HouseholdPremium(ac.HouseholdID)
	if err != nil {
		h.logger.Error("household premium", "error", err)
		// Fail open to free-tier limits rather than refusing the write.
		premium = false
	}
	limits := entitlement.LimitsFor(premium)

	count, err := h.items.CountPantry(ac.HouseholdID)
	if err != nil {
		h.logger.Error("count pantry", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to add item")
		return
	}
	if !limits.AllowsItems(count) {
		writeError(w, http.StatusPaymentRequired, "item limit reached for this household")
		return
	}

	item, err := h.items.Create(ac.HouseholdID, req.Name, req.Category, req.Quantity, req.PriceCents, req.ExpiresAt, &ac.UserID)
	if err != nil {
		h.logger.Error("create item", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to add item")
		return
	}

	h.hub.BroadcastHousehold(ac.HouseholdID, websocket.ItemEvent("created", item.ID))
	writeJSON(w, http.StatusCreated, item)
}

func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	if ac.HouseholdID == 0 {
		writeError(w, http.StatusConflict, "no household selected")
		return
	}

	items, err := h.items.ListPantry(ac.HouseholdID)
	if err != nil {
		h.logger.Error("list pantry", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *ItemHandler) Update(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	item, ok := h.ownedItem(w, r, ac.HouseholdID)
	if !ok {
		return
	}

	var req itemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}
	if req.Category == "" {
		req.Category = grocery.Categorize(req.Name)
	}

	updated, err := h.items.Update(item.ID, req.Name, req.Category, req.Quantity, req.PriceCents, req.ExpiresAt)
	if err != nil {
		h.logger.Error("update item", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update item")
		return
	}

	h.hub.BroadcastHousehold(ac.HouseholdID, websocket.ItemEvent("updated", item.ID))
	writeJSON(w, http.StatusOK, updated)
}

type disposeRequest struct {
	Disposition string `json:"disposition"`
}

// Dispose marks an item consumed or wasted, feeding the waste report.
func (h *ItemHandler) Dispose(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	item, ok := h.ownedItem(w, r, ac.HouseholdID)
	if !ok {
		return
	}

	var req disposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	disposed, err := h.items.Dispose(item.ID, req.Disposition)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.hub.BroadcastHousehold(ac.HouseholdID, websocket.ItemEvent("disposed", item.ID))
	writeJSON(w, http.StatusOK, disposed)
}

func (h *ItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	item, ok := h.ownedItem(w, r, ac.HouseholdID)
	if !ok {
		return
	}

	if err := h.items.Delete(item.ID); err != nil {
		h.logger.Error("delete item", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete item")
		return
	}

	h.hub.BroadcastHousehold(ac.HouseholdID, websocket.ItemEvent("deleted", item.ID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ownedItem loads the item from the path and checks it belongs to the
// caller's selected household.
func (h *ItemHandler) ownedItem(w http.ResponseWriter, r *http.Request, householdID int64) (*model.Item, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil, false
	}
	item, err := h.items.GetByID(id)
	if err != nil {
		h.logger.Error("get item", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load item")
		return nil, false
	}
	if item == nil || item.HouseholdID != householdID {
		writeError(w, http.StatusNotFound, "item not found")
		return nil, false
	}
	return item, true
}
