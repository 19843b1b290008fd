package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/larderapp/larder/internal/auth"
	"github.com/larderapp/larder/internal/grocery"
	"github.com/larderapp/larder/internal/store"
	"github.com/larderapp/larder/internal/websocket"
)

type ShoppingHandler struct {
	shopping *store.ShoppingStore
	hub      *websocket.Hub
	logger   *slog.Logger
}

func NewShoppingHandler(shopping *store.ShoppingStore, hub *websocket.Hub, logger *slog.Logger) *ShoppingHandler {
	return &ShoppingHandler{shopping: shopping, hub: hub, logger: logger}
}

type shoppingItemRequest struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

func (h *ShoppingHandler) Create(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	if ac.HouseholdID == 0 {
		writeError(w, http.StatusConflict, "no household selected")
		return
	}

	var req shoppingItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Category == "" {
		req.Category = grocery.Categorize(req.Name)
	}

	item, err := h.shopping.CreateItem(ac.HouseholdID, req.Name, req.Category, &ac.UserID)
	if err != nil {
		h.logger.Error("create shopping item", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to add item")
		return
	}

	h.hub.BroadcastHousehold(ac.HouseholdID, websocket.ShoppingEvent("created", item.ID))
	writeJSON(w, http.StatusCreated, item)
}

func (h *ShoppingHandler) List(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	if ac.HouseholdID == 0 {
		writeError(w, http.StatusConflict, "no household selected")
		return
	}

	items, err := h.shopping.ListItems(ac.HouseholdID)
	if err != nil {
		h.logger.Error("list shopping items", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *ShoppingHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	item, err := h.shopping.GetItemByID(id)
	if err != nil {
		h.logger.Error("get shopping item", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load item")
		return
	}
	if item == nil || item.HouseholdID != ac.HouseholdID {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}

	toggled, err := h.shopping.ToggleChecked(id)
	if err != nil {
		h.logger.Error("toggle shopping item", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update item")
		return
	}

	h.hub.BroadcastHousehold(ac.HouseholdID, websocket.ShoppingEvent("toggled", id))
	writeJSON(w, http.StatusOK, toggled)
}

func (h *ShoppingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	item, err := h.shopping.GetItemByID(id)
	if err != nil {
		h.logger.Error("get shopping item", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load item")
		return
	}
	if item == nil || item.HouseholdID != ac.HouseholdID {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}

	if err := h.shopping.DeleteItem(id); err != nil {
		h.logger.Error("delete shopping item", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete item")
		return
	}

	h.hub.BroadcastHousehold(ac.HouseholdID, websocket.ShoppingEvent("deleted", id))
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ClearChecked completes a shopping trip: checked items move to the
// purchase log.
func (h *ShoppingHandler) ClearChecked(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	if ac.HouseholdID == 0 {
		writeError(w, http.StatusConflict, "no household selected")
		return
	}

	n, err := h.shopping.ClearChecked(ac.HouseholdID)
	if err != nil {
		h.logger.Error("clear checked", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to clear items")
		return
	}

	h.hub.BroadcastHousehold(ac.HouseholdID, websocket.ShoppingEvent("cleared", 0))
	writeJSON(w, http.StatusOK, map[string]int64{"purchased": n})
}
