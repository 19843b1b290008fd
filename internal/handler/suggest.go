package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/larderapp/larder/internal/auth"
	"github.com/larderapp/larder/internal/store"
	"github.com/larderapp/larder/internal/suggest"
)

// purchaseWindow bounds how far back frequency scoring looks.
const purchaseWindow = 90 * 24 * time.Hour

type SuggestHandler struct {
	items    *store.ItemStore
	shopping *store.ShoppingStore
	logger   *slog.Logger
}

func NewSuggestHandler(items *store.ItemStore, shopping *store.ShoppingStore, logger *slog.Logger) *SuggestHandler {
	return &SuggestHandler{items: items, shopping: shopping, logger: logger}
}

func (h *SuggestHandler) List(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	if ac.HouseholdID == 0 {
		writeError(w, http.StatusConflict, "no household selected")
		return
	}

	limit := 10
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}

	now := time.Now()
	purchases, err := h.shopping.ListPurchasesSince(ac.HouseholdID, now.Add(-purchaseWindow))
	if err != nil {
		h.logger.Error("list purchases", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build suggestions")
		return
	}
	pantry, err := h.items.ListPantry(ac.HouseholdID)
	if err != nil {
		h.logger.Error("list pantry", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build suggestions")
		return
	}
	list, err := h.shopping.ListItems(ac.HouseholdID)
	if err != nil {
		h.logger.Error("list shopping items", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build suggestions")
		return
	}

	suggestions := suggest.Suggest(purchases, pantry, list, now, limit)
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}
