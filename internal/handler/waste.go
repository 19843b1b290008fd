package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/larderapp/larder/internal/auth"
	"github.com/larderapp/larder/internal/store"
	"github.com/larderapp/larder/internal/waste"
)

type WasteHandler struct {
	items  *store.ItemStore
	logger *slog.Logger
}

func NewWasteHandler(items *store.ItemStore, logger *slog.Logger) *WasteHandler {
	return &WasteHandler{items: items, logger: logger}
}

// Report builds the waste summary for the selected household. The window
// defaults to six months; ?months=N overrides.
func (h *WasteHandler) Report(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	if ac.HouseholdID == 0 {
		writeError(w, http.StatusConflict, "no household selected")
		return
	}

	months := 6
	if s := r.URL.Query().Get("months"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 24 {
			months = n
		}
	}

	since := waste.WindowStart(time.Now(), months)
	items, err := h.items.ListDisposed(ac.HouseholdID, since)
	if err != nil {
		h.logger.Error("list disposed items", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build report")
		return
	}

	writeJSON(w, http.StatusOK, waste.Build(items))
}
