package handlers

import (
	"log"
	"net/http"

	"expense-ledger/internal/api"
	"expense-ledger/internal/ledger"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// StatsCategoryItem represents a category with its spending statistics.
type StatsCategoryItem struct {
	Category   string          `json:"category"`
	Glyph      string          `json:"glyph"`
	Total      decimal.Decimal `json:"total"`
	Percentage decimal.Decimal `json:"percentage"`
}

// StatsResponse is the spending summary of one period.
type StatsResponse struct {
	Period     string              `json:"period"`
	Title      string              `json:"title"`
	Total      decimal.Decimal     `json:"total"`
	Count      int                 `json:"count"`
	Categories []StatsCategoryItem `json:"categories"`
}

// Statistics summarizes the user's spending for ?period= (default This Month),
// in the server's local time.
func (h *Handlers) Statistics(w http.ResponseWriter, r *http.Request) {
	period := ledger.ThisMonth
	if p := r.URL.Query().Get("period"); p != "" {
		var err error
		if period, err = ledger.ParsePeriod(p); err != nil {
			writeError(w, http.StatusBadRequest, api.CodeInvalidArgument, err.Error())
			return
		}
	}

	expenses, err := h.store.ListExpenses(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		log.Printf("Statistics error: %v", err)
		writeError(w, http.StatusInternalServerError, api.CodeInternal, "internal server error")
		return
	}

	now := h.now()
	inPeriod := ledger.Filter(expenses, period, now)
	rows := ledger.ByCategory(inPeriod)
	items := make([]StatsCategoryItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, StatsCategoryItem{
			Category:   row.Category.Name,
			Glyph:      row.Category.Glyph,
			Total:      row.Total,
			Percentage: row.Percent,
		})
	}

	writeJSON(w, http.StatusOK, StatsResponse{
		Period:     period.String(),
		Title:      period.Title(now),
		Total:      ledger.Total(inPeriod),
		Count:      len(inPeriod),
		Categories: items,
	})
}
