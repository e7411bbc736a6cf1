package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"expense-ledger/internal/api"
	"expense-ledger/internal/events"
	"expense-ledger/internal/ledger"
	"expense-ledger/internal/models"
	"expense-ledger/internal/storage"

	"github.com/go-chi/chi/v5"
)

func validationError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, api.CodeInvalidArgument, err.Error())
}

// publish reports a committed mutation. Failures never fail the request.
func (h *Handlers) publish(typ, uid, id string, e *models.Expense) {
	ev := events.ExpenseEvent{Type: typ, UserID: uid, ExpenseID: id, Expense: e, OccurredAt: h.now().UTC()}
	if err := h.events.Publish(ev); err != nil {
		log.Printf("Failed to publish %s event: %v", typ, err)
	}
}

// ListExpenses returns the user's expenses, newest first.
func (h *Handlers) ListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := h.store.ListExpenses(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		log.Printf("ListExpenses error: %v", err)
		writeError(w, http.StatusInternalServerError, api.CodeInternal, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, expenses)
}

// CreateExpense stores a client-identified expense.
func (h *Handlers) CreateExpense(w http.ResponseWriter, r *http.Request) {
	var e models.Expense
	if !decode(w, r, &e) {
		return
	}
	e.ID = strings.TrimSpace(e.ID)
	if e.ID == "" {
		writeError(w, http.StatusBadRequest, api.CodeInvalidArgument, "id is required")
		return
	}
	if e.Date.IsZero() {
		writeError(w, http.StatusBadRequest, api.CodeInvalidArgument, "date is required")
		return
	}
	fields, err := ledger.ValidateUpdate(models.ExpenseUpdate{Amount: &e.Amount, Description: &e.Description, Category: &e.Category})
	if err != nil {
		validationError(w, err)
		return
	}
	e = fields.Apply(e)

	uid := chi.URLParam(r, "uid")
	if err := h.store.CreateExpense(r.Context(), uid, e); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, http.StatusConflict, api.CodeAlreadyExists, "expense id already used")
			return
		}
		log.Printf("CreateExpense error: %v", err)
		writeError(w, http.StatusInternalServerError, api.CodeInternal, "internal server error")
		return
	}
	h.publish(events.ExpenseCreated, uid, e.ID, &e)
	writeJSON(w, http.StatusCreated, e)
}

// UpdateExpense applies a partial update to an existing expense.
func (h *Handlers) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	var u models.ExpenseUpdate
	if !decode(w, r, &u) {
		return
	}
	u, err := ledger.ValidateUpdate(u)
	if err != nil {
		validationError(w, err)
		return
	}

	uid, id := chi.URLParam(r, "uid"), chi.URLParam(r, "id")
	if err := h.store.UpdateExpense(r.Context(), uid, id, u); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, api.CodeNotFound, "expense not found")
			return
		}
		log.Printf("UpdateExpense error: %v", err)
		writeError(w, http.StatusInternalServerError, api.CodeInternal, "internal server error")
		return
	}

	updated, err := h.store.GetExpense(r.Context(), uid, id)
	if err != nil {
		log.Printf("GetExpense after update error: %v", err)
	}
	h.publish(events.ExpenseUpdated, uid, id, updated)
	w.WriteHeader(http.StatusNoContent)
}

// DeleteExpense removes an expense. Deleting a missing expense succeeds.
func (h *Handlers) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	uid, id := chi.URLParam(r, "uid"), chi.URLParam(r, "id")
	if err := h.store.DeleteExpense(r.Context(), uid, id); err != nil {
		log.Printf("DeleteExpense error: %v", err)
		writeError(w, http.StatusInternalServerError, api.CodeInternal, "internal server error")
		return
	}
	h.publish(events.ExpenseDeleted, uid, id, nil)
	w.WriteHeader(http.StatusNoContent)
}
