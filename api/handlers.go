/*
handlers.go - HTTP handlers for the ledger API

PURPOSE:
  Thin glue between HTTP and the engine. Handlers decode wire forms,
  delegate to the mutation service / batch processor / store, and map
  engine errors to status codes. No balance arithmetic happens here.

STATUS MAPPING:
  400  invalid input (malformed decimal, bad direction, bad date, ...)
  404  unknown customer or transaction
  409  account code already taken
  422  insufficient balance or decimal overflow (well-formed, refused)
  500  store failure (the unit of work rolled back; error surfaced as-is)
*/
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/warp/balance-engine/ledger"
)

// Handler carries the engine dependencies for all routes.
type Handler struct {
	store ledger.Store
	svc   *ledger.Service
	batch *ledger.BatchProcessor
	log   *slog.Logger
}

func NewHandler(store ledger.Store, svc *ledger.Service, batch *ledger.BatchProcessor, log *slog.Logger) *Handler {
	return &Handler{store: store, svc: svc, batch: batch, log: log}
}

// =============================================================================
// CUSTOMERS
// =============================================================================

func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, &ledger.ValidationError{Field: "body", Reason: "malformed JSON"})
		return
	}
	if !ledger.ValidAccountCode(req.Account) {
		h.writeError(w, r, &ledger.ValidationError{Field: "account", Reason: "must be alphanumeric, 1-15 characters"})
		return
	}
	if req.Name == "" || len(req.Name) > 30 {
		h.writeError(w, r, &ledger.ValidationError{Field: "name", Reason: "must be 1-30 characters"})
		return
	}
	balance, err := ledger.ParseBalance(req.Balance)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	c := ledger.Customer{
		Account: ledger.AccountID(req.Account),
		Name:    req.Name,
		Balance: balance,
	}
	if err := h.store.CreateCustomer(r.Context(), c); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toCustomerResponse(c))
}

func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.store.ListCustomers(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]customerResponse, 0, len(customers))
	for _, c := range customers {
		out = append(out, toCustomerResponse(c))
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := h.store.GetCustomer(r.Context(), ledger.AccountID(chi.URLParam(r, "account")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toCustomerResponse(c))
}

// GetCustomerEnquiry returns a customer together with its transaction
// history, the account enquiry screen.
func (h *Handler) GetCustomerEnquiry(w http.ResponseWriter, r *http.Request) {
	account := ledger.AccountID(chi.URLParam(r, "account"))
	c, err := h.store.GetCustomer(r.Context(), account)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	txs, err := h.store.ListTransactions(r.Context(), account)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := enquiryResponse{
		Customer:     toCustomerResponse(c),
		Transactions: make([]transactionResponse, 0, len(txs)),
	}
	for _, t := range txs {
		out.Transactions = append(out.Transactions, toTransactionResponse(t))
	}
	h.writeJSON(w, http.StatusOK, out)
}

// RenameCustomer updates the display name. Balance is not editable here;
// only the engine mutates balances.
func (h *Handler) RenameCustomer(w http.ResponseWriter, r *http.Request) {
	var req customerUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, &ledger.ValidationError{Field: "body", Reason: "malformed JSON"})
		return
	}
	if req.Name == "" || len(req.Name) > 30 {
		h.writeError(w, r, &ledger.ValidationError{Field: "name", Reason: "must be 1-30 characters"})
		return
	}

	account := ledger.AccountID(chi.URLParam(r, "account"))
	var updated ledger.Customer
	err := h.store.WithTx(r.Context(), func(tx ledger.Tx) error {
		c, err := tx.GetCustomer(r.Context(), account)
		if err != nil {
			return err
		}
		c.Name = req.Name
		updated = c
		return tx.PersistCustomer(r.Context(), c)
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toCustomerResponse(updated))
}

func (h *Handler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteCustomer(r.Context(), ledger.AccountID(chi.URLParam(r, "account"))); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, &ledger.ValidationError{Field: "body", Reason: "malformed JSON"})
		return
	}
	in, err := req.input()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.svc.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toMutationResponse(res))
}

func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	number, ok := h.transactionNumber(w, r)
	if !ok {
		return
	}
	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, &ledger.ValidationError{Field: "body", Reason: "malformed JSON"})
		return
	}
	in, err := req.input()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.svc.Update(r.Context(), number, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toMutationResponse(res))
}

func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	number, ok := h.transactionNumber(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Delete(r.Context(), number)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toMutationResponse(res))
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	number, ok := h.transactionNumber(w, r)
	if !ok {
		return
	}
	t, err := h.store.GetTransaction(r.Context(), number)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toTransactionResponse(t))
}

// ListTransactions lists all transactions, or one customer's when the
// "account" query parameter is present.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	account := ledger.AccountID(r.URL.Query().Get("account"))
	txs, err := h.store.ListTransactions(r.Context(), account)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionResponse(t))
	}
	h.writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// BATCH
// =============================================================================

func (h *Handler) ApplyBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, &ledger.ValidationError{Field: "body", Reason: "malformed JSON"})
		return
	}

	items := make([]ledger.BatchItem, 0, len(req.Items))
	for i, row := range req.Items {
		in, err := row.input()
		if err != nil {
			h.writeError(w, r, &ledger.BatchItemError{Index: i, Account: ledger.AccountID(row.Account), Err: err})
			return
		}
		items = append(items, ledger.BatchItem{
			Account:   in.Account,
			Date:      in.Date,
			Amount:    in.Amount,
			Direction: in.Direction,
			Reference: in.Reference,
		})
	}

	res, err := h.batch.ApplyBatch(r.Context(), items)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toBatchResponse(res))
}

// =============================================================================
// SHARED
// =============================================================================

func (h *Handler) transactionNumber(w http.ResponseWriter, r *http.Request) (ledger.TransactionID, bool) {
	raw := chi.URLParam(r, "number")
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		h.writeError(w, r, &ledger.ValidationError{Field: "number", Reason: "must be a positive integer"})
		return 0, false
	}
	return ledger.TransactionID(n), true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrInvalidInput):
		status = http.StatusBadRequest
	case ledger.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrCustomerExists):
		status = http.StatusConflict
	case errors.Is(err, ledger.ErrInsufficientBalance), errors.Is(err, ledger.ErrOverflow):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		h.log.Error("store failure", "error", err, "path", r.URL.Path, "request_id", requestID(r))
	}

	resp := errorResponse{Error: err.Error()}
	var itemErr *ledger.BatchItemError
	if errors.As(err, &itemErr) {
		idx := itemErr.Index
		resp.Index = &idx
	}
	h.writeJSON(w, status, resp)
}
