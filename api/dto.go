/*
dto.go - Request/response shapes for the HTTP API

All money values cross this boundary as decimal strings with exactly two
fraction digits ("1500.00"), never as JSON numbers: float64 round-trips
would defeat the engine's fixed-point semantics. Direction is accepted in
both the single-letter form ("D"/"C") and the long form ("debit"/"credit")
and always rendered as the single-letter code.
*/
package api

import (
	"time"

	"github.com/warp/balance-engine/ledger"
)

// =============================================================================
// REQUESTS
// =============================================================================

type customerRequest struct {
	Account string `json:"account"`
	Name    string `json:"name"`
	Balance string `json:"balance"`
}

type customerUpdateRequest struct {
	Name string `json:"name"`
}

type transactionRequest struct {
	Account   string `json:"account"`
	Date      string `json:"date,omitempty"` // RFC 3339; empty means now
	Amount    string `json:"amount"`
	Direction string `json:"direction"`
	Reference string `json:"reference"`
}

// input converts the wire form to engine input, validating the decimal and
// direction encodings. Structural rules (positive amount, code shapes) are
// enforced again by the engine itself.
func (r transactionRequest) input() (ledger.TransactionInput, error) {
	amount, err := ledger.ParseAmount(r.Amount)
	if err != nil {
		return ledger.TransactionInput{}, err
	}
	direction, err := ledger.ParseDirection(r.Direction)
	if err != nil {
		return ledger.TransactionInput{}, err
	}

	var date time.Time
	if r.Date != "" {
		date, err = time.Parse(time.RFC3339, r.Date)
		if err != nil {
			return ledger.TransactionInput{}, &ledger.ValidationError{Field: "date", Reason: "must be RFC 3339"}
		}
	}

	return ledger.TransactionInput{
		Account:   ledger.AccountID(r.Account),
		Date:      date,
		Amount:    amount,
		Direction: direction,
		Reference: r.Reference,
	}, nil
}

type batchRequest struct {
	Items []transactionRequest `json:"items"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type customerResponse struct {
	Account string `json:"account"`
	Name    string `json:"name"`
	Balance string `json:"balance"`
}

func toCustomerResponse(c ledger.Customer) customerResponse {
	return customerResponse{
		Account: string(c.Account),
		Name:    c.Name,
		Balance: ledger.FormatDecimal(c.Balance),
	}
}

type transactionResponse struct {
	Number    int64  `json:"number"`
	Account   string `json:"account"`
	Date      string `json:"date"`
	Amount    string `json:"amount"`
	Direction string `json:"direction"`
	Reference string `json:"reference"`
}

func toTransactionResponse(t ledger.Transaction) transactionResponse {
	return transactionResponse{
		Number:    int64(t.Number),
		Account:   string(t.Account),
		Date:      t.Date.UTC().Format(time.RFC3339),
		Amount:    ledger.FormatDecimal(t.Amount),
		Direction: t.Direction.Code(),
		Reference: t.Reference,
	}
}

// mutationResponse reports the affected transaction and the new balance of
// every customer the operation touched.
type mutationResponse struct {
	Transaction transactionResponse `json:"transaction"`
	Balances    map[string]string   `json:"balances"`
}

func toMutationResponse(res ledger.MutationResult) mutationResponse {
	balances := make(map[string]string, len(res.Balances))
	for account, balance := range res.Balances {
		balances[string(account)] = ledger.FormatDecimal(balance)
	}
	return mutationResponse{
		Transaction: toTransactionResponse(res.Transaction),
		Balances:    balances,
	}
}

type batchResponse struct {
	Transactions []transactionResponse `json:"transactions"`
	Balances     map[string]string     `json:"balances"`
}

func toBatchResponse(res ledger.BatchResult) batchResponse {
	out := batchResponse{
		Transactions: make([]transactionResponse, 0, len(res.Transactions)),
		Balances:     make(map[string]string, len(res.Balances)),
	}
	for _, t := range res.Transactions {
		out.Transactions = append(out.Transactions, toTransactionResponse(t))
	}
	for account, balance := range res.Balances {
		out.Balances[string(account)] = ledger.FormatDecimal(balance)
	}
	return out
}

// enquiryResponse is the account enquiry screen: the customer plus its
// transaction history.
type enquiryResponse struct {
	Customer     customerResponse      `json:"customer"`
	Transactions []transactionResponse `json:"transactions"`
}

type errorResponse struct {
	Error string `json:"error"`
	// Index identifies the failing batch item, when one is identifiable.
	Index *int `json:"index,omitempty"`
}
