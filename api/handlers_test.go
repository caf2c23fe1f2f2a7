package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/balance-engine/api"
	"github.com/warp/balance-engine/ledger"
	"github.com/warp/balance-engine/ledger/store"
	"github.com/warp/balance-engine/logging"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) (*httptest.Server, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	log := logging.Discard()
	h := api.NewHandler(mem, ledger.NewService(mem, log), ledger.NewBatchProcessor(mem, log), log)
	srv := httptest.NewServer(api.NewRouter(h))
	t.Cleanup(srv.Close)
	return srv, mem
}

func do(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func createCustomer(t *testing.T, srv *httptest.Server, account, name, balance string) {
	t.Helper()
	resp := do(t, http.MethodPost, srv.URL+"/api/customers/", map[string]string{
		"account": account, "name": name, "balance": balance,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func txBody(account, amount, direction, reference string) map[string]string {
	return map[string]string{
		"account":   account,
		"amount":    amount,
		"direction": direction,
		"reference": reference,
	}
}

// =============================================================================
// CUSTOMERS
// =============================================================================

func TestCustomerEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	createCustomer(t, srv, "ACC001", "Alice Smith", "1500.00")

	// Duplicate account code.
	resp := do(t, http.MethodPost, srv.URL+"/api/customers/", map[string]string{
		"account": "ACC001", "name": "Imposter", "balance": "0.00",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Get.
	resp = do(t, http.MethodGet, srv.URL+"/api/customers/ACC001", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cust struct {
		Account string `json:"account"`
		Name    string `json:"name"`
		Balance string `json:"balance"`
	}
	decode(t, resp, &cust)
	assert.Equal(t, "Alice Smith", cust.Name)
	assert.Equal(t, "1500.00", cust.Balance)

	// Rename; balance is not editable through this endpoint.
	resp = do(t, http.MethodPut, srv.URL+"/api/customers/ACC001", map[string]string{"name": "Alice Jones"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &cust)
	assert.Equal(t, "Alice Jones", cust.Name)
	assert.Equal(t, "1500.00", cust.Balance)

	// Delete, then 404.
	resp = do(t, http.MethodDelete, srv.URL+"/api/customers/ACC001", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, http.MethodGet, srv.URL+"/api/customers/ACC001", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateCustomer_Validation(t *testing.T) {
	srv, _ := newTestServer(t)

	cases := []map[string]string{
		{"account": "", "name": "X", "balance": "0.00"},
		{"account": "WAY-TOO-LONG-ACCOUNT-CODE", "name": "X", "balance": "0.00"},
		{"account": "ACC001", "name": "", "balance": "0.00"},
		{"account": "ACC001", "name": "X", "balance": "not-a-number"},
	}
	for _, body := range cases {
		resp := do(t, http.MethodPost, srv.URL+"/api/customers/", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestTransactionLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	createCustomer(t, srv, "ACC001", "Alice Smith", "1000.00")

	// Create a debit; the single-letter direction code is accepted.
	resp := do(t, http.MethodPost, srv.URL+"/api/transactions/", txBody("ACC001", "100.00", "D", "REF0000001"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		Transaction struct {
			Number    int64  `json:"number"`
			Direction string `json:"direction"`
			Amount    string `json:"amount"`
		} `json:"transaction"`
		Balances map[string]string `json:"balances"`
	}
	decode(t, resp, &created)
	assert.Equal(t, int64(1), created.Transaction.Number)
	assert.Equal(t, "D", created.Transaction.Direction)
	assert.Equal(t, "1100.00", created.Balances["ACC001"])

	// Update it down to a credit.
	resp = do(t, http.MethodPut, srv.URL+"/api/transactions/1", txBody("ACC001", "50.00", "credit", "REF0000001"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &created)
	assert.Equal(t, "950.00", created.Balances["ACC001"])

	// Delete restores the starting balance.
	resp = do(t, http.MethodDelete, srv.URL+"/api/transactions/1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &created)
	assert.Equal(t, "1000.00", created.Balances["ACC001"])

	resp = do(t, http.MethodGet, srv.URL+"/api/transactions/1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateTransaction_InsufficientBalance(t *testing.T) {
	srv, mem := newTestServer(t)
	createCustomer(t, srv, "ACC001", "Alice Smith", "100.00")

	resp := do(t, http.MethodPost, srv.URL+"/api/transactions/", txBody("ACC001", "150.00", "C", "REF0000001"))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	c, err := mem.GetCustomer(context.Background(), "ACC001")
	require.NoError(t, err)
	assert.Equal(t, "100.00", ledger.FormatDecimal(c.Balance))
}

func TestCreateTransaction_BadInput(t *testing.T) {
	srv, _ := newTestServer(t)
	createCustomer(t, srv, "ACC001", "Alice Smith", "100.00")

	cases := []map[string]string{
		txBody("ACC001", "10.00", "X", "REF0000001"),  // bad direction
		txBody("ACC001", "-10.00", "D", "REF0000001"), // negative amount
		txBody("ACC001", "ten", "D", "REF0000001"),    // not a decimal
		txBody("ACC001", "10.00", "D", ""),            // missing reference
		txBody("ACC001", "5.004", "D", "REF0000001"),  // three fraction digits
		{"account": "ACC001", "amount": "10.00", "direction": "D", "reference": "REF0000001", "date": "yesterday"},
	}
	for _, body := range cases {
		resp := do(t, http.MethodPost, srv.URL+"/api/transactions/", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	}
}

func TestAccountEnquiry(t *testing.T) {
	srv, _ := newTestServer(t)
	createCustomer(t, srv, "ACC001", "Alice Smith", "1000.00")

	resp := do(t, http.MethodPost, srv.URL+"/api/transactions/", txBody("ACC001", "100.00", "D", "REF0000001"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = do(t, http.MethodPost, srv.URL+"/api/transactions/", txBody("ACC001", "50.00", "C", "REF0000002"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/api/customers/ACC001/enquiry", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var enquiry struct {
		Customer struct {
			Balance string `json:"balance"`
		} `json:"customer"`
		Transactions []struct {
			Reference string `json:"reference"`
		} `json:"transactions"`
	}
	decode(t, resp, &enquiry)
	assert.Equal(t, "1050.00", enquiry.Customer.Balance)
	require.Len(t, enquiry.Transactions, 2)
	assert.Equal(t, "REF0000001", enquiry.Transactions[0].Reference)
}

// =============================================================================
// BATCH
// =============================================================================

func TestApplyBatch_Endpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	createCustomer(t, srv, "ACC001", "Alice Smith", "1000.00")

	resp := do(t, http.MethodPost, srv.URL+"/api/batches", map[string]any{
		"items": []map[string]string{
			txBody("ACC001", "20.00", "D", "REF0000001"),
			txBody("ACC001", "30.00", "C", "REF0000002"),
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var batch struct {
		Transactions []struct {
			Number int64 `json:"number"`
		} `json:"transactions"`
		Balances map[string]string `json:"balances"`
	}
	decode(t, resp, &batch)
	assert.Len(t, batch.Transactions, 2)
	assert.Equal(t, "990.00", batch.Balances["ACC001"])
}

func TestApplyBatch_FailureReportsItemIndex(t *testing.T) {
	srv, mem := newTestServer(t)
	createCustomer(t, srv, "ACC001", "Alice Smith", "1000.00")
	createCustomer(t, srv, "ACC002", "Bob Johnson", "5.00")

	resp := do(t, http.MethodPost, srv.URL+"/api/batches", map[string]any{
		"items": []map[string]string{
			txBody("ACC001", "100.00", "D", "REF0000001"),
			txBody("ACC002", "50.00", "C", "REF0000002"),
			txBody("ACC001", "10.00", "D", "REF0000003"),
		},
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var errResp struct {
		Error string `json:"error"`
		Index *int   `json:"index"`
	}
	decode(t, resp, &errResp)
	require.NotNil(t, errResp.Index)
	assert.Equal(t, 1, *errResp.Index)

	// All-or-nothing: nothing persisted.
	c, err := mem.GetCustomer(context.Background(), "ACC001")
	require.NoError(t, err)
	assert.Equal(t, "1000.00", ledger.FormatDecimal(c.Balance))
	txs, err := mem.ListTransactions(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, txs)
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func TestRequestID_GeneratedAndEchoed(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/api/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "trace-me")
	echoed, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer echoed.Body.Close()
	assert.Equal(t, "trace-me", echoed.Header.Get("X-Request-ID"))
}
