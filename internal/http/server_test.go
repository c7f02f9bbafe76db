package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ispledger/internal/auth"
	"ispledger/internal/core"
	"ispledger/internal/log"
	"ispledger/internal/metrics"
	"ispledger/internal/middleware/ratelimit"
	"ispledger/internal/schema"
	"ispledger/internal/store"
)

var fixedNow = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, rl ratelimit.Config) (*Server, *store.Store) {
	t.Helper()
	n := 0
	ids := func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	loader := schema.NewLoader(schema.Env{Now: func() time.Time { return fixedNow }})
	st, err := store.Open(context.Background(),
		store.NewDocumentPersister(store.NewMemoryDocuments(), loader),
		store.WithClock(func() time.Time { return fixedNow }),
		store.WithIDs(ids),
		store.WithLogger(log.Nop()))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	tokens, err := auth.NewTokens("test-secret-test-secret-test-secret", time.Hour)
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	if rl.RequestsPerSecond == 0 {
		rl = ratelimit.Config{RequestsPerSecond: 1000, Burst: 1000, CleanupInterval: time.Minute, IdleAfter: time.Minute}
	}
	srv, err := NewServer(":0", Deps{
		Store:     st,
		Tokens:    tokens,
		Metrics:   metrics.New(),
		Logger:    log.Nop(),
		RateLimit: rl,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { srv.limiter.Stop() })
	return srv, st
}

func do(t *testing.T, srv *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func login(t *testing.T, srv *Server) string {
	t.Helper()
	rr := do(t, srv, http.MethodPost, "/api/login", "", map[string]string{"password": core.DefaultAccessKey})
	if rr.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var session auth.Session
	if err := json.NewDecoder(rr.Body).Decode(&session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return session.Token
}

func decodeInto[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rr.Body.String())
	}
	return v
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, ratelimit.Config{})
	rr := do(t, srv, http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Errorf("security headers missing: %v", rr.Header())
	}
	if rr.Header().Get(log.RequestIDHeader) == "" {
		t.Errorf("expected a request id header")
	}
}

func TestAPIRequiresToken(t *testing.T) {
	srv, _ := newTestServer(t, ratelimit.Config{})
	if rr := do(t, srv, http.MethodGet, "/api/state", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, "/api/state", "garbage", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", rr.Code)
	}
}

func TestLogin(t *testing.T) {
	srv, st := newTestServer(t, ratelimit.Config{})

	rr := do(t, srv, http.MethodPost, "/api/login", "", map[string]string{"password": "wrong"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong key, got %d", rr.Code)
	}

	token := login(t, srv)
	if token == "" {
		t.Fatal("expected a token")
	}
	if auth.NeedsUpgrade(st.Snapshot().Settings.PasswordHash) {
		t.Error("legacy access key should be rehashed after login")
	}
	if rr := do(t, srv, http.MethodGet, "/api/state", token, nil); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rr.Code)
	}
}

func TestChangePasswordAndRecover(t *testing.T) {
	srv, _ := newTestServer(t, ratelimit.Config{})
	token := login(t, srv)

	rr := do(t, srv, http.MethodPost, "/api/password", token, map[string]string{
		"current": core.DefaultAccessKey, "next": "s3cret", "securityAnswer": "Rex",
	})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("change password: expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
	if rr := do(t, srv, http.MethodPost, "/api/login", "", map[string]string{"password": core.DefaultAccessKey}); rr.Code != http.StatusUnauthorized {
		t.Fatalf("old key should be rejected, got %d", rr.Code)
	}

	if rr := do(t, srv, http.MethodPost, "/api/recovery", "", map[string]string{"answer": "cat", "next": "other"}); rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong answer should be rejected, got %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodPost, "/api/recovery", "", map[string]string{"answer": "  rex ", "next": "other"}); rr.Code != http.StatusNoContent {
		t.Fatalf("recovery: expected 204, got %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodPost, "/api/login", "", map[string]string{"password": "other"}); rr.Code != http.StatusOK {
		t.Fatalf("login with recovered key: expected 200, got %d", rr.Code)
	}
}

func TestRecoverWithImportedAnswer(t *testing.T) {
	srv, st := newTestServer(t, ratelimit.Config{})
	state := st.Snapshot()
	state.Settings.SecurityQuestion = "Which city were you born in?"
	state.Settings.SecurityAnswerHash = core.LegacyHash("Dhaka")
	if err := st.Replace(context.Background(), state); err != nil {
		t.Fatalf("replace: %v", err)
	}

	rr := do(t, srv, http.MethodPost, "/api/recovery", "", map[string]string{"answer": "Khulna", "next": "other"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong answer should be rejected, got %d", rr.Code)
	}
	if body := decodeInto[ErrorBody](t, rr); body.Error != "incorrect security answer" {
		t.Errorf("unexpected error message %q", body.Error)
	}

	if rr := do(t, srv, http.MethodPost, "/api/recovery", "", map[string]string{"answer": "Dhaka", "next": "other"}); rr.Code != http.StatusNoContent {
		t.Fatalf("recovery: expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestClientValidation(t *testing.T) {
	srv, _ := newTestServer(t, ratelimit.Config{})
	token := login(t, srv)

	rr := do(t, srv, http.MethodPost, "/api/clients", token, map[string]any{"username": "u1"})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	body := decodeInto[ErrorBody](t, rr)
	if body.Fields["name"] != "required" {
		t.Errorf("expected name to be reported as required, got %v", body.Fields)
	}

	rr = do(t, srv, http.MethodPost, "/api/clients", token, map[string]any{"username": "u1", "name": "A", "bogus": 1})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unknown fields: expected 422, got %d", rr.Code)
	}
}

func TestClientAndPaymentFlow(t *testing.T) {
	srv, _ := newTestServer(t, ratelimit.Config{})
	token := login(t, srv)

	rr := do(t, srv, http.MethodPost, "/api/clients", token, map[string]any{
		"username": "alice", "name": "Alice", "area": "North", "baseMonthlyFee": 500,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create client: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	client := decodeInto[core.Client](t, rr)

	rr = do(t, srv, http.MethodPost, "/api/clients", token, map[string]any{"username": "ALICE", "name": "Other"})
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate username: expected 409, got %d", rr.Code)
	}

	rr = do(t, srv, http.MethodGet, "/api/records?month=2025-01", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list records: expected 200, got %d", rr.Code)
	}
	records := decodeInto[[]core.MonthlyRecord](t, rr)
	if len(records) != 1 || records[0].ClientID != client.ID {
		t.Fatalf("expected one record for the new client, got %+v", records)
	}

	rr = do(t, srv, http.MethodPut, "/api/records/"+records[0].ID+"/payment", token, map[string]any{
		"paidAmount": 500, "paymentDate": "2025-01-15", "receiptNo": "R-1",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("payment: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	paid := decodeInto[core.MonthlyRecord](t, rr)
	if paid.Status != core.StatusPaid {
		t.Errorf("expected Paid, got %s", paid.Status)
	}

	rr = do(t, srv, http.MethodGet, "/api/records?month=2025-01&status=unpaid", token, nil)
	if got := decodeInto[[]core.MonthlyRecord](t, rr); len(got) != 0 {
		t.Errorf("status filter: expected no unpaid records, got %d", len(got))
	}

	rr = do(t, srv, http.MethodPut, "/api/records/missing/payment", token, map[string]any{"paidAmount": 1})
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown record: expected 404, got %d", rr.Code)
	}

	rr = do(t, srv, http.MethodGet, "/api/dashboard?month=2025-01", token, nil)
	if rr.Code != http.StatusOK {
		t.Errorf("dashboard: expected 200, got %d", rr.Code)
	}
}

func TestRollover(t *testing.T) {
	srv, _ := newTestServer(t, ratelimit.Config{})
	token := login(t, srv)
	do(t, srv, http.MethodPost, "/api/clients", token, map[string]any{"username": "bob", "name": "Bob", "baseMonthlyFee": 300})

	rr := do(t, srv, http.MethodPost, "/api/rollover", token, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("rollover: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	res := decodeInto[rolloverResponse](t, rr)
	if res.Month != "2025-02" || res.Records != 1 {
		t.Errorf("unexpected rollover result %+v", res)
	}

	rr = do(t, srv, http.MethodPost, "/api/rollover", token, map[string]string{"month": "2025-02"})
	if rr.Code != http.StatusConflict {
		t.Errorf("repeat rollover: expected 409, got %d", rr.Code)
	}
}

func TestExpenseLedger(t *testing.T) {
	srv, _ := newTestServer(t, ratelimit.Config{})
	token := login(t, srv)

	rr := do(t, srv, http.MethodPost, "/api/expenses", token, map[string]any{
		"date": "2025-01-10", "amount": 1200, "type": "Debit", "category": "Office Rent", "description": "January rent",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create expense: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = do(t, srv, http.MethodPost, "/api/expenses", token, map[string]any{
		"date": "10/01/2025", "amount": 1, "type": "Debit", "description": "bad date",
	})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad date: expected 422, got %d", rr.Code)
	}

	rr = do(t, srv, http.MethodGet, "/api/expenses?month=2025-01", token, nil)
	if got := decodeInto[[]core.ExpenseTransaction](t, rr); len(got) != 1 {
		t.Errorf("expected one expense, got %d", len(got))
	}
	if rr := do(t, srv, http.MethodGet, "/api/ledger", token, nil); rr.Code != http.StatusOK {
		t.Errorf("ledger: expected 200, got %d", rr.Code)
	}
}

func TestInventoryEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, ratelimit.Config{})
	token := login(t, srv)

	rr := do(t, srv, http.MethodPost, "/api/inventory", token, map[string]any{
		"name": "ONU", "type": "Device", "buyPrice": 1000, "sellPrice": 1500, "stockCount": 1,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create item: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	item := decodeInto[core.InventoryItem](t, rr)

	rr = do(t, srv, http.MethodPost, "/api/inventory/"+item.ID+"/stock-out", token, map[string]any{
		"quantity": 2, "reason": "Damaged",
	})
	if rr.Code != http.StatusConflict {
		t.Errorf("stock out beyond stock: expected 409, got %d", rr.Code)
	}

	rr = do(t, srv, http.MethodPost, "/api/inventory/"+item.ID+"/restock", token, map[string]any{"quantity": 0})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("zero restock: expected 422, got %d", rr.Code)
	}
}

func TestDiagramUndo(t *testing.T) {
	srv, st := newTestServer(t, ratelimit.Config{})
	token := login(t, srv)

	rr := do(t, srv, http.MethodPost, "/api/diagram/nodes", token, map[string]any{"x": 10, "y": 20})
	if rr.Code != http.StatusOK {
		t.Fatalf("add node: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeInto[diagramResponse](t, rr)
	if len(resp.Diagram.Nodes) != 2 || !resp.CanUndo {
		t.Fatalf("expected root plus new node with undo, got %+v", resp)
	}
	if got := len(st.Snapshot().NetworkDiagram.Nodes); got != 2 {
		t.Fatalf("expected diagram to be saved, got %d nodes", got)
	}

	rr = do(t, srv, http.MethodPost, "/api/diagram/undo", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("undo: expected 200, got %d", rr.Code)
	}
	if got := len(st.Snapshot().NetworkDiagram.Nodes); got != 1 {
		t.Errorf("expected undo to be saved, got %d nodes", got)
	}

	rr = do(t, srv, http.MethodPost, "/api/diagram/undo", token, nil)
	if rr.Code != http.StatusConflict {
		t.Errorf("empty undo: expected 409, got %d", rr.Code)
	}
}

func TestSettingsHideCredentials(t *testing.T) {
	srv, _ := newTestServer(t, ratelimit.Config{})
	token := login(t, srv)

	rr := do(t, srv, http.MethodPatch, "/api/settings", token, map[string]any{"companyName": "Acme Net"})
	if rr.Code != http.StatusOK {
		t.Fatalf("patch settings: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	settings := decodeInto[core.Settings](t, rr)
	if settings.CompanyName != "Acme Net" {
		t.Errorf("expected company name to change, got %q", settings.CompanyName)
	}
	if settings.PasswordHash != "" || settings.SecurityAnswerHash != "" {
		t.Error("credential hashes must not be returned")
	}
}

func TestBackupsUnconfigured(t *testing.T) {
	srv, _ := newTestServer(t, ratelimit.Config{})
	token := login(t, srv)
	if rr := do(t, srv, http.MethodPost, "/api/backups", token, nil); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rr.Code)
	}
}

func TestMetricsRecordRoutes(t *testing.T) {
	srv, _ := newTestServer(t, ratelimit.Config{})
	do(t, srv, http.MethodGet, "/healthz", "", nil)

	rr := do(t, srv, http.MethodGet, "/metrics", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `route="GET /healthz"`) {
		t.Errorf("expected healthz route in metrics output")
	}
}

func TestRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, ratelimit.Config{
		RequestsPerSecond: 0.001,
		Burst:             1,
		CleanupInterval:   time.Minute,
		IdleAfter:         time.Minute,
	})
	if rr := do(t, srv, http.MethodGet, "/healthz", "", nil); rr.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", rr.Code)
	}
	rr := do(t, srv, http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}
