package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"retailpos/backend/internal/cache"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/service"
	"retailpos/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopReceiptCache{}, "main-store", 30, 300)
	auth := NewAuthManager("test-secret-key", time.Hour, "739154", repo)

	return New(svc, auth, "*")
}

// mustHashPassword generates a bcrypt hash of the given password or fails the test.
func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

// doJSON performs an authenticated JSON request against the full handler
// chain and returns the recorder.
func doJSON(t *testing.T, api *API, method string, path string, token string, csrf string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "admin123",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["access_token"] == "" || body["access_token"] == nil {
		t.Fatalf("expected access_token in response, got %v", body)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleProducts_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleProducts_WithValidToken(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	rec := doJSON(t, api, http.MethodGet, "/api/v1/products", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["products"] == nil {
		t.Fatalf("expected products key in response, got %v", body)
	}
}

// TestSaleAndReturnFlow drives the full terminal flow over HTTP: open the
// register, ring up a cash sale, look up the receipt, then return a line.
func TestSaleAndReturnFlow(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/register/open", token, csrf, domain.RegisterOpenRequest{
		StoreID:             "main-store",
		OpeningBalanceCents: 10000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register open: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/sales", token, csrf, domain.SaleRequest{
		StoreID:             "main-store",
		PaymentMethod:       domain.PaymentMethodCash,
		AmountTenderedCents: 5000,
		Items: []domain.SaleLine{
			{ProductID: "prd-cola-01", Qty: 2},
			{ProductID: "prd-water-01", Qty: 1},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("sale: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var saleResp domain.SaleResponse
	if err := json.NewDecoder(rec.Body).Decode(&saleResp); err != nil {
		t.Fatalf("decode sale response: %v", err)
	}
	// 2x1200 at 10% plus 1x500 at 0%: subtotal 2900, tax 240, total 3140.
	if saleResp.Sale.TotalCents != 3140 {
		t.Fatalf("expected total 3140, got %d", saleResp.Sale.TotalCents)
	}
	if saleResp.Sale.ChangeCents != 1860 {
		t.Fatalf("expected change 1860, got %d", saleResp.Sale.ChangeCents)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/sales/receipt/"+saleResp.Sale.ReceiptNumber, token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("receipt lookup: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var lookup domain.ReceiptLookup
	if err := json.NewDecoder(rec.Body).Decode(&lookup); err != nil {
		t.Fatalf("decode receipt lookup: %v", err)
	}
	if len(lookup.Items) != 2 {
		t.Fatalf("expected 2 lookup items, got %d", len(lookup.Items))
	}

	var colaItemID string
	for _, item := range lookup.Items {
		if item.ProductID == "prd-cola-01" {
			colaItemID = item.SaleItemID
		}
	}
	if colaItemID == "" {
		t.Fatalf("cola line missing from receipt lookup")
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/returns", token, csrf, domain.ReturnRequest{
		OriginalSaleID: saleResp.Sale.ID,
		Reason:         "damaged packaging",
		Items:          []domain.ReturnLine{{SaleItemID: colaItemID, Qty: 1}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("return: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var retResp domain.ReturnResponse
	if err := json.NewDecoder(rec.Body).Decode(&retResp); err != nil {
		t.Fatalf("decode return response: %v", err)
	}
	if retResp.Return.RefundCents != 1200 {
		t.Fatalf("expected refund 1200, got %d", retResp.Return.RefundCents)
	}
	if retResp.Return.Status != domain.ReturnStatusProcessed {
		t.Fatalf("expected processed return, got %s", retResp.Return.Status)
	}
}

func TestSaleWithoutOpenRegisterRejected(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/sales", token, csrf, domain.SaleRequest{
		StoreID:             "main-store",
		PaymentMethod:       domain.PaymentMethodCash,
		AmountTenderedCents: 5000,
		Items:               []domain.SaleLine{{ProductID: "prd-cola-01", Qty: 1}},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 without open register, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestPriceOverrideForbiddenForCashier(t *testing.T) {
	api := newTestAPI(t)
	csrf := fetchCSRFToken(t, api)
	token := login(t, api, "cashier", "cashier123")

	rec := doJSON(t, api, http.MethodPost, "/api/v1/register/open", token, csrf, domain.RegisterOpenRequest{
		StoreID:             "main-store",
		OpeningBalanceCents: 5000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register open: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	override := int64(100)
	rec = doJSON(t, api, http.MethodPost, "/api/v1/sales", token, csrf, domain.SaleRequest{
		StoreID:             "main-store",
		PaymentMethod:       domain.PaymentMethodCash,
		AmountTenderedCents: 5000,
		Items:               []domain.SaleLine{{ProductID: "prd-cola-01", Qty: 1, UnitPriceCents: &override}},
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier price override, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestRejectReturnRequiresValidPIN(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/returns/ret-unknown/reject", token, csrf, domain.RejectReturnRequest{
		ManagerPIN: "000000",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for wrong manager pin, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/returns/ret-unknown/reject", token, csrf, domain.RejectReturnRequest{
		ManagerPIN: "739154",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown return with valid pin, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHoldResumeOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/holds", token, csrf, domain.HoldSaleRequest{
		StoreID: "main-store",
		Note:    "customer forgot wallet",
		Items:   []domain.SaleLine{{ProductID: "prd-bread-01", Qty: 1}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("hold: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var held domain.HeldSaleResponse
	if err := json.NewDecoder(rec.Body).Decode(&held); err != nil {
		t.Fatalf("decode hold response: %v", err)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/holds/"+held.HeldSale.ID+"/resume", token, csrf, struct{}{})
	if rec.Code != http.StatusOK {
		t.Fatalf("resume: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/holds/"+held.HeldSale.ID+"/resume", token, csrf, struct{}{})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second resume: expected 404, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func login(t *testing.T, api *API, username string, password string) string {
	t.Helper()

	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = fmt.Sprintf("127.0.0.%d:4000", len(username))
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("login as %s failed, status %d (body: %s)", username, res.Code, res.Body.String())
	}

	var payload domain.LoginResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode login response failed: %v", err)
	}
	return payload.AccessToken
}

// TestMustHashPassword verifies that the test helper produces valid bcrypt hashes
// (used to confirm test infrastructure is sound).
func TestMustHashPassword(t *testing.T) {
	hash := mustHashPassword(t, "secret")
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret")); err != nil {
		t.Fatalf("hash verification failed: %v", err)
	}
}
