package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pinturapos/backend/internal/cache"
	"pinturapos/backend/internal/domain"
	"pinturapos/backend/internal/locator"
	"pinturapos/backend/internal/service"
	"pinturapos/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) (*API, *memory.Store) {
	t.Helper()

	repo := memory.NewSeeded()
	branchLocator := locator.NewEngine(cache.NoopNearestBranchCache{}, time.Second)
	svc := service.New(repo, branchLocator)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*"), repo
}

func TestHandleHealth(t *testing.T) {
	api, _ := newTestAPI(t)
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
	api, _ := newTestAPI(t)
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
	api, _ := newTestAPI(t)
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
	api, _ := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleProducts_WithValidToken(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, "admin", "admin123")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

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

func TestCreateInvoiceEndToEnd(t *testing.T) {
	api, repo := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, "cajero", "cajero123")
	csrf := fetchCSRFToken(t, api)
	repo.SetStock(1, 1, 5)

	payload, _ := json.Marshal(domain.InvoiceCreateRequest{
		ClientID: 1,
		BranchID: 1,
		Lines: []domain.InvoiceLineInput{
			{ProductID: 1, Quantity: 3, UnitPriceCents: 1000},
		},
		Payments: []domain.PaymentInput{
			{PaymentTypeID: 1, AmountCents: 3000},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", csrf)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body struct {
		Invoice domain.Invoice `json:"invoice"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Invoice.TotalCents != 3000 {
		t.Fatalf("expected total 3000, got %d", body.Invoice.TotalCents)
	}
	if body.Invoice.Status != domain.InvoiceStatusActive {
		t.Fatalf("expected status vigente, got %s", body.Invoice.Status)
	}
}

func TestCreateInvoicePaymentMismatchReturns409(t *testing.T) {
	api, repo := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, "cajero", "cajero123")
	csrf := fetchCSRFToken(t, api)
	repo.SetStock(1, 1, 5)

	payload, _ := json.Marshal(domain.InvoiceCreateRequest{
		ClientID: 1,
		BranchID: 1,
		Lines: []domain.InvoiceLineInput{
			{ProductID: 1, Quantity: 3, UnitPriceCents: 1000},
		},
		Payments: []domain.PaymentInput{
			{PaymentTypeID: 1, AmountCents: 2999},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", csrf)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestCreateInvoiceValidationReturnsMessageList(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, "cajero", "cajero123")
	csrf := fetchCSRFToken(t, api)

	payload, _ := json.Marshal(domain.InvoiceCreateRequest{ClientID: 1})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", csrf)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body struct {
		Errors []string `json:"errors"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Errors) < 3 {
		t.Fatalf("expected every problem reported at once, got %v", body.Errors)
	}
}

func TestCancelInvoiceFlow(t *testing.T) {
	api, repo := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, "cajero", "cajero123")
	csrf := fetchCSRFToken(t, api)
	repo.SetStock(1, 1, 5)

	payload, _ := json.Marshal(domain.InvoiceCreateRequest{
		ClientID: 1,
		BranchID: 1,
		Lines:    []domain.InvoiceLineInput{{ProductID: 1, Quantity: 1, UnitPriceCents: 1000}},
		Payments: []domain.PaymentInput{{PaymentTypeID: 1, AmountCents: 1000}},
	})
	createReq := httptest.NewRequest(http.MethodPost, "/api/v1/invoices", bytes.NewReader(payload))
	createReq.Header.Set("Content-Type", "application/json")
	createReq.Header.Set("Authorization", "Bearer "+token)
	createReq.Header.Set("X-CSRF-Token", csrf)
	createRec := httptest.NewRecorder()
	handler.ServeHTTP(createRec, createReq)
	if createRec.Code != http.StatusCreated {
		t.Fatalf("create failed: %d %s", createRec.Code, createRec.Body.String())
	}
	var created struct {
		Invoice domain.Invoice `json:"invoice"`
	}
	if err := json.NewDecoder(createRec.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	cancelPath := fmt.Sprintf("/api/v1/invoices/%d/cancel", created.Invoice.ID)

	cancelReq := httptest.NewRequest(http.MethodPost, cancelPath, nil)
	cancelReq.Header.Set("Authorization", "Bearer "+token)
	cancelReq.Header.Set("X-CSRF-Token", csrf)
	cancelRec := httptest.NewRecorder()
	handler.ServeHTTP(cancelRec, cancelReq)
	if cancelRec.Code != http.StatusOK {
		t.Fatalf("expected cancel to succeed, got %d (body: %s)", cancelRec.Code, cancelRec.Body.String())
	}

	var cancelled struct {
		Invoice domain.Invoice `json:"invoice"`
	}
	if err := json.NewDecoder(cancelRec.Body).Decode(&cancelled); err != nil {
		t.Fatalf("decode cancel response: %v", err)
	}
	if cancelled.Invoice.Status != domain.InvoiceStatusCancelled {
		t.Fatalf("expected status anulada, got %s", cancelled.Invoice.Status)
	}

	repeat := httptest.NewRequest(http.MethodPost, cancelPath, nil)
	repeat.Header.Set("Authorization", "Bearer "+token)
	repeat.Header.Set("X-CSRF-Token", csrf)
	repeatRec := httptest.NewRecorder()
	handler.ServeHTTP(repeatRec, repeat)
	if repeatRec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on repeat cancel, got %d", repeatRec.Code)
	}
}

func TestProductMutationForbiddenForCashier(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, "cajero", "cajero123")
	csrf := fetchCSRFToken(t, api)

	payload, _ := json.Marshal(domain.ProductCreateRequest{
		Name:                "Sellador Acrilico 1gal",
		BrandID:             1,
		CategoryID:          1,
		RetailPriceCents:    15500,
		WholesalePriceCents: 13900,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", csrf)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier creating a product, got %d", rec.Code)
	}
}

func TestInvoicePDFDownload(t *testing.T) {
	api, repo := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, "cajero", "cajero123")
	csrf := fetchCSRFToken(t, api)
	repo.SetStock(1, 1, 5)

	payload, _ := json.Marshal(domain.InvoiceCreateRequest{
		ClientID: 1,
		BranchID: 1,
		Series:   "A",
		Number:   1042,
		Lines:    []domain.InvoiceLineInput{{ProductID: 1, Quantity: 1, UnitPriceCents: 18500}},
		Payments: []domain.PaymentInput{{PaymentTypeID: 1, AmountCents: 18500}},
	})
	createReq := httptest.NewRequest(http.MethodPost, "/api/v1/invoices", bytes.NewReader(payload))
	createReq.Header.Set("Content-Type", "application/json")
	createReq.Header.Set("Authorization", "Bearer "+token)
	createReq.Header.Set("X-CSRF-Token", csrf)
	createRec := httptest.NewRecorder()
	handler.ServeHTTP(createRec, createReq)
	if createRec.Code != http.StatusCreated {
		t.Fatalf("create failed: %d %s", createRec.Code, createRec.Body.String())
	}
	var created struct {
		Invoice domain.Invoice `json:"invoice"`
	}
	if err := json.NewDecoder(createRec.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/invoices/%d/pdf", created.Invoice.ID), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("expected application/pdf, got %q", got)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("expected a PDF document body")
	}
}

func TestSuppliersCatalog(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, "cajero", "cajero123")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/catalogs/suppliers", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body struct {
		Suppliers []domain.Supplier `json:"suppliers"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Suppliers) == 0 {
		t.Fatalf("expected at least one supplier in catalog")
	}
}

func TestMovementEndpointForbiddenForCashier(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, "cajero", "cajero123")
	csrf := fetchCSRFToken(t, api)

	payload, _ := json.Marshal(domain.MovementRequest{
		BranchID: 1,
		Type:     domain.MovementPurchase,
		Items:    []domain.MovementItem{{ProductID: 1, Quantity: 5}},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/inventory/movements", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", csrf)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier on movements, got %d", rec.Code)
	}
}

func TestReportsForbiddenForCashier(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, "cajero", "cajero123")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/sales/summary", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier on reports, got %d", rec.Code)
	}
}

func TestNearestBranchEndpoint(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, "cajero", "cajero123")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/clients/1/nearest-branch?lat=14.6407&lng=-90.5133", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body domain.NearestBranch
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Branch.Name != "Sucursal Centro" {
		t.Fatalf("expected Sucursal Centro, got %s", body.Branch.Name)
	}
}

func TestUnknownInvoiceReturns404(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, "admin", "admin123")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices/9999", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
