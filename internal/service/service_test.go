package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pinturapos/backend/internal/cache"
	"pinturapos/backend/internal/domain"
	"pinturapos/backend/internal/locator"
	"pinturapos/backend/internal/store"
	"pinturapos/backend/internal/store/memory"
)

func newTestService() (*Service, *memory.Store) {
	repo := memory.NewSeeded()
	branchLocator := locator.NewEngine(cache.NoopNearestBranchCache{}, 5*time.Second)
	return New(repo, branchLocator), repo
}

func cashierContext() context.Context {
	return WithActor(context.Background(), domain.Actor{
		UserID:   2,
		Username: "cajero",
		Role:     domain.RoleCashier,
	})
}

func stockAt(t *testing.T, repo *memory.Store, branchID int64, productID int64) int {
	t.Helper()
	qty, err := repo.GetStock(context.Background(), branchID, productID)
	if err != nil {
		t.Fatalf("get stock failed: %v", err)
	}
	return qty
}

func TestCreateInvoiceCommitsAndDecrementsStock(t *testing.T) {
	svc, repo := newTestService()
	repo.SetStock(1, 1, 5)

	invoice, err := svc.CreateInvoice(cashierContext(), domain.InvoiceCreateRequest{
		ClientID: 1,
		BranchID: 1,
		Lines: []domain.InvoiceLineInput{
			{ProductID: 1, Quantity: 3, UnitPriceCents: 1000},
		},
		Payments: []domain.PaymentInput{
			{PaymentTypeID: 1, AmountCents: 3000},
		},
	})
	if err != nil {
		t.Fatalf("create invoice failed: %v", err)
	}
	if invoice.TotalCents != 3000 {
		t.Fatalf("expected total 3000, got %d", invoice.TotalCents)
	}
	if invoice.Status != domain.InvoiceStatusActive {
		t.Fatalf("expected status vigente, got %s", invoice.Status)
	}
	if got := stockAt(t, repo, 1, 1); got != 2 {
		t.Fatalf("expected stock 2 after sale, got %d", got)
	}
}

func TestCreateInvoicePaymentMismatchLeavesStockUntouched(t *testing.T) {
	svc, repo := newTestService()
	repo.SetStock(1, 1, 5)

	_, err := svc.CreateInvoice(cashierContext(), domain.InvoiceCreateRequest{
		ClientID: 1,
		BranchID: 1,
		Lines: []domain.InvoiceLineInput{
			{ProductID: 1, Quantity: 3, UnitPriceCents: 1000},
		},
		Payments: []domain.PaymentInput{
			{PaymentTypeID: 1, AmountCents: 2999},
		},
	})
	if !errors.Is(err, store.ErrPaymentMismatch) {
		t.Fatalf("expected ErrPaymentMismatch, got %v", err)
	}
	if got := stockAt(t, repo, 1, 1); got != 5 {
		t.Fatalf("expected stock to stay at 5, got %d", got)
	}

	invoices, err := svc.ListInvoices(context.Background(), domain.InvoiceListFilter{})
	if err != nil {
		t.Fatalf("list invoices failed: %v", err)
	}
	if len(invoices) != 0 {
		t.Fatalf("expected no invoices after failed sale, got %d", len(invoices))
	}
}

func TestCreateInvoiceRejectsUnknownPaymentType(t *testing.T) {
	svc, repo := newTestService()
	repo.SetStock(1, 1, 5)

	_, err := svc.CreateInvoice(cashierContext(), domain.InvoiceCreateRequest{
		ClientID: 1,
		BranchID: 1,
		Lines: []domain.InvoiceLineInput{
			{ProductID: 1, Quantity: 3, UnitPriceCents: 1000},
		},
		Payments: []domain.PaymentInput{
			{PaymentTypeID: 999, AmountCents: 3000},
		},
	})
	var validation ValidationErrors
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
	if got := stockAt(t, repo, 1, 1); got != 5 {
		t.Fatalf("expected stock to stay at 5, got %d", got)
	}

	invoices, err := svc.ListInvoices(context.Background(), domain.InvoiceListFilter{})
	if err != nil {
		t.Fatalf("list invoices failed: %v", err)
	}
	if len(invoices) != 0 {
		t.Fatalf("expected no invoices after rejected sale, got %d", len(invoices))
	}
}

func TestCreateInvoiceInsufficientStockReportsDetails(t *testing.T) {
	svc, repo := newTestService()
	repo.SetStock(1, 1, 2)

	_, err := svc.CreateInvoice(cashierContext(), domain.InvoiceCreateRequest{
		ClientID: 1,
		BranchID: 1,
		Lines: []domain.InvoiceLineInput{
			{ProductID: 1, Quantity: 3, UnitPriceCents: 1000},
		},
		Payments: []domain.PaymentInput{
			{PaymentTypeID: 1, AmountCents: 3000},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	var detail *store.InsufficientStockError
	if !errors.As(err, &detail) {
		t.Fatalf("expected InsufficientStockError detail, got %v", err)
	}
	if detail.ProductID != 1 || detail.BranchID != 1 || detail.Available != 2 || detail.Requested != 3 {
		t.Fatalf("unexpected detail: %+v", detail)
	}
	if got := stockAt(t, repo, 1, 1); got != 2 {
		t.Fatalf("expected stock to stay at 2, got %d", got)
	}
}

func TestCreateInvoiceLateLineFailureRollsBackEarlierLines(t *testing.T) {
	svc, repo := newTestService()
	repo.SetStock(1, 1, 10)
	repo.SetStock(1, 2, 1)

	_, err := svc.CreateInvoice(cashierContext(), domain.InvoiceCreateRequest{
		ClientID: 1,
		BranchID: 1,
		Lines: []domain.InvoiceLineInput{
			{ProductID: 1, Quantity: 4, UnitPriceCents: 1000},
			{ProductID: 2, Quantity: 2, UnitPriceCents: 2000},
		},
		Payments: []domain.PaymentInput{
			{PaymentTypeID: 1, AmountCents: 8000},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock on the second line, got %v", err)
	}
	if got := stockAt(t, repo, 1, 1); got != 10 {
		t.Fatalf("expected first line stock restored to 10, got %d", got)
	}
	if got := stockAt(t, repo, 1, 2); got != 1 {
		t.Fatalf("expected second line stock to stay at 1, got %d", got)
	}
}

func TestCreateInvoiceDuplicateProductLinesCountCumulatively(t *testing.T) {
	svc, repo := newTestService()
	repo.SetStock(1, 1, 3)

	_, err := svc.CreateInvoice(cashierContext(), domain.InvoiceCreateRequest{
		ClientID: 1,
		BranchID: 1,
		Lines: []domain.InvoiceLineInput{
			{ProductID: 1, Quantity: 2, UnitPriceCents: 1000},
			{ProductID: 1, Quantity: 2, UnitPriceCents: 1000},
		},
		Payments: []domain.PaymentInput{
			{PaymentTypeID: 1, AmountCents: 4000},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected cumulative check to fail, got %v", err)
	}
	if got := stockAt(t, repo, 1, 1); got != 3 {
		t.Fatalf("expected stock to stay at 3, got %d", got)
	}
}

func TestCreateInvoiceConcurrentLastUnit(t *testing.T) {
	svc, repo := newTestService()
	repo.SetStock(1, 1, 1)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateInvoice(cashierContext(), domain.InvoiceCreateRequest{
				ClientID: 1,
				BranchID: 1,
				Lines: []domain.InvoiceLineInput{
					{ProductID: 1, Quantity: 1, UnitPriceCents: 1000},
				},
				Payments: []domain.PaymentInput{
					{PaymentTypeID: 1, AmountCents: 1000},
				},
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded, failed := 0, 0
	for err := range results {
		if err == nil {
			succeeded++
		} else if errors.Is(err, store.ErrInsufficientStock) {
			failed++
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || failed != 1 {
		t.Fatalf("expected exactly one winner, got %d successes and %d stock failures", succeeded, failed)
	}
	if got := stockAt(t, repo, 1, 1); got != 0 {
		t.Fatalf("expected stock 0 after the race, got %d", got)
	}
}

func TestCreateInvoiceSplitPayments(t *testing.T) {
	svc, repo := newTestService()
	repo.SetStock(1, 4, 10)

	invoice, err := svc.CreateInvoice(cashierContext(), domain.InvoiceCreateRequest{
		ClientID: 1,
		BranchID: 1,
		Lines: []domain.InvoiceLineInput{
			{ProductID: 4, Quantity: 2, UnitPriceCents: 24500, DiscountCents: 1000},
		},
		Payments: []domain.PaymentInput{
			{PaymentTypeID: 1, AmountCents: 20000},
			{PaymentTypeID: 2, AmountCents: 28000, Reference: "VISA-9912"},
		},
	})
	if err != nil {
		t.Fatalf("split payment invoice failed: %v", err)
	}
	if invoice.TotalCents != 48000 {
		t.Fatalf("expected total 48000, got %d", invoice.TotalCents)
	}
	if len(invoice.Payments) != 2 {
		t.Fatalf("expected 2 payments, got %d", len(invoice.Payments))
	}
}

func TestCreateInvoiceValidationCollectsAllProblems(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateInvoice(cashierContext(), domain.InvoiceCreateRequest{
		ClientID: 1,
		Lines: []domain.InvoiceLineInput{
			{ProductID: 0, Quantity: 0, UnitPriceCents: -5},
		},
	})
	var validation ValidationErrors
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
	if len(validation) < 4 {
		t.Fatalf("expected line, payment and branch problems together, got %v", validation)
	}
}

func TestCreateInvoiceImplicitClientSurvivesFailedSale(t *testing.T) {
	svc, repo := newTestService()
	repo.SetStock(1, 1, 0)

	_, err := svc.CreateInvoice(cashierContext(), domain.InvoiceCreateRequest{
		NewClient: &domain.NewClientInput{
			FirstName: "Maria",
			LastName:  "Lopez",
			TaxID:     "1234567-8",
		},
		BranchID: 1,
		Lines: []domain.InvoiceLineInput{
			{ProductID: 1, Quantity: 1, UnitPriceCents: 18500},
		},
		Payments: []domain.PaymentInput{
			{PaymentTypeID: 1, AmountCents: 18500},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected stock failure, got %v", err)
	}

	client, err := svc.FindClientByTaxID(context.Background(), "1234567-8")
	if err != nil {
		t.Fatalf("expected implicitly created client to survive, got %v", err)
	}
	if client.FirstName != "Maria" {
		t.Fatalf("unexpected client: %+v", client)
	}
}

func TestCreateInvoiceReusesClientByTaxID(t *testing.T) {
	svc, repo := newTestService()
	repo.SetStock(1, 1, 5)

	invoice, err := svc.CreateInvoice(cashierContext(), domain.InvoiceCreateRequest{
		NewClient: &domain.NewClientInput{
			FirstName: "Otro",
			LastName:  "Nombre",
			TaxID:     "CF",
		},
		BranchID: 1,
		Lines: []domain.InvoiceLineInput{
			{ProductID: 1, Quantity: 1, UnitPriceCents: 18500},
		},
		Payments: []domain.PaymentInput{
			{PaymentTypeID: 1, AmountCents: 18500},
		},
	})
	if err != nil {
		t.Fatalf("create invoice failed: %v", err)
	}
	if invoice.ClientID != 1 {
		t.Fatalf("expected the seeded CF client to be reused, got client %d", invoice.ClientID)
	}
}

func TestCancelInvoiceFlipsStatusWithoutRestoringStock(t *testing.T) {
	svc, repo := newTestService()
	repo.SetStock(1, 1, 5)
	ctx := cashierContext()

	invoice, err := svc.CreateInvoice(ctx, domain.InvoiceCreateRequest{
		ClientID: 1,
		BranchID: 1,
		Lines: []domain.InvoiceLineInput{
			{ProductID: 1, Quantity: 2, UnitPriceCents: 1000},
		},
		Payments: []domain.PaymentInput{
			{PaymentTypeID: 1, AmountCents: 2000},
		},
	})
	if err != nil {
		t.Fatalf("create invoice failed: %v", err)
	}

	cancelled, err := svc.CancelInvoice(ctx, invoice.ID)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if cancelled.Status != domain.InvoiceStatusCancelled {
		t.Fatalf("expected status anulada, got %s", cancelled.Status)
	}
	if cancelled.TotalCents != invoice.TotalCents {
		t.Fatalf("cancellation must not change totals: %d != %d", cancelled.TotalCents, invoice.TotalCents)
	}
	if got := stockAt(t, repo, 1, 1); got != 3 {
		t.Fatalf("cancellation must not restore stock, expected 3, got %d", got)
	}

	_, err = svc.CancelInvoice(ctx, invoice.ID)
	if !errors.Is(err, store.ErrInvoiceNotActive) {
		t.Fatalf("expected ErrInvoiceNotActive on repeat cancel, got %v", err)
	}
}

func TestQuotationDefaultsToWholesalePrice(t *testing.T) {
	svc, _ := newTestService()

	explicit := int64(17000)
	quotation, err := svc.CreateQuotation(context.Background(), domain.QuotationCreateRequest{
		ClientID: 1,
		Lines: []domain.QuotationLineInput{
			{ProductID: 1, Quantity: 2},
			{ProductID: 3, Quantity: 1, UnitPriceCents: &explicit},
		},
	})
	if err != nil {
		t.Fatalf("create quotation failed: %v", err)
	}
	if quotation.Lines[0].UnitPriceCents != 16200 {
		t.Fatalf("expected wholesale default 16200, got %d", quotation.Lines[0].UnitPriceCents)
	}
	if quotation.Lines[1].UnitPriceCents != 17000 {
		t.Fatalf("expected explicit price 17000, got %d", quotation.Lines[1].UnitPriceCents)
	}
	if quotation.TotalCents != 2*16200+17000 {
		t.Fatalf("unexpected quotation total %d", quotation.TotalCents)
	}
}

func TestQuotationNeverTouchesStock(t *testing.T) {
	svc, repo := newTestService()
	repo.SetStock(1, 1, 7)

	_, err := svc.CreateQuotation(context.Background(), domain.QuotationCreateRequest{
		ClientID: 1,
		Lines: []domain.QuotationLineInput{
			{ProductID: 1, Quantity: 100},
		},
	})
	if err != nil {
		t.Fatalf("create quotation failed: %v", err)
	}
	if got := stockAt(t, repo, 1, 1); got != 7 {
		t.Fatalf("quotation must not change stock, expected 7, got %d", got)
	}
}

func TestRegisterMovementNegativeAdjustmentHardFails(t *testing.T) {
	svc, repo := newTestService()
	repo.SetStock(1, 5, 2)

	_, err := svc.RegisterMovement(context.Background(), domain.MovementRequest{
		BranchID: 1,
		Type:     domain.MovementAdjustNegative,
		Comment:  "conteo fisico",
		Items: []domain.MovementItem{
			{ProductID: 5, Quantity: 3},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected negative adjustment beyond stock to fail, got %v", err)
	}
	if got := stockAt(t, repo, 1, 5); got != 2 {
		t.Fatalf("expected stock unchanged at 2, got %d", got)
	}
}

func TestRegisterMovementPurchaseIncreasesStock(t *testing.T) {
	svc, repo := newTestService()
	repo.SetStock(1, 5, 2)

	applied, err := svc.RegisterMovement(context.Background(), domain.MovementRequest{
		BranchID:   1,
		Type:       domain.MovementPurchase,
		SupplierID: 1,
		Items: []domain.MovementItem{
			{ProductID: 5, Quantity: 10},
		},
	})
	if err != nil {
		t.Fatalf("purchase movement failed: %v", err)
	}
	if len(applied) != 1 {
		t.Fatalf("expected 1 applied movement, got %d", len(applied))
	}
	if got := stockAt(t, repo, 1, 5); got != 12 {
		t.Fatalf("expected stock 12 after purchase, got %d", got)
	}
}

func TestRegisterMovementRejectsUnknownSupplier(t *testing.T) {
	svc, repo := newTestService()
	repo.SetStock(1, 5, 2)

	_, err := svc.RegisterMovement(context.Background(), domain.MovementRequest{
		BranchID:   1,
		Type:       domain.MovementPurchase,
		SupplierID: 99,
		Items: []domain.MovementItem{
			{ProductID: 5, Quantity: 10},
		},
	})
	var validation ValidationErrors
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
	if got := stockAt(t, repo, 1, 5); got != 2 {
		t.Fatalf("expected stock unchanged at 2, got %d", got)
	}
}

func TestListSuppliersSortedByName(t *testing.T) {
	svc, _ := newTestService()

	suppliers, err := svc.ListSuppliers(context.Background())
	if err != nil {
		t.Fatalf("list suppliers failed: %v", err)
	}
	if len(suppliers) != 2 {
		t.Fatalf("expected 2 suppliers, got %d", len(suppliers))
	}
	if suppliers[0].Name != "Distribuidora La Paleta" {
		t.Fatalf("expected suppliers ordered by name, got %q first", suppliers[0].Name)
	}
}

func TestSalesSummaryExcludesCancelledInvoices(t *testing.T) {
	svc, repo := newTestService()
	repo.SetStock(1, 1, 10)
	ctx := cashierContext()

	first, err := svc.CreateInvoice(ctx, domain.InvoiceCreateRequest{
		ClientID: 1,
		BranchID: 1,
		Lines:    []domain.InvoiceLineInput{{ProductID: 1, Quantity: 1, UnitPriceCents: 1000}},
		Payments: []domain.PaymentInput{{PaymentTypeID: 1, AmountCents: 1000}},
	})
	if err != nil {
		t.Fatalf("first invoice failed: %v", err)
	}
	_, err = svc.CreateInvoice(ctx, domain.InvoiceCreateRequest{
		ClientID: 1,
		BranchID: 1,
		Lines:    []domain.InvoiceLineInput{{ProductID: 1, Quantity: 1, UnitPriceCents: 3000}},
		Payments: []domain.PaymentInput{{PaymentTypeID: 1, AmountCents: 3000}},
	})
	if err != nil {
		t.Fatalf("second invoice failed: %v", err)
	}
	if _, err := svc.CancelInvoice(ctx, first.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	summary, err := svc.SalesSummary(ctx, "", "")
	if err != nil {
		t.Fatalf("sales summary failed: %v", err)
	}
	if summary.Invoices != 1 {
		t.Fatalf("expected 1 active invoice in summary, got %d", summary.Invoices)
	}
	if summary.TotalCents != 3000 {
		t.Fatalf("expected total 3000, got %d", summary.TotalCents)
	}
}

func TestSalesSummaryRejectsBadDates(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.SalesSummary(context.Background(), "01/02/2026", "")
	var validation ValidationErrors
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationErrors for a bad date, got %v", err)
	}
}

func TestTopProductsOrdering(t *testing.T) {
	svc, repo := newTestService()
	repo.SetStock(1, 1, 50)
	repo.SetStock(1, 3, 50)
	ctx := cashierContext()

	_, err := svc.CreateInvoice(ctx, domain.InvoiceCreateRequest{
		ClientID: 1,
		BranchID: 1,
		Lines: []domain.InvoiceLineInput{
			{ProductID: 1, Quantity: 2, UnitPriceCents: 18500},
			{ProductID: 3, Quantity: 1, UnitPriceCents: 9800},
		},
		Payments: []domain.PaymentInput{{PaymentTypeID: 1, AmountCents: 46800}},
	})
	if err != nil {
		t.Fatalf("create invoice failed: %v", err)
	}

	top, err := svc.TopProducts(ctx, "", "", 5)
	if err != nil {
		t.Fatalf("top products failed: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("expected 2 products, got %d", len(top))
	}
	if top[0].ProductID != 1 || top[0].RevenueCents != 37000 {
		t.Fatalf("unexpected leader: %+v", top[0])
	}
}

func TestNearestBranchPicksClosest(t *testing.T) {
	svc, _ := newTestService()

	// Coordinates in downtown Guatemala City, closest to Sucursal Centro.
	nearest, err := svc.NearestBranch(context.Background(), 14.6407, -90.5133)
	if err != nil {
		t.Fatalf("nearest branch failed: %v", err)
	}
	if nearest.Branch.Name != "Sucursal Centro" {
		t.Fatalf("expected Sucursal Centro, got %s", nearest.Branch.Name)
	}
	if nearest.DistanceKM < 0 || nearest.DistanceKM > 1 {
		t.Fatalf("unexpected distance %f", nearest.DistanceKM)
	}
}

func TestNearestBranchRejectsOutOfRangeCoordinates(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.NearestBranch(context.Background(), 120, 10)
	var validation ValidationErrors
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
}

func TestListInvoicesRejectsUnknownStatus(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.ListInvoices(context.Background(), domain.InvoiceListFilter{Status: "pagada"})
	var validation ValidationErrors
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
}
