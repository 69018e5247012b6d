package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pinturapos/backend/internal/billing"
	"pinturapos/backend/internal/domain"
	"pinturapos/backend/internal/locator"
	"pinturapos/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// ValidationErrors carries every business-rule violation found in a request,
// one message per problem, so the client can fix all of them at once.
type ValidationErrors []string

func (v ValidationErrors) Error() string {
	return strings.Join(v, "; ")
}

type Service struct {
	repo    store.Repository
	locator *locator.Engine
}

func New(repo store.Repository, branchLocator *locator.Engine) *Service {
	return &Service{
		repo:    repo,
		locator: branchLocator,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	product, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)

	problems := ValidationErrors{}
	if req.Name == "" {
		problems = append(problems, "name is required")
	}
	if req.BrandID < 1 {
		problems = append(problems, "brand is required")
	}
	if req.CategoryID < 1 {
		problems = append(problems, "category is required")
	}
	if req.RetailPriceCents < 0 || req.WholesalePriceCents < 0 {
		problems = append(problems, "prices must not be negative")
	}
	if len(problems) > 0 {
		return domain.Product{}, problems
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:                req.Name,
		Description:         req.Description,
		BrandID:             req.BrandID,
		CategoryID:          req.CategoryID,
		RetailPriceCents:    req.RetailPriceCents,
		WholesalePriceCents: req.WholesalePriceCents,
		Active:              true,
	})
	if err != nil {
		return domain.Product{}, err
	}
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, req domain.ProductUpdateRequest) (domain.Product, error) {
	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, ValidationErrors{"name must not be empty"}
		}
		updated.Name = name
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.BrandID != nil {
		if *req.BrandID < 1 {
			return domain.Product{}, ValidationErrors{"brand is required"}
		}
		updated.BrandID = *req.BrandID
	}
	if req.CategoryID != nil {
		if *req.CategoryID < 1 {
			return domain.Product{}, ValidationErrors{"category is required"}
		}
		updated.CategoryID = *req.CategoryID
	}
	if req.RetailPriceCents != nil {
		if *req.RetailPriceCents < 0 {
			return domain.Product{}, ValidationErrors{"retail price must not be negative"}
		}
		updated.RetailPriceCents = *req.RetailPriceCents
	}
	if req.WholesalePriceCents != nil {
		if *req.WholesalePriceCents < 0 {
			return domain.Product{}, ValidationErrors{"wholesale price must not be negative"}
		}
		updated.WholesalePriceCents = *req.WholesalePriceCents
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	return *saved, nil
}

func (s *Service) DeactivateProduct(ctx context.Context, id int64) error {
	return s.repo.DeactivateProduct(ctx, id)
}

func (s *Service) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	return s.repo.ListBranches(ctx)
}

func (s *Service) ListPaymentTypes(ctx context.Context) ([]domain.PaymentType, error) {
	return s.repo.ListPaymentTypes(ctx)
}

func (s *Service) ListBrands(ctx context.Context) ([]domain.Brand, error) {
	return s.repo.ListBrands(ctx)
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) ListClients(ctx context.Context) ([]domain.Client, error) {
	return s.repo.ListClients(ctx)
}

func (s *Service) GetClient(ctx context.Context, id int64) (domain.Client, error) {
	client, err := s.repo.GetClientByID(ctx, id)
	if err != nil {
		return domain.Client{}, err
	}
	return *client, nil
}

func (s *Service) FindClientByTaxID(ctx context.Context, taxID string) (domain.Client, error) {
	taxID = strings.TrimSpace(taxID)
	if taxID == "" {
		return domain.Client{}, ValidationErrors{"tax id is required"}
	}
	client, err := s.repo.FindClientByTaxID(ctx, taxID)
	if err != nil {
		return domain.Client{}, err
	}
	return *client, nil
}

func (s *Service) CreateClient(ctx context.Context, req domain.NewClientInput) (domain.Client, error) {
	client, err := s.resolveNewClient(ctx, &req)
	if err != nil {
		return domain.Client{}, err
	}
	return *client, nil
}

// resolveNewClient turns an inline new-client payload into a persisted client.
// A tax id that already belongs to a client reuses that client instead of
// creating a duplicate.
func (s *Service) resolveNewClient(ctx context.Context, input *domain.NewClientInput) (*domain.Client, error) {
	firstName := strings.TrimSpace(input.FirstName)
	lastName := strings.TrimSpace(input.LastName)
	taxID := strings.TrimSpace(input.TaxID)

	problems := ValidationErrors{}
	if firstName == "" {
		problems = append(problems, "client first name is required")
	}
	if lastName == "" {
		problems = append(problems, "client last name is required")
	}
	if len(problems) > 0 {
		return nil, problems
	}

	if taxID != "" {
		existing, err := s.repo.FindClientByTaxID(ctx, taxID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	return s.repo.CreateClient(ctx, domain.Client{
		FirstName: firstName,
		LastName:  lastName,
		TaxID:     taxID,
		Email:     strings.TrimSpace(input.Email),
		Address:   strings.TrimSpace(input.Address),
	})
}

// resolveInvoiceClient picks the client an invoice or quotation belongs to.
// This always happens before any stock transaction opens, so an implicitly
// created client survives even when the sale later fails.
func (s *Service) resolveInvoiceClient(ctx context.Context, clientID int64, newClient *domain.NewClientInput) (int64, error) {
	switch {
	case clientID > 0:
		client, err := s.repo.GetClientByID(ctx, clientID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return 0, ValidationErrors{fmt.Sprintf("client %d not found", clientID)}
			}
			return 0, err
		}
		return client.ID, nil
	case newClient != nil:
		client, err := s.resolveNewClient(ctx, newClient)
		if err != nil {
			return 0, err
		}
		return client.ID, nil
	default:
		return 0, ValidationErrors{"a client is required"}
	}
}

// CreateInvoice validates the cart, resolves the client and then delegates
// the atomic part to the store. Validation never touches stock; the store
// transaction is the only thing that decrements and it either fully commits
// or leaves no trace.
func (s *Service) CreateInvoice(ctx context.Context, req domain.InvoiceCreateRequest) (domain.Invoice, error) {
	problems := ValidationErrors{}

	aggregate, lineProblems := billing.ComputeTotals(req.Lines)
	problems = append(problems, lineProblems...)

	_, paymentProblems := billing.SumPayments(req.Payments)
	problems = append(problems, paymentProblems...)

	if req.BranchID < 1 {
		problems = append(problems, "branch is required")
	}
	if len(problems) > 0 {
		return domain.Invoice{}, problems
	}

	if _, err := s.repo.GetBranchByID(ctx, req.BranchID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Invoice{}, ValidationErrors{fmt.Sprintf("branch %d not found", req.BranchID)}
		}
		return domain.Invoice{}, err
	}

	paymentTypes, err := s.repo.ListPaymentTypes(ctx)
	if err != nil {
		return domain.Invoice{}, err
	}
	knownTypes := make(map[int64]bool, len(paymentTypes))
	for _, pt := range paymentTypes {
		knownTypes[pt.ID] = true
	}
	for i, payment := range req.Payments {
		if !knownTypes[payment.PaymentTypeID] {
			problems = append(problems, fmt.Sprintf("payment %d: payment type %d not found", i+1, payment.PaymentTypeID))
		}
	}
	if len(problems) > 0 {
		return domain.Invoice{}, problems
	}

	clientID, err := s.resolveInvoiceClient(ctx, req.ClientID, req.NewClient)
	if err != nil {
		return domain.Invoice{}, err
	}

	actor, _ := ActorFromContext(ctx)

	lines := make([]domain.InvoiceLine, 0, len(aggregate.Lines))
	for _, line := range aggregate.Lines {
		lines = append(lines, domain.InvoiceLine{
			ProductID:      line.ProductID,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
			DiscountCents:  line.DiscountCents,
			SubtotalCents:  line.SubtotalCents,
		})
	}
	payments := make([]domain.Payment, 0, len(req.Payments))
	for _, payment := range req.Payments {
		payments = append(payments, domain.Payment{
			PaymentTypeID: payment.PaymentTypeID,
			AmountCents:   payment.AmountCents,
			Reference:     strings.TrimSpace(payment.Reference),
			CardID:        payment.CardID,
		})
	}

	invoice := domain.Invoice{
		ClientID:      clientID,
		UserID:        actor.UserID,
		BranchID:      req.BranchID,
		Series:        strings.TrimSpace(req.Series),
		Number:        req.Number,
		SubtotalCents: aggregate.SubtotalCents,
		DiscountCents: aggregate.DiscountCents,
		TotalCents:    aggregate.TotalCents,
		Status:        domain.InvoiceStatusActive,
		CreatedAt:     time.Now().UTC(),
		Lines:         lines,
		Payments:      payments,
	}

	created, err := s.repo.CreateInvoice(ctx, invoice)
	if err != nil {
		return domain.Invoice{}, err
	}
	return *created, nil
}

func (s *Service) GetInvoice(ctx context.Context, id int64) (domain.Invoice, error) {
	invoice, err := s.repo.GetInvoiceByID(ctx, id)
	if err != nil {
		return domain.Invoice{}, err
	}
	return *invoice, nil
}

func (s *Service) ListInvoices(ctx context.Context, filter domain.InvoiceListFilter) ([]domain.InvoiceSummary, error) {
	filter.Status = strings.ToLower(strings.TrimSpace(filter.Status))
	if filter.Status != "" && filter.Status != domain.InvoiceStatusActive && filter.Status != domain.InvoiceStatusCancelled {
		return nil, ValidationErrors{fmt.Sprintf("unknown invoice status %q", filter.Status)}
	}
	return s.repo.ListInvoices(ctx, filter)
}

// CancelInvoice flips a vigente invoice to anulada. Stock is never restored
// here; returning goods to inventory is a separate, explicit stock movement.
func (s *Service) CancelInvoice(ctx context.Context, id int64) (domain.Invoice, error) {
	cancelled, err := s.repo.CancelInvoice(ctx, id)
	if err != nil {
		return domain.Invoice{}, err
	}
	return *cancelled, nil
}

// CreateQuotation prices a cart without touching stock. A line without an
// explicit unit price defaults to the product's wholesale price.
func (s *Service) CreateQuotation(ctx context.Context, req domain.QuotationCreateRequest) (domain.Quotation, error) {
	if len(req.Lines) == 0 {
		return domain.Quotation{}, ValidationErrors{"at least one line item is required"}
	}

	problems := ValidationErrors{}
	lines := make([]domain.QuotationLine, 0, len(req.Lines))
	total := int64(0)
	for i, in := range req.Lines {
		n := i + 1
		if in.ProductID < 1 {
			problems = append(problems, fmt.Sprintf("line %d: product is required", n))
			continue
		}
		if in.Quantity < 1 {
			problems = append(problems, fmt.Sprintf("line %d: quantity must be greater than zero", n))
			continue
		}

		product, err := s.repo.GetProductByID(ctx, in.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				problems = append(problems, fmt.Sprintf("line %d: product %d not found", n, in.ProductID))
				continue
			}
			return domain.Quotation{}, err
		}
		if !product.Active {
			problems = append(problems, fmt.Sprintf("line %d: product %d is inactive", n, in.ProductID))
			continue
		}

		unitPrice := product.WholesalePriceCents
		if in.UnitPriceCents != nil {
			if *in.UnitPriceCents < 0 {
				problems = append(problems, fmt.Sprintf("line %d: unit price must not be negative", n))
				continue
			}
			unitPrice = *in.UnitPriceCents
		}

		subtotal := int64(in.Quantity) * unitPrice
		lines = append(lines, domain.QuotationLine{
			ProductID:      in.ProductID,
			ProductName:    product.Name,
			Quantity:       in.Quantity,
			UnitPriceCents: unitPrice,
			SubtotalCents:  subtotal,
		})
		total += subtotal
	}
	if len(problems) > 0 {
		return domain.Quotation{}, problems
	}

	clientID, err := s.resolveInvoiceClient(ctx, req.ClientID, req.NewClient)
	if err != nil {
		return domain.Quotation{}, err
	}

	created, err := s.repo.CreateQuotation(ctx, domain.Quotation{
		ClientID:   clientID,
		TotalCents: total,
		CreatedAt:  time.Now().UTC(),
		Lines:      lines,
	})
	if err != nil {
		return domain.Quotation{}, err
	}
	return *created, nil
}

func (s *Service) GetQuotation(ctx context.Context, id int64) (domain.Quotation, error) {
	quotation, err := s.repo.GetQuotationByID(ctx, id)
	if err != nil {
		return domain.Quotation{}, err
	}
	return *quotation, nil
}

func (s *Service) ListQuotations(ctx context.Context, clientID int64, limit int) ([]domain.Quotation, error) {
	return s.repo.ListQuotations(ctx, clientID, limit)
}

// RegisterMovement applies a purchase or manual adjustment to branch stock.
// A negative adjustment larger than the quantity on hand is rejected outright
// rather than clamped; inventory never silently loses its audit trail.
func (s *Service) RegisterMovement(ctx context.Context, req domain.MovementRequest) ([]domain.StockMovement, error) {
	movementType := strings.ToLower(strings.TrimSpace(req.Type))

	problems := ValidationErrors{}
	switch movementType {
	case domain.MovementPurchase, domain.MovementAdjustPositive, domain.MovementAdjustNegative:
	default:
		problems = append(problems, fmt.Sprintf("unknown movement type %q", req.Type))
	}
	if req.BranchID < 1 {
		problems = append(problems, "branch is required")
	}
	if len(req.Items) == 0 {
		problems = append(problems, "at least one item is required")
	}
	for i, item := range req.Items {
		if item.ProductID < 1 {
			problems = append(problems, fmt.Sprintf("item %d: product is required", i+1))
		}
		if item.Quantity < 1 {
			problems = append(problems, fmt.Sprintf("item %d: quantity must be greater than zero", i+1))
		}
	}
	if len(problems) > 0 {
		return nil, problems
	}

	if _, err := s.repo.GetBranchByID(ctx, req.BranchID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ValidationErrors{fmt.Sprintf("branch %d not found", req.BranchID)}
		}
		return nil, err
	}
	if req.SupplierID > 0 {
		if _, err := s.repo.GetSupplierByID(ctx, req.SupplierID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ValidationErrors{fmt.Sprintf("supplier %d not found", req.SupplierID)}
			}
			return nil, err
		}
	}

	now := time.Now().UTC()
	applied := make([]domain.StockMovement, 0, len(req.Items))
	for _, item := range req.Items {
		movement := domain.StockMovement{
			BranchID:   req.BranchID,
			ProductID:  item.ProductID,
			Type:       movementType,
			Quantity:   item.Quantity,
			SupplierID: req.SupplierID,
			Comment:    strings.TrimSpace(req.Comment),
			CreatedAt:  now,
		}

		var err error
		if movementType == domain.MovementAdjustNegative {
			err = s.repo.DecreaseStock(ctx, req.BranchID, item.ProductID, item.Quantity, movement)
		} else {
			err = s.repo.IncreaseStock(ctx, req.BranchID, item.ProductID, item.Quantity, movement)
		}
		if err != nil {
			return nil, err
		}
		applied = append(applied, movement)
	}
	return applied, nil
}

func (s *Service) ListStock(ctx context.Context, branchID int64, search string) ([]domain.StockEntry, error) {
	return s.repo.ListStock(ctx, branchID, search)
}

func (s *Service) ListRecentMovements(ctx context.Context, branchID int64, limit int) ([]domain.StockMovement, error) {
	if limit < 1 {
		limit = 20
	}
	return s.repo.ListRecentMovements(ctx, branchID, limit)
}

func (s *Service) SalesSummary(ctx context.Context, from string, to string) (domain.SalesSummary, error) {
	if err := validateDateRange(from, to); err != nil {
		return domain.SalesSummary{}, err
	}
	return s.repo.GetSalesSummary(ctx, from, to)
}

func (s *Service) TopProducts(ctx context.Context, from string, to string, limit int) ([]domain.TopProduct, error) {
	if err := validateDateRange(from, to); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 5
	}
	return s.repo.GetTopProducts(ctx, from, to, limit)
}

func (s *Service) SalesByDay(ctx context.Context, from string, to string) ([]domain.SalesByDay, error) {
	if err := validateDateRange(from, to); err != nil {
		return nil, err
	}
	return s.repo.GetSalesByDay(ctx, from, to)
}

func (s *Service) NearestBranch(ctx context.Context, lat float64, lng float64) (domain.NearestBranch, error) {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return domain.NearestBranch{}, ValidationErrors{"coordinates are out of range"}
	}

	branches, err := s.repo.ListBranches(ctx)
	if err != nil {
		return domain.NearestBranch{}, err
	}

	nearest := s.locator.Nearest(ctx, lat, lng, branches)
	if nearest == nil {
		return domain.NearestBranch{}, store.ErrNotFound
	}
	return *nearest, nil
}

func validateDateRange(from string, to string) error {
	problems := ValidationErrors{}
	if strings.TrimSpace(from) != "" {
		if _, err := time.Parse("2006-01-02", from); err != nil {
			problems = append(problems, "from must be a YYYY-MM-DD date")
		}
	}
	if strings.TrimSpace(to) != "" {
		if _, err := time.Parse("2006-01-02", to); err != nil {
			problems = append(problems, "to must be a YYYY-MM-DD date")
		}
	}
	if len(problems) > 0 {
		return problems
	}
	return nil
}
