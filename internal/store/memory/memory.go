package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"pinturapos/backend/internal/domain"
	"pinturapos/backend/internal/store"
)

// Store is an in-memory Repository used for dev/demo mode and tests. A single
// mutex stands in for the row locks of the SQL store: the whole invoice
// transaction runs under it, so the check-then-decrement contract is the same.
type Store struct {
	mu             sync.RWMutex
	products       map[int64]domain.Product
	branches       map[int64]domain.Branch
	brands         map[int64]domain.Brand
	categories     map[int64]domain.Category
	paymentTypes   map[int64]domain.PaymentType
	suppliers      map[int64]domain.Supplier
	clients        map[int64]domain.Client
	stock          map[int64]map[int64]int
	movements      []domain.StockMovement
	invoices       map[int64]*domain.Invoice
	quotations     map[int64]*domain.Quotation
	users          map[string]domain.UserAccount
	nextProductID  int64
	nextClientID   int64
	nextMovementID int64
	nextInvoiceID  int64
	nextLineID     int64
	nextPaymentID  int64
	nextQuoteID    int64
	nextUserID     int64
}

// seedUsers builds the initial user accounts for dev/demo mode. Credentials
// come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; hardcoded dev
// defaults are used with a warning when unset. Production deployments use
// PostgreSQL (DATABASE_URL) and never touch these.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cajero123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	id := int64(0)
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cajero", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		id++
		users[u.username] = domain.UserAccount{
			ID:        id,
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	brands := map[int64]domain.Brand{
		1: {ID: 1, Name: "Corona"},
		2: {ID: 2, Name: "Sherwin Williams"},
		3: {ID: 3, Name: "Protecto"},
	}
	categories := map[int64]domain.Category{
		1: {ID: 1, Description: "Pintura de agua"},
		2: {ID: 2, Description: "Pintura de aceite"},
		3: {ID: 3, Description: "Accesorios"},
	}
	paymentTypes := map[int64]domain.PaymentType{
		1: {ID: 1, Description: "Efectivo"},
		2: {ID: 2, Description: "Tarjeta"},
		3: {ID: 3, Description: "Transferencia"},
	}
	suppliers := map[int64]domain.Supplier{
		1: {ID: 1, Name: "Distribuidora La Paleta", TaxID: "4589632-1", Phone: "2232-4455"},
		2: {ID: 2, Name: "Importadora Colorama", TaxID: "7741205-6", Phone: "2244-1890"},
	}
	branches := map[int64]domain.Branch{
		1: {ID: 1, Name: "Sucursal Centro", Address: "4a Calle 5-20 Zona 1", Latitude: 14.6412, Longitude: -90.5132},
		2: {ID: 2, Name: "Sucursal Roosevelt", Address: "Calz. Roosevelt 22-43 Zona 11", Latitude: 14.6218, Longitude: -90.5569},
	}
	products := []domain.Product{
		{ID: 1, Name: "Latex Interior Blanco 1gal", BrandID: 1, CategoryID: 1, RetailPriceCents: 18500, WholesalePriceCents: 16200, Active: true},
		{ID: 2, Name: "Latex Exterior Gris 1gal", BrandID: 1, CategoryID: 1, RetailPriceCents: 21500, WholesalePriceCents: 19000, Active: true},
		{ID: 3, Name: "Esmalte Negro 1/4gal", BrandID: 2, CategoryID: 2, RetailPriceCents: 9800, WholesalePriceCents: 8600, Active: true},
		{ID: 4, Name: "Anticorrosivo Rojo Oxido 1gal", BrandID: 3, CategoryID: 2, RetailPriceCents: 24500, WholesalePriceCents: 22000, Active: true},
		{ID: 5, Name: "Rodillo Felpa 9in", BrandID: 3, CategoryID: 3, RetailPriceCents: 4500, WholesalePriceCents: 3800, Active: true},
		{ID: 6, Name: "Brocha Cerda 3in", BrandID: 3, CategoryID: 3, RetailPriceCents: 2800, WholesalePriceCents: 2300, Active: true},
	}

	productMap := make(map[int64]domain.Product, len(products))
	stock := map[int64]map[int64]int{1: {}, 2: {}}
	for _, p := range products {
		productMap[p.ID] = p
		stock[1][p.ID] = 40
		stock[2][p.ID] = 25
	}

	clients := map[int64]domain.Client{
		1: {ID: 1, FirstName: "Consumidor", LastName: "Final", TaxID: "CF"},
	}

	return &Store{
		products:      productMap,
		branches:      branches,
		brands:        brands,
		categories:    categories,
		paymentTypes:  paymentTypes,
		suppliers:     suppliers,
		clients:       clients,
		stock:         stock,
		movements:     make([]domain.StockMovement, 0, 64),
		invoices:      make(map[int64]*domain.Invoice),
		quotations:    make(map[int64]*domain.Quotation),
		users:         seedUsers(),
		nextProductID: int64(len(products)),
		nextClientID:  1,
		nextUserID:    2,
	}
}

// SetStock pins the on-hand quantity of one product at one branch. Dev/test
// helper, not part of the Repository contract.
func (s *Store) SetStock(branchID int64, productID int64, qty int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stock[branchID]; !ok {
		s.stock[branchID] = map[int64]int{}
	}
	s.stock[branchID][productID] = qty
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmpString(a.Name, b.Name)
	})

	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.RetailPriceCents < 0 || product.WholesalePriceCents < 0 {
		return nil, store.ErrInvalidInvoice
	}

	s.nextProductID++
	product.ID = s.nextProductID
	product.Active = true
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID < 1 || product.Name == "" || product.RetailPriceCents < 0 || product.WholesalePriceCents < 0 {
		return nil, store.ErrInvalidInvoice
	}
	if _, exists := s.products[product.ID]; !exists {
		return nil, store.ErrNotFound
	}

	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeactivateProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[id]
	if !exists || !product.Active {
		return store.ErrNotFound
	}
	product.Active = false
	s.products[id] = product
	return nil
}

func (s *Store) ListBranches(_ context.Context) ([]domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	branches := make([]domain.Branch, 0, len(s.branches))
	for _, b := range s.branches {
		branches = append(branches, b)
	}
	slices.SortFunc(branches, func(a, b domain.Branch) int {
		return cmpString(a.Name, b.Name)
	})
	return branches, nil
}

func (s *Store) GetBranchByID(_ context.Context, id int64) (*domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	branch, exists := s.branches[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyBranch := branch
	return &copyBranch, nil
}

func (s *Store) ListPaymentTypes(_ context.Context) ([]domain.PaymentType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	types := make([]domain.PaymentType, 0, len(s.paymentTypes))
	for _, t := range s.paymentTypes {
		types = append(types, t)
	}
	slices.SortFunc(types, func(a, b domain.PaymentType) int {
		return cmpString(a.Description, b.Description)
	})
	return types, nil
}

func (s *Store) ListBrands(_ context.Context) ([]domain.Brand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	brands := make([]domain.Brand, 0, len(s.brands))
	for _, b := range s.brands {
		brands = append(brands, b)
	}
	slices.SortFunc(brands, func(a, b domain.Brand) int {
		return cmpString(a.Name, b.Name)
	})
	return brands, nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		categories = append(categories, c)
	}
	slices.SortFunc(categories, func(a, b domain.Category) int {
		return cmpString(a.Description, b.Description)
	})
	return categories, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliers))
	for _, sup := range s.suppliers {
		suppliers = append(suppliers, sup)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		return cmpString(a.Name, b.Name)
	})
	return suppliers, nil
}

func (s *Store) GetSupplierByID(_ context.Context, id int64) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	supplier, exists := s.suppliers[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copySupplier := supplier
	return &copySupplier, nil
}

func (s *Store) ListClients(_ context.Context) ([]domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]domain.Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	slices.SortFunc(clients, func(a, b domain.Client) int {
		if a.FirstName == b.FirstName {
			return cmpString(a.LastName, b.LastName)
		}
		return cmpString(a.FirstName, b.FirstName)
	})
	return clients, nil
}

func (s *Store) GetClientByID(_ context.Context, id int64) (*domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, exists := s.clients[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyClient := client
	return &copyClient, nil
}

func (s *Store) FindClientByTaxID(_ context.Context, taxID string) (*domain.Client, error) {
	taxID = strings.TrimSpace(taxID)
	if taxID == "" {
		return nil, store.ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, client := range s.clients {
		if client.TaxID == taxID {
			copyClient := client
			return &copyClient, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateClient(_ context.Context, client domain.Client) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(client.FirstName) == "" || strings.TrimSpace(client.LastName) == "" {
		return nil, store.ErrInvalidInvoice
	}

	s.nextClientID++
	client.ID = s.nextClientID
	s.clients[client.ID] = client
	created := client
	return &created, nil
}

func (s *Store) ListStock(_ context.Context, branchID int64, search string) ([]domain.StockEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search = strings.ToLower(strings.TrimSpace(search))
	entries := make([]domain.StockEntry, 0, 64)
	for bID, byProduct := range s.stock {
		if branchID != 0 && bID != branchID {
			continue
		}
		for pID, qty := range byProduct {
			product, exists := s.products[pID]
			if !exists {
				continue
			}
			if search != "" && !strings.Contains(strings.ToLower(product.Name), search) {
				continue
			}
			entries = append(entries, domain.StockEntry{
				ProductID:   pID,
				ProductName: product.Name,
				BranchID:    bID,
				BranchName:  s.branches[bID].Name,
				Quantity:    qty,
			})
		}
	}

	slices.SortFunc(entries, func(a, b domain.StockEntry) int {
		if a.ProductName == b.ProductName {
			return cmpString(a.BranchName, b.BranchName)
		}
		return cmpString(a.ProductName, b.ProductName)
	})
	return entries, nil
}

func (s *Store) GetStock(_ context.Context, branchID int64, productID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byProduct, ok := s.stock[branchID]
	if !ok {
		return 0, nil
	}
	return byProduct[productID], nil
}

func (s *Store) IncreaseStock(_ context.Context, branchID int64, productID int64, delta int, movement domain.StockMovement) error {
	if delta < 1 {
		return store.ErrInvalidInvoice
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[productID]; !exists {
		return store.ErrNotFound
	}
	byProduct, ok := s.stock[branchID]
	if !ok {
		byProduct = map[int64]int{}
		s.stock[branchID] = byProduct
	}
	byProduct[productID] += delta
	s.appendMovementLocked(branchID, productID, delta, movement)
	return nil
}

func (s *Store) DecreaseStock(_ context.Context, branchID int64, productID int64, delta int, movement domain.StockMovement) error {
	if delta < 1 {
		return store.ErrInvalidInvoice
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := 0
	if byProduct, ok := s.stock[branchID]; ok {
		current = byProduct[productID]
	}
	if current < delta {
		return &store.InsufficientStockError{ProductID: productID, BranchID: branchID, Available: current, Requested: delta}
	}

	s.stock[branchID][productID] = current - delta
	s.appendMovementLocked(branchID, productID, delta, movement)
	return nil
}

func (s *Store) appendMovementLocked(branchID int64, productID int64, qty int, movement domain.StockMovement) {
	s.nextMovementID++
	movement.ID = s.nextMovementID
	movement.BranchID = branchID
	movement.ProductID = productID
	movement.Quantity = qty
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}
	s.movements = append(s.movements, movement)
}

func (s *Store) ListRecentMovements(_ context.Context, branchID int64, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 10
	}
	result := make([]domain.StockMovement, 0, limit)
	for i := len(s.movements) - 1; i >= 0 && len(result) < limit; i-- {
		m := s.movements[i]
		if branchID != 0 && m.BranchID != branchID {
			continue
		}
		result = append(result, m)
	}
	return result, nil
}

// CreateInvoice mirrors the SQL transaction under one lock: nothing is
// mutated until every line's stock and the payment sum have been verified,
// so a failed invoice leaves stock exactly as it was.
func (s *Store) CreateInvoice(_ context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	if len(invoice.Lines) == 0 || len(invoice.Payments) == 0 {
		return nil, store.ErrInvalidInvoice
	}
	if invoice.TotalCents != invoice.SubtotalCents-invoice.DiscountCents {
		return nil, store.ErrInvalidInvoice
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.branches[invoice.BranchID]; !exists {
		return nil, store.ErrNotFound
	}

	branchStock := s.stock[invoice.BranchID]
	remaining := make(map[int64]int, len(invoice.Lines))
	for _, line := range invoice.Lines {
		if line.Quantity < 1 || line.UnitPriceCents < 0 || line.DiscountCents < 0 || line.SubtotalCents < 0 {
			return nil, store.ErrInvalidInvoice
		}
		if _, seen := remaining[line.ProductID]; !seen {
			if branchStock == nil {
				remaining[line.ProductID] = 0
			} else {
				remaining[line.ProductID] = branchStock[line.ProductID]
			}
		}
		if remaining[line.ProductID] < line.Quantity {
			return nil, &store.InsufficientStockError{
				ProductID: line.ProductID,
				BranchID:  invoice.BranchID,
				Available: remaining[line.ProductID],
				Requested: line.Quantity,
			}
		}
		remaining[line.ProductID] -= line.Quantity
	}

	paymentTotal := int64(0)
	for _, payment := range invoice.Payments {
		if payment.PaymentTypeID < 1 || payment.AmountCents < 1 {
			return nil, store.ErrInvalidInvoice
		}
		if _, exists := s.paymentTypes[payment.PaymentTypeID]; !exists {
			return nil, store.ErrInvalidInvoice
		}
		paymentTotal += payment.AmountCents
	}
	if paymentTotal != invoice.TotalCents {
		return nil, store.ErrPaymentMismatch
	}

	// All checks passed; apply.
	if branchStock == nil {
		branchStock = map[int64]int{}
		s.stock[invoice.BranchID] = branchStock
	}
	for productID, qty := range remaining {
		branchStock[productID] = qty
	}

	s.nextInvoiceID++
	invoice.ID = s.nextInvoiceID
	if invoice.Status == "" {
		invoice.Status = domain.InvoiceStatusActive
	}
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = time.Now().UTC()
	}
	for i := range invoice.Lines {
		s.nextLineID++
		invoice.Lines[i].ID = s.nextLineID
		if product, exists := s.products[invoice.Lines[i].ProductID]; exists {
			invoice.Lines[i].ProductName = product.Name
		}
	}
	for i := range invoice.Payments {
		s.nextPaymentID++
		invoice.Payments[i].ID = s.nextPaymentID
	}

	s.invoices[invoice.ID] = cloneInvoice(&invoice)
	return cloneInvoice(s.invoices[invoice.ID]), nil
}

func (s *Store) GetInvoiceByID(_ context.Context, id int64) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoice, exists := s.invoices[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneInvoice(invoice), nil
}

func (s *Store) ListInvoices(_ context.Context, filter domain.InvoiceListFilter) ([]domain.InvoiceSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := filter.Limit
	if limit < 1 {
		limit = 50
	}

	summaries := make([]domain.InvoiceSummary, 0, len(s.invoices))
	for _, invoice := range s.invoices {
		if filter.Status != "" && invoice.Status != filter.Status {
			continue
		}
		if filter.ClientID != 0 && invoice.ClientID != filter.ClientID {
			continue
		}
		if filter.BranchID != 0 && invoice.BranchID != filter.BranchID {
			continue
		}
		clientName := ""
		if client, exists := s.clients[invoice.ClientID]; exists {
			clientName = client.FirstName + " " + client.LastName
		}
		summaries = append(summaries, domain.InvoiceSummary{
			ID:            invoice.ID,
			ClientName:    clientName,
			BranchName:    s.branches[invoice.BranchID].Name,
			SubtotalCents: invoice.SubtotalCents,
			DiscountCents: invoice.DiscountCents,
			TotalCents:    invoice.TotalCents,
			Status:        invoice.Status,
			CreatedAt:     invoice.CreatedAt,
		})
	}

	slices.SortFunc(summaries, func(a, b domain.InvoiceSummary) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return int(b.ID - a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

func (s *Store) CancelInvoice(_ context.Context, id int64) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	invoice, exists := s.invoices[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if invoice.Status != domain.InvoiceStatusActive {
		return nil, store.ErrInvoiceNotActive
	}

	invoice.Status = domain.InvoiceStatusCancelled
	return cloneInvoice(invoice), nil
}

func (s *Store) CreateQuotation(_ context.Context, quotation domain.Quotation) (*domain.Quotation, error) {
	if len(quotation.Lines) == 0 {
		return nil, store.ErrInvalidInvoice
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextQuoteID++
	quotation.ID = s.nextQuoteID
	if quotation.CreatedAt.IsZero() {
		quotation.CreatedAt = time.Now().UTC()
	}
	for i := range quotation.Lines {
		s.nextLineID++
		quotation.Lines[i].ID = s.nextLineID
		if product, exists := s.products[quotation.Lines[i].ProductID]; exists {
			quotation.Lines[i].ProductName = product.Name
		}
	}

	s.quotations[quotation.ID] = cloneQuotation(&quotation)
	return cloneQuotation(s.quotations[quotation.ID]), nil
}

func (s *Store) GetQuotationByID(_ context.Context, id int64) (*domain.Quotation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	quotation, exists := s.quotations[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneQuotation(quotation), nil
}

func (s *Store) ListQuotations(_ context.Context, clientID int64, limit int) ([]domain.Quotation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 10
	}
	result := make([]domain.Quotation, 0, len(s.quotations))
	for _, quotation := range s.quotations {
		if clientID != 0 && quotation.ClientID != clientID {
			continue
		}
		result = append(result, *cloneQuotation(quotation))
	}
	slices.SortFunc(result, func(a, b domain.Quotation) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return int(b.ID - a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetSalesSummary(_ context.Context, from string, to string) (domain.SalesSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fromDate, toDate, err := parseDateRange(from, to)
	if err != nil {
		return domain.SalesSummary{}, err
	}

	summary := domain.SalesSummary{}
	for _, invoice := range s.invoices {
		if !invoiceInRange(invoice, fromDate, toDate) {
			continue
		}
		summary.Invoices++
		summary.SubtotalCents += invoice.SubtotalCents
		summary.DiscountCents += invoice.DiscountCents
		summary.TotalCents += invoice.TotalCents
	}
	if summary.Invoices > 0 {
		summary.AverageTicketCents = summary.TotalCents / summary.Invoices
	}
	return summary, nil
}

func (s *Store) GetTopProducts(_ context.Context, from string, to string, limit int) ([]domain.TopProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 5
	}
	fromDate, toDate, err := parseDateRange(from, to)
	if err != nil {
		return nil, err
	}

	byProduct := map[int64]*domain.TopProduct{}
	for _, invoice := range s.invoices {
		if !invoiceInRange(invoice, fromDate, toDate) {
			continue
		}
		for _, line := range invoice.Lines {
			entry := byProduct[line.ProductID]
			if entry == nil {
				name := line.ProductName
				if product, exists := s.products[line.ProductID]; exists {
					name = product.Name
				}
				entry = &domain.TopProduct{ProductID: line.ProductID, ProductName: name}
				byProduct[line.ProductID] = entry
			}
			entry.UnitsSold += int64(line.Quantity)
			entry.RevenueCents += line.SubtotalCents
		}
	}

	top := make([]domain.TopProduct, 0, len(byProduct))
	for _, entry := range byProduct {
		top = append(top, *entry)
	}
	slices.SortFunc(top, func(a, b domain.TopProduct) int {
		if a.RevenueCents == b.RevenueCents {
			return cmpString(a.ProductName, b.ProductName)
		}
		if a.RevenueCents > b.RevenueCents {
			return -1
		}
		return 1
	})
	if len(top) > limit {
		top = top[:limit]
	}
	return top, nil
}

func (s *Store) GetSalesByDay(_ context.Context, from string, to string) ([]domain.SalesByDay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fromDate, toDate, err := parseDateRange(from, to)
	if err != nil {
		return nil, err
	}

	byDay := map[string]*domain.SalesByDay{}
	for _, invoice := range s.invoices {
		if !invoiceInRange(invoice, fromDate, toDate) {
			continue
		}
		day := invoice.CreatedAt.UTC().Format("2006-01-02")
		entry := byDay[day]
		if entry == nil {
			entry = &domain.SalesByDay{Date: day}
			byDay[day] = entry
		}
		entry.Invoices++
		entry.TotalCents += invoice.TotalCents
	}

	series := make([]domain.SalesByDay, 0, len(byDay))
	for _, entry := range byDay {
		series = append(series, *entry)
	}
	slices.SortFunc(series, func(a, b domain.SalesByDay) int {
		return cmpString(a.Date, b.Date)
	})
	return series, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[strings.ToLower(strings.TrimSpace(username))]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyUser := user
	return &copyUser, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" || user.Role == "" {
		return nil, store.ErrInvalidInvoice
	}
	if _, exists := s.users[username]; exists {
		return nil, store.ErrInvalidInvoice
	}

	s.nextUserID++
	user.ID = s.nextUserID
	user.Username = username
	user.Active = true
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.users[username] = user
	created := user
	return &created, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInvoice
	}
	user, exists := s.users[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.users[username] = user
	return nil
}

func parseDateRange(from string, to string) (time.Time, time.Time, error) {
	var fromDate, toDate time.Time
	if strings.TrimSpace(from) != "" {
		parsed, err := time.Parse("2006-01-02", from)
		if err != nil {
			return time.Time{}, time.Time{}, store.ErrInvalidInvoice
		}
		fromDate = parsed.UTC()
	}
	if strings.TrimSpace(to) != "" {
		parsed, err := time.Parse("2006-01-02", to)
		if err != nil {
			return time.Time{}, time.Time{}, store.ErrInvalidInvoice
		}
		toDate = parsed.UTC().Add(24 * time.Hour)
	}
	return fromDate, toDate, nil
}

func invoiceInRange(invoice *domain.Invoice, from time.Time, to time.Time) bool {
	if invoice.Status != domain.InvoiceStatusActive {
		return false
	}
	if !from.IsZero() && invoice.CreatedAt.Before(from) {
		return false
	}
	if !to.IsZero() && !invoice.CreatedAt.Before(to) {
		return false
	}
	return true
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneInvoice(src *domain.Invoice) *domain.Invoice {
	if src == nil {
		return nil
	}
	dup := *src
	dupLines := make([]domain.InvoiceLine, len(src.Lines))
	copy(dupLines, src.Lines)
	dup.Lines = dupLines
	dupPayments := make([]domain.Payment, len(src.Payments))
	copy(dupPayments, src.Payments)
	dup.Payments = dupPayments
	return &dup
}

func cloneQuotation(src *domain.Quotation) *domain.Quotation {
	if src == nil {
		return nil
	}
	dup := *src
	dupLines := make([]domain.QuotationLine, len(src.Lines))
	copy(dupLines, src.Lines)
	dup.Lines = dupLines
	return &dup
}
