package store

import (
	"context"
	"errors"
	"fmt"

	"pinturapos/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInvoice    = errors.New("invalid invoice")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrPaymentMismatch   = errors.New("payment total does not match invoice total")
	ErrInvoiceNotActive  = errors.New("invoice is not active")
)

// InsufficientStockError reports the exact shortfall that aborted an invoice.
// It matches ErrInsufficientStock under errors.Is.
type InsufficientStockError struct {
	ProductID int64
	BranchID  int64
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d at branch %d: available %d, requested %d",
		e.ProductID, e.BranchID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id int64) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeactivateProduct(ctx context.Context, id int64) error

	ListBranches(ctx context.Context) ([]domain.Branch, error)
	GetBranchByID(ctx context.Context, id int64) (*domain.Branch, error)
	ListPaymentTypes(ctx context.Context) ([]domain.PaymentType, error)
	ListBrands(ctx context.Context) ([]domain.Brand, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	GetSupplierByID(ctx context.Context, id int64) (*domain.Supplier, error)

	ListClients(ctx context.Context) ([]domain.Client, error)
	GetClientByID(ctx context.Context, id int64) (*domain.Client, error)
	FindClientByTaxID(ctx context.Context, taxID string) (*domain.Client, error)
	CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error)

	ListStock(ctx context.Context, branchID int64, search string) ([]domain.StockEntry, error)
	GetStock(ctx context.Context, branchID int64, productID int64) (int, error)
	IncreaseStock(ctx context.Context, branchID int64, productID int64, delta int, movement domain.StockMovement) error
	DecreaseStock(ctx context.Context, branchID int64, productID int64, delta int, movement domain.StockMovement) error
	ListRecentMovements(ctx context.Context, branchID int64, limit int) ([]domain.StockMovement, error)

	// CreateInvoice runs the whole invoice transaction: it locks the stock
	// row for every line in line order, verifies and decrements stock,
	// persists header, lines and payments, re-sums the payments against the
	// invoice total, and commits. Any failure rolls back everything.
	CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error)
	GetInvoiceByID(ctx context.Context, id int64) (*domain.Invoice, error)
	ListInvoices(ctx context.Context, filter domain.InvoiceListFilter) ([]domain.InvoiceSummary, error)
	// CancelInvoice flips vigente -> anulada. It never restores stock.
	CancelInvoice(ctx context.Context, id int64) (*domain.Invoice, error)

	CreateQuotation(ctx context.Context, quotation domain.Quotation) (*domain.Quotation, error)
	GetQuotationByID(ctx context.Context, id int64) (*domain.Quotation, error)
	ListQuotations(ctx context.Context, clientID int64, limit int) ([]domain.Quotation, error)

	GetSalesSummary(ctx context.Context, from string, to string) (domain.SalesSummary, error)
	GetTopProducts(ctx context.Context, from string, to string, limit int) ([]domain.TopProduct, error)
	GetSalesByDay(ctx context.Context, from string, to string) ([]domain.SalesByDay, error)

	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
