package domain

import "time"

type Product struct {
	ID                  int64  `json:"id"`
	Name                string `json:"name"`
	Description         string `json:"description,omitempty"`
	BrandID             int64  `json:"brand_id"`
	CategoryID          int64  `json:"category_id"`
	RetailPriceCents    int64  `json:"retail_price_cents"`
	WholesalePriceCents int64  `json:"wholesale_price_cents"`
	Active              bool   `json:"active"`
}

type ProductCreateRequest struct {
	Name                string `json:"name"`
	Description         string `json:"description"`
	BrandID             int64  `json:"brand_id"`
	CategoryID          int64  `json:"category_id"`
	RetailPriceCents    int64  `json:"retail_price_cents"`
	WholesalePriceCents int64  `json:"wholesale_price_cents"`
}

type ProductUpdateRequest struct {
	Name                *string `json:"name,omitempty"`
	Description         *string `json:"description,omitempty"`
	BrandID             *int64  `json:"brand_id,omitempty"`
	CategoryID          *int64  `json:"category_id,omitempty"`
	RetailPriceCents    *int64  `json:"retail_price_cents,omitempty"`
	WholesalePriceCents *int64  `json:"wholesale_price_cents,omitempty"`
	Active              *bool   `json:"active,omitempty"`
}

type Branch struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Address   string  `json:"address,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Brand struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Category struct {
	ID          int64  `json:"id"`
	Description string `json:"description"`
}

type PaymentType struct {
	ID          int64  `json:"id"`
	Description string `json:"description"`
}

type Supplier struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	TaxID   string `json:"tax_id,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

type Client struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	TaxID     string `json:"tax_id,omitempty"`
	Email     string `json:"email,omitempty"`
	Address   string `json:"address,omitempty"`
}

// NewClientInput is the inline new-client payload accepted by invoice and
// quotation creation. It is resolved to a client id before any transaction
// opens; if TaxID matches an existing client that client is reused.
type NewClientInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	TaxID     string `json:"tax_id,omitempty"`
	Email     string `json:"email,omitempty"`
	Address   string `json:"address,omitempty"`
}

// StockEntry is the quantity on hand of one product at one branch.
// Quantity may reach zero but never goes negative.
type StockEntry struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name,omitempty"`
	BranchID    int64  `json:"branch_id"`
	BranchName  string `json:"branch_name,omitempty"`
	Quantity    int    `json:"quantity"`
}

type InvoiceLineInput struct {
	ProductID      int64 `json:"product_id"`
	Quantity       int   `json:"quantity"`
	UnitPriceCents int64 `json:"unit_price_cents"`
	DiscountCents  int64 `json:"discount_cents"`
}

type PaymentInput struct {
	PaymentTypeID int64  `json:"payment_type_id"`
	AmountCents   int64  `json:"amount_cents"`
	Reference     string `json:"reference,omitempty"`
	CardID        *int64 `json:"card_id,omitempty"`
}

type InvoiceCreateRequest struct {
	ClientID  int64              `json:"client_id,omitempty"`
	NewClient *NewClientInput    `json:"new_client,omitempty"`
	BranchID  int64              `json:"branch_id"`
	Series    string             `json:"series,omitempty"`
	Number    int64              `json:"number,omitempty"`
	Lines     []InvoiceLineInput `json:"lines"`
	Payments  []PaymentInput     `json:"payments"`
}

type InvoiceLine struct {
	ID             int64  `json:"id"`
	ProductID      int64  `json:"product_id"`
	ProductName    string `json:"product_name,omitempty"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	DiscountCents  int64  `json:"discount_cents"`
	SubtotalCents  int64  `json:"subtotal_cents"`
}

type Payment struct {
	ID            int64  `json:"id"`
	PaymentTypeID int64  `json:"payment_type_id"`
	AmountCents   int64  `json:"amount_cents"`
	Reference     string `json:"reference,omitempty"`
	CardID        *int64 `json:"card_id,omitempty"`
}

// Invoice is a committed sale. Monetary fields are frozen at creation;
// cancellation flips Status only and never touches stock.
type Invoice struct {
	ID            int64         `json:"id"`
	ClientID      int64         `json:"client_id"`
	UserID        int64         `json:"user_id"`
	BranchID      int64         `json:"branch_id"`
	Series        string        `json:"series,omitempty"`
	Number        int64         `json:"number,omitempty"`
	SubtotalCents int64         `json:"subtotal_cents"`
	DiscountCents int64         `json:"discount_cents"`
	TotalCents    int64         `json:"total_cents"`
	Status        string        `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	Lines         []InvoiceLine `json:"lines,omitempty"`
	Payments      []Payment     `json:"payments,omitempty"`
}

type InvoiceSummary struct {
	ID            int64     `json:"id"`
	ClientName    string    `json:"client_name"`
	BranchName    string    `json:"branch_name"`
	SubtotalCents int64     `json:"subtotal_cents"`
	DiscountCents int64     `json:"discount_cents"`
	TotalCents    int64     `json:"total_cents"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

type InvoiceListFilter struct {
	Status   string
	ClientID int64
	BranchID int64
	Limit    int
}

type QuotationLineInput struct {
	ProductID      int64  `json:"product_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents *int64 `json:"unit_price_cents,omitempty"`
}

type QuotationCreateRequest struct {
	ClientID  int64                `json:"client_id,omitempty"`
	NewClient *NewClientInput      `json:"new_client,omitempty"`
	Lines     []QuotationLineInput `json:"lines"`
}

type QuotationLine struct {
	ID             int64  `json:"id"`
	ProductID      int64  `json:"product_id"`
	ProductName    string `json:"product_name,omitempty"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	SubtotalCents  int64  `json:"subtotal_cents"`
}

// Quotation is the non-binding sibling of Invoice: same cart shape, no
// stock decrement and no payment reconciliation.
type Quotation struct {
	ID         int64           `json:"id"`
	ClientID   int64           `json:"client_id"`
	TotalCents int64           `json:"total_cents"`
	CreatedAt  time.Time       `json:"created_at"`
	Lines      []QuotationLine `json:"lines,omitempty"`
}

type MovementItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type MovementRequest struct {
	BranchID   int64          `json:"branch_id"`
	Type       string         `json:"type"`
	SupplierID int64          `json:"supplier_id,omitempty"`
	Comment    string         `json:"comment,omitempty"`
	Items      []MovementItem `json:"items"`
}

type StockMovement struct {
	ID         int64     `json:"id"`
	BranchID   int64     `json:"branch_id"`
	ProductID  int64     `json:"product_id"`
	Type       string    `json:"type"`
	Quantity   int       `json:"quantity"`
	SupplierID int64     `json:"supplier_id,omitempty"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type SalesSummary struct {
	Invoices           int64 `json:"invoices"`
	SubtotalCents      int64 `json:"subtotal_cents"`
	DiscountCents      int64 `json:"discount_cents"`
	TotalCents         int64 `json:"total_cents"`
	AverageTicketCents int64 `json:"average_ticket_cents"`
}

type TopProduct struct {
	ProductID    int64  `json:"product_id"`
	ProductName  string `json:"product_name"`
	UnitsSold    int64  `json:"units_sold"`
	RevenueCents int64  `json:"revenue_cents"`
}

type SalesByDay struct {
	Date       string `json:"date"`
	Invoices   int64  `json:"invoices"`
	TotalCents int64  `json:"total_cents"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	Username    string `json:"username"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor is the authenticated identity attached to a request context.
// Role-to-action mapping is enforced at the HTTP layer; the service trusts it.
type Actor struct {
	UserID   int64
	Username string
	Role     string
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	ID        int64
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type UserInfo struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type NearestBranch struct {
	Branch     Branch  `json:"branch"`
	DistanceKM float64 `json:"distance_km"`
}

const (
	InvoiceStatusActive    = "vigente"
	InvoiceStatusCancelled = "anulada"
)

const (
	MovementPurchase       = "purchase"
	MovementAdjustPositive = "adjust_positive"
	MovementAdjustNegative = "adjust_negative"
)

const (
	RoleAdmin   = "admin"
	RoleCashier = "cajero"
	RoleClerk   = "digitador"
)
