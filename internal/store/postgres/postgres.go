package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"pinturapos/backend/internal/domain"
	"pinturapos/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS brands (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE
		);
		CREATE TABLE IF NOT EXISTS categories (
			id BIGSERIAL PRIMARY KEY,
			description TEXT NOT NULL UNIQUE
		);
		CREATE TABLE IF NOT EXISTS branches (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			address TEXT,
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION
		);
		CREATE TABLE IF NOT EXISTS payment_types (
			id BIGSERIAL PRIMARY KEY,
			description TEXT NOT NULL UNIQUE
		);
		CREATE TABLE IF NOT EXISTS products (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			brand_id BIGINT NOT NULL REFERENCES brands(id),
			category_id BIGINT NOT NULL REFERENCES categories(id),
			retail_price_cents BIGINT NOT NULL DEFAULT 0,
			wholesale_price_cents BIGINT NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS clients (
			id BIGSERIAL PRIMARY KEY,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			tax_id TEXT UNIQUE,
			email TEXT,
			address TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS stock_entries (
			branch_id BIGINT NOT NULL REFERENCES branches(id),
			product_id BIGINT NOT NULL REFERENCES products(id),
			quantity INTEGER NOT NULL CHECK (quantity >= 0),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (branch_id, product_id)
		);
		CREATE TABLE IF NOT EXISTS suppliers (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			tax_id TEXT,
			phone TEXT,
			address TEXT
		);
		CREATE TABLE IF NOT EXISTS stock_movements (
			id BIGSERIAL PRIMARY KEY,
			branch_id BIGINT NOT NULL REFERENCES branches(id),
			product_id BIGINT NOT NULL REFERENCES products(id),
			type TEXT NOT NULL,
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			supplier_id BIGINT REFERENCES suppliers(id),
			comment TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS invoices (
			id BIGSERIAL PRIMARY KEY,
			client_id BIGINT NOT NULL REFERENCES clients(id),
			user_id BIGINT NOT NULL DEFAULT 0,
			branch_id BIGINT NOT NULL REFERENCES branches(id),
			series TEXT,
			number BIGINT,
			subtotal_cents BIGINT NOT NULL,
			discount_cents BIGINT NOT NULL DEFAULT 0,
			total_cents BIGINT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS invoice_lines (
			id BIGSERIAL PRIMARY KEY,
			invoice_id BIGINT NOT NULL REFERENCES invoices(id),
			product_id BIGINT NOT NULL REFERENCES products(id),
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			unit_price_cents BIGINT NOT NULL,
			discount_cents BIGINT NOT NULL DEFAULT 0,
			subtotal_cents BIGINT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS payments (
			id BIGSERIAL PRIMARY KEY,
			invoice_id BIGINT NOT NULL REFERENCES invoices(id),
			payment_type_id BIGINT NOT NULL REFERENCES payment_types(id),
			amount_cents BIGINT NOT NULL CHECK (amount_cents > 0),
			reference TEXT,
			card_id BIGINT
		);
		CREATE TABLE IF NOT EXISTS quotations (
			id BIGSERIAL PRIMARY KEY,
			client_id BIGINT NOT NULL REFERENCES clients(id),
			total_cents BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS quotation_lines (
			id BIGSERIAL PRIMARY KEY,
			quotation_id BIGINT NOT NULL REFERENCES quotations(id),
			product_id BIGINT NOT NULL REFERENCES products(id),
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			unit_price_cents BIGINT NOT NULL,
			subtotal_cents BIGINT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS app_users (
			id BIGSERIAL PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			role TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(description,''), brand_id, category_id,
			retail_price_cents, wholesale_price_cents, active
		FROM products
		WHERE active = true
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.BrandID, &p.CategoryID,
			&p.RetailPriceCents, &p.WholesalePriceCents, &p.Active); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(description,''), brand_id, category_id,
			retail_price_cents, wholesale_price_cents, active
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Description, &p.BrandID, &p.CategoryID,
		&p.RetailPriceCents, &p.WholesalePriceCents, &p.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.RetailPriceCents < 0 || product.WholesalePriceCents < 0 {
		return nil, store.ErrInvalidInvoice
	}

	product.Active = true
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (name, description, brand_id, category_id,
			retail_price_cents, wholesale_price_cents, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now(),now())
		RETURNING id
	`, product.Name, nullIfEmpty(product.Description), product.BrandID, product.CategoryID,
		product.RetailPriceCents, product.WholesalePriceCents, product.Active).Scan(&product.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInvoice
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID < 1 || product.Name == "" || product.RetailPriceCents < 0 || product.WholesalePriceCents < 0 {
		return nil, store.ErrInvalidInvoice
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, description = $3, brand_id = $4, category_id = $5,
			retail_price_cents = $6, wholesale_price_cents = $7, active = $8, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, nullIfEmpty(product.Description), product.BrandID, product.CategoryID,
		product.RetailPriceCents, product.WholesalePriceCents, product.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func (s *Store) DeactivateProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET active = false, updated_at = now()
		WHERE id = $1 AND active = true
	`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(address,''), COALESCE(latitude,0), COALESCE(longitude,0)
		FROM branches
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	branches := make([]domain.Branch, 0, 8)
	for rows.Next() {
		var b domain.Branch
		if err := rows.Scan(&b.ID, &b.Name, &b.Address, &b.Latitude, &b.Longitude); err != nil {
			return nil, err
		}
		branches = append(branches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return branches, nil
}

func (s *Store) GetBranchByID(ctx context.Context, id int64) (*domain.Branch, error) {
	var b domain.Branch
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(address,''), COALESCE(latitude,0), COALESCE(longitude,0)
		FROM branches
		WHERE id = $1
	`, id).Scan(&b.ID, &b.Name, &b.Address, &b.Latitude, &b.Longitude)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (s *Store) ListPaymentTypes(ctx context.Context) ([]domain.PaymentType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, description
		FROM payment_types
		ORDER BY description
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types := make([]domain.PaymentType, 0, 8)
	for rows.Next() {
		var t domain.PaymentType
		if err := rows.Scan(&t.ID, &t.Description); err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return types, nil
}

func (s *Store) ListBrands(ctx context.Context) ([]domain.Brand, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name
		FROM brands
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	brands := make([]domain.Brand, 0, 16)
	for rows.Next() {
		var b domain.Brand
		if err := rows.Scan(&b.ID, &b.Name); err != nil {
			return nil, err
		}
		brands = append(brands, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return brands, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, description
		FROM categories
		ORDER BY description
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 16)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Description); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(tax_id,''), COALESCE(phone,''), COALESCE(address,'')
		FROM suppliers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 16)
	for rows.Next() {
		var sup domain.Supplier
		if err := rows.Scan(&sup.ID, &sup.Name, &sup.TaxID, &sup.Phone, &sup.Address); err != nil {
			return nil, err
		}
		suppliers = append(suppliers, sup)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return suppliers, nil
}

func (s *Store) GetSupplierByID(ctx context.Context, id int64) (*domain.Supplier, error) {
	var sup domain.Supplier
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(tax_id,''), COALESCE(phone,''), COALESCE(address,'')
		FROM suppliers
		WHERE id = $1
	`, id).Scan(&sup.ID, &sup.Name, &sup.TaxID, &sup.Phone, &sup.Address)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sup, nil
}

func (s *Store) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, first_name, last_name, COALESCE(tax_id,''), COALESCE(email,''), COALESCE(address,'')
		FROM clients
		ORDER BY first_name, last_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clients := make([]domain.Client, 0, 64)
	for rows.Next() {
		var c domain.Client
		if err := rows.Scan(&c.ID, &c.FirstName, &c.LastName, &c.TaxID, &c.Email, &c.Address); err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return clients, nil
}

func (s *Store) GetClientByID(ctx context.Context, id int64) (*domain.Client, error) {
	var c domain.Client
	err := s.db.QueryRowContext(ctx, `
		SELECT id, first_name, last_name, COALESCE(tax_id,''), COALESCE(email,''), COALESCE(address,'')
		FROM clients
		WHERE id = $1
	`, id).Scan(&c.ID, &c.FirstName, &c.LastName, &c.TaxID, &c.Email, &c.Address)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) FindClientByTaxID(ctx context.Context, taxID string) (*domain.Client, error) {
	taxID = strings.TrimSpace(taxID)
	if taxID == "" {
		return nil, store.ErrNotFound
	}

	var c domain.Client
	err := s.db.QueryRowContext(ctx, `
		SELECT id, first_name, last_name, COALESCE(tax_id,''), COALESCE(email,''), COALESCE(address,'')
		FROM clients
		WHERE tax_id = $1
		LIMIT 1
	`, taxID).Scan(&c.ID, &c.FirstName, &c.LastName, &c.TaxID, &c.Email, &c.Address)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error) {
	if strings.TrimSpace(client.FirstName) == "" || strings.TrimSpace(client.LastName) == "" {
		return nil, store.ErrInvalidInvoice
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO clients (first_name, last_name, tax_id, email, address, created_at)
		VALUES ($1,$2,$3,$4,$5,now())
		RETURNING id
	`, client.FirstName, client.LastName, nullIfEmpty(client.TaxID),
		nullIfEmpty(client.Email), nullIfEmpty(client.Address)).Scan(&client.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInvoice
		}
		return nil, err
	}

	created := client
	return &created, nil
}

func (s *Store) ListStock(ctx context.Context, branchID int64, search string) ([]domain.StockEntry, error) {
	query := `
		SELECT se.product_id, p.name, se.branch_id, b.name, se.quantity
		FROM stock_entries se
		JOIN products p ON p.id = se.product_id
		JOIN branches b ON b.id = se.branch_id
		WHERE ($1 = 0 OR se.branch_id = $1)
	`
	args := []any{branchID}
	if strings.TrimSpace(search) != "" {
		query += ` AND (p.name ILIKE $2 OR p.description ILIKE $2)`
		args = append(args, "%"+strings.TrimSpace(search)+"%")
	}
	query += ` ORDER BY p.name, b.name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.StockEntry, 0, 64)
	for rows.Next() {
		var e domain.StockEntry
		if err := rows.Scan(&e.ProductID, &e.ProductName, &e.BranchID, &e.BranchName, &e.Quantity); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) GetStock(ctx context.Context, branchID int64, productID int64) (int, error) {
	var qty int
	err := s.db.QueryRowContext(ctx, `
		SELECT quantity
		FROM stock_entries
		WHERE branch_id = $1 AND product_id = $2
	`, branchID, productID).Scan(&qty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return qty, nil
}

func (s *Store) IncreaseStock(ctx context.Context, branchID int64, productID int64, delta int, movement domain.StockMovement) error {
	if delta < 1 {
		return store.ErrInvalidInvoice
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock_entries (branch_id, product_id, quantity, updated_at)
		VALUES ($1,$2,$3,now())
		ON CONFLICT (branch_id, product_id)
		DO UPDATE SET quantity = stock_entries.quantity + EXCLUDED.quantity, updated_at = now()
	`, branchID, productID, delta)
	if err != nil {
		return err
	}

	if err := insertMovement(ctx, tx, branchID, productID, delta, movement); err != nil {
		return err
	}

	return tx.Commit()
}

// DecreaseStock applies a negative inventory adjustment. Unlike the invoice
// path it is its own transaction, but it shares the same hard-fail contract:
// the quantity on hand never drops below zero.
func (s *Store) DecreaseStock(ctx context.Context, branchID int64, productID int64, delta int, movement domain.StockMovement) error {
	if delta < 1 {
		return store.ErrInvalidInvoice
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var current int
	err = tx.QueryRowContext(ctx, `
		SELECT quantity
		FROM stock_entries
		WHERE branch_id = $1 AND product_id = $2
		FOR UPDATE
	`, branchID, productID).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &store.InsufficientStockError{ProductID: productID, BranchID: branchID, Available: 0, Requested: delta}
		}
		return err
	}
	if current < delta {
		return &store.InsufficientStockError{ProductID: productID, BranchID: branchID, Available: current, Requested: delta}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE stock_entries
		SET quantity = quantity - $1, updated_at = now()
		WHERE branch_id = $2 AND product_id = $3
	`, delta, branchID, productID)
	if err != nil {
		return err
	}

	if err := insertMovement(ctx, tx, branchID, productID, delta, movement); err != nil {
		return err
	}

	return tx.Commit()
}

func insertMovement(ctx context.Context, tx *sql.Tx, branchID int64, productID int64, qty int, movement domain.StockMovement) error {
	createdAt := movement.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO stock_movements (branch_id, product_id, type, quantity, supplier_id, comment, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, branchID, productID, movement.Type, qty, nullIfZero(movement.SupplierID),
		nullIfEmpty(movement.Comment), createdAt)
	return err
}

func (s *Store) ListRecentMovements(ctx context.Context, branchID int64, limit int) ([]domain.StockMovement, error) {
	if limit < 1 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, branch_id, product_id, type, quantity, COALESCE(supplier_id,0), COALESCE(comment,''), created_at
		FROM stock_movements
		WHERE ($1 = 0 OR branch_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, branchID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0, limit)
	for rows.Next() {
		var m domain.StockMovement
		if err := rows.Scan(&m.ID, &m.BranchID, &m.ProductID, &m.Type, &m.Quantity, &m.SupplierID, &m.Comment, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

// CreateInvoice is the invoice transaction. Everything happens inside one
// serializable transaction: stock rows are locked FOR UPDATE in line-array
// order (consistent ordering avoids lock cycles between concurrent sales),
// decremented, and the header, lines and payments are inserted. The payment
// sum is re-checked against the header total before commit; any failure,
// business or technical, rolls the whole thing back.
func (s *Store) CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	if len(invoice.Lines) == 0 || len(invoice.Payments) == 0 {
		return nil, store.ErrInvalidInvoice
	}
	if invoice.TotalCents != invoice.SubtotalCents-invoice.DiscountCents {
		return nil, store.ErrInvalidInvoice
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = time.Now().UTC()
	}
	if invoice.Status == "" {
		invoice.Status = domain.InvoiceStatusActive
	}

	err = pgTx.QueryRowContext(ctx, `
		INSERT INTO invoices (client_id, user_id, branch_id, series, number,
			subtotal_cents, discount_cents, total_cents, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id
	`, invoice.ClientID, invoice.UserID, invoice.BranchID, nullIfEmpty(invoice.Series),
		nullIfZero(invoice.Number), invoice.SubtotalCents, invoice.DiscountCents,
		invoice.TotalCents, invoice.Status, invoice.CreatedAt).Scan(&invoice.ID)
	if err != nil {
		return nil, err
	}

	for i := range invoice.Lines {
		line := &invoice.Lines[i]
		if line.Quantity < 1 || line.UnitPriceCents < 0 || line.DiscountCents < 0 || line.SubtotalCents < 0 {
			return nil, store.ErrInvalidInvoice
		}

		var current int
		err = pgTx.QueryRowContext(ctx, `
			SELECT quantity
			FROM stock_entries
			WHERE branch_id = $1 AND product_id = $2
			FOR UPDATE
		`, invoice.BranchID, line.ProductID).Scan(&current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, &store.InsufficientStockError{
					ProductID: line.ProductID,
					BranchID:  invoice.BranchID,
					Available: 0,
					Requested: line.Quantity,
				}
			}
			return nil, err
		}
		if current < line.Quantity {
			return nil, &store.InsufficientStockError{
				ProductID: line.ProductID,
				BranchID:  invoice.BranchID,
				Available: current,
				Requested: line.Quantity,
			}
		}

		_, err = pgTx.ExecContext(ctx, `
			UPDATE stock_entries
			SET quantity = quantity - $1, updated_at = now()
			WHERE branch_id = $2 AND product_id = $3
		`, line.Quantity, invoice.BranchID, line.ProductID)
		if err != nil {
			return nil, err
		}

		err = pgTx.QueryRowContext(ctx, `
			INSERT INTO invoice_lines (invoice_id, product_id, quantity, unit_price_cents, discount_cents, subtotal_cents)
			VALUES ($1,$2,$3,$4,$5,$6)
			RETURNING id
		`, invoice.ID, line.ProductID, line.Quantity, line.UnitPriceCents,
			line.DiscountCents, line.SubtotalCents).Scan(&line.ID)
		if err != nil {
			return nil, err
		}
	}

	paymentTotal := int64(0)
	for i := range invoice.Payments {
		payment := &invoice.Payments[i]
		if payment.PaymentTypeID < 1 || payment.AmountCents < 1 {
			return nil, store.ErrInvalidInvoice
		}
		paymentTotal += payment.AmountCents

		err = pgTx.QueryRowContext(ctx, `
			INSERT INTO payments (invoice_id, payment_type_id, amount_cents, reference, card_id)
			VALUES ($1,$2,$3,$4,$5)
			RETURNING id
		`, invoice.ID, payment.PaymentTypeID, payment.AmountCents,
			nullIfEmpty(payment.Reference), nullInt64Ptr(payment.CardID)).Scan(&payment.ID)
		if err != nil {
			if isForeignKeyViolation(err) {
				return nil, store.ErrInvalidInvoice
			}
			return nil, err
		}
	}

	// Reconciliation to the cent. Even a one-cent mismatch rolls back the
	// stock decrements above.
	if paymentTotal != invoice.TotalCents {
		return nil, store.ErrPaymentMismatch
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return &invoice, nil
}

func (s *Store) GetInvoiceByID(ctx context.Context, id int64) (*domain.Invoice, error) {
	var inv domain.Invoice
	var series sql.NullString
	var number sql.NullInt64

	err := s.db.QueryRowContext(ctx, `
		SELECT id, client_id, user_id, branch_id, series, number,
			subtotal_cents, discount_cents, total_cents, status, created_at
		FROM invoices
		WHERE id = $1
	`, id).Scan(&inv.ID, &inv.ClientID, &inv.UserID, &inv.BranchID, &series, &number,
		&inv.SubtotalCents, &inv.DiscountCents, &inv.TotalCents, &inv.Status, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if series.Valid {
		inv.Series = series.String
	}
	if number.Valid {
		inv.Number = number.Int64
	}
	inv.CreatedAt = inv.CreatedAt.UTC()

	lineRows, err := s.db.QueryContext(ctx, `
		SELECT il.id, il.product_id, p.name, il.quantity, il.unit_price_cents, il.discount_cents, il.subtotal_cents
		FROM invoice_lines il
		JOIN products p ON p.id = il.product_id
		WHERE il.invoice_id = $1
		ORDER BY il.id ASC
	`, id)
	if err != nil {
		return nil, err
	}
	lines := make([]domain.InvoiceLine, 0, 8)
	for lineRows.Next() {
		var l domain.InvoiceLine
		if err := lineRows.Scan(&l.ID, &l.ProductID, &l.ProductName, &l.Quantity,
			&l.UnitPriceCents, &l.DiscountCents, &l.SubtotalCents); err != nil {
			_ = lineRows.Close()
			return nil, err
		}
		lines = append(lines, l)
	}
	if err := lineRows.Err(); err != nil {
		_ = lineRows.Close()
		return nil, err
	}
	_ = lineRows.Close()
	inv.Lines = lines

	paymentRows, err := s.db.QueryContext(ctx, `
		SELECT id, payment_type_id, amount_cents, COALESCE(reference,''), card_id
		FROM payments
		WHERE invoice_id = $1
		ORDER BY id ASC
	`, id)
	if err != nil {
		return nil, err
	}
	payments := make([]domain.Payment, 0, 4)
	for paymentRows.Next() {
		var p domain.Payment
		var cardID sql.NullInt64
		if err := paymentRows.Scan(&p.ID, &p.PaymentTypeID, &p.AmountCents, &p.Reference, &cardID); err != nil {
			_ = paymentRows.Close()
			return nil, err
		}
		if cardID.Valid {
			v := cardID.Int64
			p.CardID = &v
		}
		payments = append(payments, p)
	}
	if err := paymentRows.Err(); err != nil {
		_ = paymentRows.Close()
		return nil, err
	}
	_ = paymentRows.Close()
	inv.Payments = payments

	return &inv, nil
}

func (s *Store) ListInvoices(ctx context.Context, filter domain.InvoiceListFilter) ([]domain.InvoiceSummary, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, c.first_name || ' ' || c.last_name, b.name,
			i.subtotal_cents, i.discount_cents, i.total_cents, i.status, i.created_at
		FROM invoices i
		JOIN clients c ON c.id = i.client_id
		JOIN branches b ON b.id = i.branch_id
		WHERE ($1 = '' OR i.status = $1)
			AND ($2 = 0 OR i.client_id = $2)
			AND ($3 = 0 OR i.branch_id = $3)
		ORDER BY i.created_at DESC, i.id DESC
		LIMIT $4
	`, filter.Status, filter.ClientID, filter.BranchID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]domain.InvoiceSummary, 0, limit)
	for rows.Next() {
		var sum domain.InvoiceSummary
		if err := rows.Scan(&sum.ID, &sum.ClientName, &sum.BranchName,
			&sum.SubtotalCents, &sum.DiscountCents, &sum.TotalCents, &sum.Status, &sum.CreatedAt); err != nil {
			return nil, err
		}
		sum.CreatedAt = sum.CreatedAt.UTC()
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return summaries, nil
}

// CancelInvoice performs logical cancellation only: the status flips to
// anulada and every monetary field and line stays frozen. Restocking is a
// separate inventory movement, deliberately not triggered here.
func (s *Store) CancelInvoice(ctx context.Context, id int64) (*domain.Invoice, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var status string
	err = pgTx.QueryRowContext(ctx, `
		SELECT status
		FROM invoices
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status != domain.InvoiceStatusActive {
		return nil, store.ErrInvoiceNotActive
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE invoices
		SET status = $2
		WHERE id = $1 AND status = $3
	`, id, domain.InvoiceStatusCancelled, domain.InvoiceStatusActive)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return s.GetInvoiceByID(ctx, id)
}

func (s *Store) CreateQuotation(ctx context.Context, quotation domain.Quotation) (*domain.Quotation, error) {
	if len(quotation.Lines) == 0 {
		return nil, store.ErrInvalidInvoice
	}
	if quotation.CreatedAt.IsZero() {
		quotation.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO quotations (client_id, total_cents, created_at)
		VALUES ($1,$2,$3)
		RETURNING id
	`, quotation.ClientID, quotation.TotalCents, quotation.CreatedAt).Scan(&quotation.ID)
	if err != nil {
		return nil, err
	}

	for i := range quotation.Lines {
		line := &quotation.Lines[i]
		err = tx.QueryRowContext(ctx, `
			INSERT INTO quotation_lines (quotation_id, product_id, quantity, unit_price_cents, subtotal_cents)
			VALUES ($1,$2,$3,$4,$5)
			RETURNING id
		`, quotation.ID, line.ProductID, line.Quantity, line.UnitPriceCents, line.SubtotalCents).Scan(&line.ID)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := quotation
	return &created, nil
}

func (s *Store) GetQuotationByID(ctx context.Context, id int64) (*domain.Quotation, error) {
	var q domain.Quotation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, client_id, total_cents, created_at
		FROM quotations
		WHERE id = $1
	`, id).Scan(&q.ID, &q.ClientID, &q.TotalCents, &q.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	q.CreatedAt = q.CreatedAt.UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT ql.id, ql.product_id, p.name, ql.quantity, ql.unit_price_cents, ql.subtotal_cents
		FROM quotation_lines ql
		JOIN products p ON p.id = ql.product_id
		WHERE ql.quotation_id = $1
		ORDER BY ql.id ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.QuotationLine, 0, 8)
	for rows.Next() {
		var l domain.QuotationLine
		if err := rows.Scan(&l.ID, &l.ProductID, &l.ProductName, &l.Quantity, &l.UnitPriceCents, &l.SubtotalCents); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	q.Lines = lines

	return &q, nil
}

func (s *Store) ListQuotations(ctx context.Context, clientID int64, limit int) ([]domain.Quotation, error) {
	if limit < 1 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_id, total_cents, created_at
		FROM quotations
		WHERE ($1 = 0 OR client_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, clientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	quotations := make([]domain.Quotation, 0, limit)
	for rows.Next() {
		var q domain.Quotation
		if err := rows.Scan(&q.ID, &q.ClientID, &q.TotalCents, &q.CreatedAt); err != nil {
			return nil, err
		}
		q.CreatedAt = q.CreatedAt.UTC()
		quotations = append(quotations, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return quotations, nil
}

func (s *Store) GetSalesSummary(ctx context.Context, from string, to string) (domain.SalesSummary, error) {
	var summary domain.SalesSummary

	query := `
		SELECT COUNT(*)::bigint,
			COALESCE(SUM(subtotal_cents),0)::bigint,
			COALESCE(SUM(discount_cents),0)::bigint,
			COALESCE(SUM(total_cents),0)::bigint
		FROM invoices
		WHERE status = $1
	`
	args := []any{domain.InvoiceStatusActive}
	query, args = appendDateRange(query, args, from, to)

	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&summary.Invoices, &summary.SubtotalCents, &summary.DiscountCents, &summary.TotalCents)
	if err != nil {
		return summary, err
	}
	if summary.Invoices > 0 {
		summary.AverageTicketCents = summary.TotalCents / summary.Invoices
	}
	return summary, nil
}

func (s *Store) GetTopProducts(ctx context.Context, from string, to string, limit int) ([]domain.TopProduct, error) {
	if limit < 1 {
		limit = 5
	}

	query := `
		SELECT il.product_id, p.name,
			COALESCE(SUM(il.quantity),0)::bigint,
			COALESCE(SUM(il.subtotal_cents),0)::bigint
		FROM invoice_lines il
		JOIN invoices i ON i.id = il.invoice_id
		JOIN products p ON p.id = il.product_id
		WHERE i.status = $1
	`
	args := []any{domain.InvoiceStatusActive}
	query, args = appendDateRangePrefixed(query, args, "i.", from, to)
	args = append(args, limit)
	query += fmt.Sprintf(`
		GROUP BY il.product_id, p.name
		ORDER BY SUM(il.subtotal_cents) DESC
		LIMIT $%d
	`, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	top := make([]domain.TopProduct, 0, limit)
	for rows.Next() {
		var t domain.TopProduct
		if err := rows.Scan(&t.ProductID, &t.ProductName, &t.UnitsSold, &t.RevenueCents); err != nil {
			return nil, err
		}
		top = append(top, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return top, nil
}

func (s *Store) GetSalesByDay(ctx context.Context, from string, to string) ([]domain.SalesByDay, error) {
	query := `
		SELECT to_char(created_at::date, 'YYYY-MM-DD'),
			COUNT(*)::bigint,
			COALESCE(SUM(total_cents),0)::bigint
		FROM invoices
		WHERE status = $1
	`
	args := []any{domain.InvoiceStatusActive}
	query, args = appendDateRange(query, args, from, to)
	query += `
		GROUP BY created_at::date
		ORDER BY created_at::date
	`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	series := make([]domain.SalesByDay, 0, 31)
	for rows.Next() {
		var d domain.SalesByDay
		if err := rows.Scan(&d.Date, &d.Invoices, &d.TotalCents); err != nil {
			return nil, err
		}
		series = append(series, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return series, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	var u domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password, role, active, created_at
		FROM app_users
		WHERE username = $1
	`, username).Scan(&u.ID, &u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || user.Password == "" || user.Role == "" {
		return nil, store.ErrInvalidInvoice
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
		RETURNING id
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt).Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInvoice
		}
		return nil, err
	}

	created := user
	return &created, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, password, role, active, created_at
		FROM app_users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.ID, &u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.CreatedAt = u.CreatedAt.UTC()
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInvoice
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func appendDateRange(query string, args []any, from string, to string) (string, []any) {
	return appendDateRangePrefixed(query, args, "", from, to)
}

func appendDateRangePrefixed(query string, args []any, prefix string, from string, to string) (string, []any) {
	if strings.TrimSpace(from) != "" {
		args = append(args, from)
		query += fmt.Sprintf(" AND %screated_at::date >= $%d::date", prefix, len(args))
	}
	if strings.TrimSpace(to) != "" {
		args = append(args, to)
		query += fmt.Sprintf(" AND %screated_at::date <= $%d::date", prefix, len(args))
	}
	return query, args
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullIfZero(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}

func nullInt64Ptr(val *int64) any {
	if val == nil {
		return nil
	}
	return *val
}
