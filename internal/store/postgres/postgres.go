package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"scanpos/internal/domain"
	"scanpos/internal/store"
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

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the ledger tables when they do not exist. Safe to run
// on every startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS companies (
			company_id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			daily_price_percentage DOUBLE PRECISION NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			product_id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			sku TEXT NOT NULL UNIQUE,
			stock INTEGER NOT NULL DEFAULT 0,
			purchase_price DOUBLE PRECISION NOT NULL DEFAULT 0,
			selling_price DOUBLE PRECISION NOT NULL DEFAULT 0,
			wholesale_price DOUBLE PRECISION NOT NULL DEFAULT 0,
			company_id BIGINT REFERENCES companies(company_id)
		)`,
		`CREATE TABLE IF NOT EXISTS invoices (
			invoice_id BIGSERIAL PRIMARY KEY,
			invoice_date TIMESTAMPTZ NOT NULL,
			total_amount DOUBLE PRECISION NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS invoice_items (
			invoice_id BIGINT NOT NULL REFERENCES invoices(invoice_id),
			product_id BIGINT NOT NULL REFERENCES products(product_id),
			product_name TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			unit_price DOUBLE PRECISION NOT NULL,
			total_price DOUBLE PRECISION NOT NULL,
			historical_purchase_price DOUBLE PRECISION NOT NULL,
			historical_selling_price DOUBLE PRECISION NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_invoice_items_invoice ON invoice_items (invoice_id)`,
		`CREATE TABLE IF NOT EXISTS app_users (
			username TEXT PRIMARY KEY,
			password TEXT NOT NULL,
			role TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const productColumns = `
	p.product_id, p.name, p.sku, p.stock,
	p.purchase_price, p.selling_price, p.wholesale_price,
	p.company_id, COALESCE(c.name, '')
`

func scanProduct(row interface{ Scan(dest ...any) error }) (domain.Product, error) {
	var p domain.Product
	var companyID sql.NullInt64
	err := row.Scan(&p.ID, &p.Name, &p.SKU, &p.Stock,
		&p.PurchasePrice, &p.SellingPrice, &p.WholesalePrice,
		&companyID, &p.CompanyName)
	if err != nil {
		return p, err
	}
	if companyID.Valid {
		id := companyID.Int64
		p.CompanyID = &id
	}
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context, search string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products p
		LEFT JOIN companies c ON c.company_id = p.company_id
		WHERE $1 = '' OR p.name ILIKE '%'||$1||'%' OR p.sku ILIKE '%'||$1||'%' OR c.name ILIKE '%'||$1||'%'
		ORDER BY p.product_id
	`, strings.TrimSpace(search))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products p
		LEFT JOIN companies c ON c.company_id = p.company_id
		WHERE p.sku = $1
	`, sku)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products p
		LEFT JOIN companies c ON c.company_id = p.company_id
		WHERE p.product_id = $1
	`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product, companyName string) (*domain.Product, error) {
	if err := validateProduct(product); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	companyName = strings.TrimSpace(companyName)
	var companyID any
	if companyName != "" {
		var id int64
		// The no-op DO UPDATE makes RETURNING yield the row on conflict too,
		// so get-or-create is a single statement.
		err = tx.QueryRowContext(ctx, `
			INSERT INTO companies (name)
			VALUES ($1)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING company_id
		`, companyName).Scan(&id)
		if err != nil {
			return nil, err
		}
		companyID = id
		product.CompanyID = &id
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO products (name, sku, stock, purchase_price, selling_price, wholesale_price, company_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING product_id
	`, product.Name, product.SKU, product.Stock, product.PurchasePrice, product.SellingPrice, product.WholesalePrice, companyID).Scan(&product.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	product.CompanyName = companyName
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if err := validateProduct(product); err != nil {
		return nil, err
	}

	// SKU and company reference are immutable after creation; only the
	// mutable columns are written.
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, stock = $3, purchase_price = $4, selling_price = $5, wholesale_price = $6
		WHERE product_id = $1
	`, product.ID, product.Name, product.Stock, product.PurchasePrice, product.SellingPrice, product.WholesalePrice)
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

	return s.GetProductByID(ctx, product.ID)
}

func (s *Store) ListCompanies(ctx context.Context) ([]domain.Company, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT company_id, name, daily_price_percentage
		FROM companies
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	companies := make([]domain.Company, 0, 16)
	for rows.Next() {
		var c domain.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.DailyPricePercentage); err != nil {
			return nil, err
		}
		companies = append(companies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return companies, nil
}

func (s *Store) CommitInvoice(ctx context.Context, lines []domain.DraftLine, at time.Time) (*domain.Invoice, []domain.InvoiceLine, error) {
	if len(lines) == 0 {
		return nil, nil, store.ErrValidation
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	type lineState struct {
		draft     domain.DraftLine
		product   domain.Product
		unitPrice float64
	}

	// Lock and re-read every product before writing anything: price and
	// stock come from the row as it is now, not from the draft snapshot.
	states := make([]lineState, 0, len(lines))
	for _, line := range lines {
		if line.Quantity < 1 {
			return nil, nil, store.ErrValidation
		}

		var p domain.Product
		err := tx.QueryRowContext(ctx, `
			SELECT product_id, name, stock, purchase_price, selling_price, wholesale_price
			FROM products
			WHERE product_id = $1
			FOR UPDATE
		`, line.ProductID).Scan(&p.ID, &p.Name, &p.Stock, &p.PurchasePrice, &p.SellingPrice, &p.WholesalePrice)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil, store.ErrNotFound
			}
			return nil, nil, err
		}
		if line.Quantity > p.Stock {
			return nil, nil, &store.InsufficientStockError{ProductName: p.Name}
		}

		unitPrice := p.SellingPrice
		if line.Mode == domain.ModeWholesale {
			unitPrice = p.WholesalePrice
		}
		states = append(states, lineState{draft: line, product: p, unitPrice: unitPrice})
	}

	total := 0.0
	for _, st := range states {
		total += float64(st.draft.Quantity) * st.unitPrice
	}

	invoice := domain.Invoice{Date: at, Total: total}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO invoices (invoice_date, total_amount)
		VALUES ($1,$2)
		RETURNING invoice_id
	`, invoice.Date, invoice.Total).Scan(&invoice.ID)
	if err != nil {
		return nil, nil, err
	}

	invoiceLines := make([]domain.InvoiceLine, 0, len(states))
	for _, st := range states {
		_, err = tx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock - $2
			WHERE product_id = $1
		`, st.product.ID, st.draft.Quantity)
		if err != nil {
			return nil, nil, err
		}

		totalPrice := float64(st.draft.Quantity) * st.unitPrice
		// historical_selling_price records the charged unit price: wholesale
		// lines freeze the wholesale price, not selling_price.
		_, err = tx.ExecContext(ctx, `
			INSERT INTO invoice_items (
				invoice_id, product_id, product_name, quantity, unit_price,
				total_price, historical_purchase_price, historical_selling_price
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, invoice.ID, st.product.ID, st.product.Name, st.draft.Quantity, st.unitPrice,
			totalPrice, st.product.PurchasePrice, st.unitPrice)
		if err != nil {
			return nil, nil, err
		}

		invoiceLines = append(invoiceLines, domain.InvoiceLine{
			InvoiceID:               invoice.ID,
			ProductID:               st.product.ID,
			ProductName:             st.product.Name,
			Quantity:                st.draft.Quantity,
			UnitPrice:               st.unitPrice,
			TotalPrice:              totalPrice,
			HistoricalPurchasePrice: st.product.PurchasePrice,
			HistoricalSellingPrice:  st.unitPrice,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}

	created := invoice
	return &created, invoiceLines, nil
}

func (s *Store) RepriceCompany(ctx context.Context, companyID int64, purchasePct, sellingPct, wholesalePct float64) (int, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM companies WHERE company_id = $1)
	`, companyID).Scan(&exists)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, store.ErrNotFound
	}

	// One statement, so the whole batch is atomic. invoice_items is never
	// touched here: historical prices stay frozen.
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET purchase_price = purchase_price * (1 + $2/100.0),
			selling_price = selling_price * (1 + $3/100.0),
			wholesale_price = wholesale_price * (1 + $4/100.0)
		WHERE company_id = $1
	`, companyID, purchasePct, sellingPct, wholesalePct)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *Store) GetDailyReport(ctx context.Context) ([]domain.DailyReportRow, error) {
	// Cost comes from historical_purchase_price alone; current product
	// prices never enter the report.
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			to_char(i.invoice_date AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
			COUNT(DISTINCT i.invoice_id)::bigint,
			COALESCE(SUM(ii.total_price),0),
			COALESCE(SUM(ii.quantity * ii.historical_purchase_price),0)
		FROM invoices i
		JOIN invoice_items ii ON ii.invoice_id = i.invoice_id
		GROUP BY day
		ORDER BY day DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	report := make([]domain.DailyReportRow, 0, 32)
	for rows.Next() {
		var row domain.DailyReportRow
		if err := rows.Scan(&row.Date, &row.InvoiceCount, &row.Revenue, &row.Cost); err != nil {
			return nil, err
		}
		row.Profit = row.Revenue - row.Cost
		report = append(report, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *Store) ListInvoicesByDay(ctx context.Context, day string) ([]domain.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT invoice_id, invoice_date, total_amount
		FROM invoices
		WHERE to_char(invoice_date AT TIME ZONE 'UTC', 'YYYY-MM-DD') = $1
		ORDER BY invoice_date DESC, invoice_id DESC
	`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := make([]domain.Invoice, 0, 32)
	for rows.Next() {
		var invoice domain.Invoice
		if err := rows.Scan(&invoice.ID, &invoice.Date, &invoice.Total); err != nil {
			return nil, err
		}
		invoice.Date = invoice.Date.UTC()
		invoices = append(invoices, invoice)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *Store) GetInvoiceDetail(ctx context.Context, invoiceID int64) (*domain.Invoice, []domain.InvoiceLine, error) {
	var invoice domain.Invoice
	err := s.db.QueryRowContext(ctx, `
		SELECT invoice_id, invoice_date, total_amount
		FROM invoices
		WHERE invoice_id = $1
	`, invoiceID).Scan(&invoice.ID, &invoice.Date, &invoice.Total)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, store.ErrNotFound
		}
		return nil, nil, err
	}
	invoice.Date = invoice.Date.UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT invoice_id, product_id, product_name, quantity, unit_price,
			total_price, historical_purchase_price, historical_selling_price
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY product_id
	`, invoiceID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	lines := make([]domain.InvoiceLine, 0, 8)
	for rows.Next() {
		var line domain.InvoiceLine
		if err := rows.Scan(&line.InvoiceID, &line.ProductID, &line.ProductName, &line.Quantity,
			&line.UnitPrice, &line.TotalPrice, &line.HistoricalPurchasePrice, &line.HistoricalSellingPrice); err != nil {
			return nil, nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	return &invoice, lines, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrValidation
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrValidation
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

func validateProduct(product domain.Product) error {
	if product.SKU == "" || product.Name == "" {
		return store.ErrValidation
	}
	if product.Stock < 0 || product.PurchasePrice < 0 || product.SellingPrice < 0 || product.WholesalePrice < 0 {
		return store.ErrValidation
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
