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

	"scanpos/internal/domain"
	"scanpos/internal/store"
)

// Store is an in-memory ledger used by tests and no-database runs. All
// methods take the store lock for their full duration, so each mutating
// operation is atomic: readers observe either the pre-state or the fully
// applied post-state.
type Store struct {
	mu            sync.RWMutex
	products      map[int64]domain.Product
	productBySKU  map[string]int64
	companies     map[int64]domain.Company
	companyByName map[string]int64
	invoices      map[int64]domain.Invoice
	invoiceLines  map[int64][]domain.InvoiceLine
	users         map[string]domain.UserAccount
	nextProductID int64
	nextCompanyID int64
	nextInvoiceID int64
}

func New() *Store {
	return &Store{
		products:      make(map[int64]domain.Product),
		productBySKU:  make(map[string]int64),
		companies:     make(map[int64]domain.Company),
		companyByName: make(map[string]int64),
		invoices:      make(map[int64]domain.Invoice),
		invoiceLines:  make(map[int64][]domain.InvoiceLine),
		users:         make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial user accounts for dev/demo mode. Credentials
// come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; hardcoded dev
// defaults are used with a warning when unset.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
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
	s := New()
	s.users = seedUsers()

	ctx := context.Background()
	seed := []struct {
		product domain.Product
		company string
	}{
		{domain.Product{Name: "Mineral Water 600ml", SKU: "SKU-WATER-01", Stock: 120, PurchasePrice: 0.25, SellingPrice: 0.50, WholesalePrice: 0.40}, "Aqua Distribution"},
		{domain.Product{Name: "Instant Noodles", SKU: "SKU-NOODLE-01", Stock: 200, PurchasePrice: 0.30, SellingPrice: 0.55, WholesalePrice: 0.45}, "Aqua Distribution"},
		{domain.Product{Name: "Ground Coffee 250g", SKU: "SKU-COFFEE-01", Stock: 40, PurchasePrice: 2.80, SellingPrice: 4.50, WholesalePrice: 3.90}, "Highland Roasters"},
		{domain.Product{Name: "Sugar 1kg", SKU: "SKU-SUGAR-01", Stock: 60, PurchasePrice: 1.10, SellingPrice: 1.70, WholesalePrice: 1.45}, ""},
		{domain.Product{Name: "Bath Soap", SKU: "SKU-SOAP-01", Stock: 90, PurchasePrice: 0.60, SellingPrice: 1.10, WholesalePrice: 0.90}, ""},
	}
	for _, entry := range seed {
		if _, err := s.CreateProduct(ctx, entry.product, entry.company); err != nil {
			log.Fatalf("[memory-store] seed product %s: %v", entry.product.SKU, err)
		}
	}
	return s
}

func (s *Store) ListProducts(_ context.Context, search string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(search))
	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		p = s.withCompanyNameLocked(p)
		if needle != "" &&
			!strings.Contains(strings.ToLower(p.Name), needle) &&
			!strings.Contains(strings.ToLower(p.SKU), needle) &&
			!strings.Contains(strings.ToLower(p.CompanyName), needle) {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		return int(a.ID - b.ID)
	})
	return products, nil
}

func (s *Store) GetProductBySKU(_ context.Context, sku string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.productBySKU[sku]
	if !exists {
		return nil, store.ErrNotFound
	}
	product := s.withCompanyNameLocked(s.products[id])
	return &product, nil
}

func (s *Store) GetProductByID(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	product = s.withCompanyNameLocked(product)
	return &product, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product, companyName string) (*domain.Product, error) {
	if err := validateProduct(product); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.productBySKU[product.SKU]; exists {
		return nil, store.ErrConflict
	}

	companyName = strings.TrimSpace(companyName)
	if companyName != "" {
		id := s.getOrCreateCompanyLocked(companyName)
		product.CompanyID = &id
	} else {
		product.CompanyID = nil
	}

	s.nextProductID++
	product.ID = s.nextProductID
	s.products[product.ID] = product
	s.productBySKU[product.SKU] = product.ID

	created := s.withCompanyNameLocked(product)
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if err := validateProduct(product); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}

	// SKU is the natural key; it never changes after creation.
	product.SKU = existing.SKU
	product.CompanyID = existing.CompanyID
	s.products[product.ID] = product

	updated := s.withCompanyNameLocked(product)
	return &updated, nil
}

func (s *Store) ListCompanies(_ context.Context) ([]domain.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	companies := make([]domain.Company, 0, len(s.companies))
	for _, c := range s.companies {
		companies = append(companies, c)
	}
	slices.SortFunc(companies, func(a, b domain.Company) int {
		return strings.Compare(a.Name, b.Name)
	})
	return companies, nil
}

func (s *Store) CommitInvoice(_ context.Context, lines []domain.DraftLine, at time.Time) (*domain.Invoice, []domain.InvoiceLine, error) {
	if len(lines) == 0 {
		return nil, nil, store.ErrValidation
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate every line before mutating anything so a failure leaves the
	// ledger exactly as it was.
	for _, line := range lines {
		if line.Quantity < 1 {
			return nil, nil, store.ErrValidation
		}
		product, exists := s.products[line.ProductID]
		if !exists {
			return nil, nil, store.ErrNotFound
		}
		if line.Quantity > product.Stock {
			return nil, nil, &store.InsufficientStockError{ProductName: product.Name}
		}
	}

	s.nextInvoiceID++
	invoice := domain.Invoice{ID: s.nextInvoiceID, Date: at}

	invoiceLines := make([]domain.InvoiceLine, 0, len(lines))
	for _, line := range lines {
		product := s.products[line.ProductID]

		// Prices are re-read here, not taken from the draft line: edits made
		// between scan and commit are the values frozen.
		unitPrice := product.SellingPrice
		if line.Mode == domain.ModeWholesale {
			unitPrice = product.WholesalePrice
		}
		totalPrice := float64(line.Quantity) * unitPrice

		product.Stock -= line.Quantity
		s.products[product.ID] = product

		// historical_selling_price is the charged-price snapshot: when the
		// line sold wholesale it records the wholesale unit price, not the
		// product's selling_price field. Profit reports depend on this.
		invoiceLines = append(invoiceLines, domain.InvoiceLine{
			InvoiceID:               invoice.ID,
			ProductID:               product.ID,
			ProductName:             product.Name,
			Quantity:                line.Quantity,
			UnitPrice:               unitPrice,
			TotalPrice:              totalPrice,
			HistoricalPurchasePrice: product.PurchasePrice,
			HistoricalSellingPrice:  unitPrice,
		})
		invoice.Total += totalPrice
	}

	s.invoices[invoice.ID] = invoice
	s.invoiceLines[invoice.ID] = invoiceLines

	created := invoice
	out := make([]domain.InvoiceLine, len(invoiceLines))
	copy(out, invoiceLines)
	return &created, out, nil
}

func (s *Store) RepriceCompany(_ context.Context, companyID int64, purchasePct, sellingPct, wholesalePct float64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.companies[companyID]; !exists {
		return 0, store.ErrNotFound
	}

	updated := 0
	for id, product := range s.products {
		if product.CompanyID == nil || *product.CompanyID != companyID {
			continue
		}
		product.PurchasePrice *= 1 + purchasePct/100
		product.SellingPrice *= 1 + sellingPct/100
		product.WholesalePrice *= 1 + wholesalePct/100
		s.products[id] = product
		updated++
	}
	return updated, nil
}

func (s *Store) GetDailyReport(_ context.Context) ([]domain.DailyReportRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byDay := make(map[string]*domain.DailyReportRow)
	for id, invoice := range s.invoices {
		day := invoice.Date.UTC().Format("2006-01-02")
		row, exists := byDay[day]
		if !exists {
			row = &domain.DailyReportRow{Date: day}
			byDay[day] = row
		}
		row.InvoiceCount++
		row.Revenue += invoice.Total
		for _, line := range s.invoiceLines[id] {
			row.Cost += float64(line.Quantity) * line.HistoricalPurchasePrice
		}
	}

	rows := make([]domain.DailyReportRow, 0, len(byDay))
	for _, row := range byDay {
		row.Profit = row.Revenue - row.Cost
		rows = append(rows, *row)
	}
	slices.SortFunc(rows, func(a, b domain.DailyReportRow) int {
		return strings.Compare(b.Date, a.Date)
	})
	return rows, nil
}

func (s *Store) ListInvoicesByDay(_ context.Context, day string) ([]domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoices := make([]domain.Invoice, 0, 8)
	for _, invoice := range s.invoices {
		if invoice.Date.UTC().Format("2006-01-02") != day {
			continue
		}
		invoices = append(invoices, invoice)
	}
	slices.SortFunc(invoices, func(a, b domain.Invoice) int {
		if a.Date.Equal(b.Date) {
			return int(b.ID - a.ID)
		}
		if a.Date.After(b.Date) {
			return -1
		}
		return 1
	})
	return invoices, nil
}

func (s *Store) GetInvoiceDetail(_ context.Context, invoiceID int64) (*domain.Invoice, []domain.InvoiceLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoice, exists := s.invoices[invoiceID]
	if !exists {
		return nil, nil, store.ErrNotFound
	}
	lines := make([]domain.InvoiceLine, len(s.invoiceLines[invoiceID]))
	copy(lines, s.invoiceLines[invoiceID])
	found := invoice
	return &found, lines, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" {
		return store.ErrValidation
	}
	if _, exists := s.users[user.Username]; exists {
		return store.ErrConflict
	}
	s.users[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.users[username] = user
	return nil
}

func (s *Store) getOrCreateCompanyLocked(name string) int64 {
	if id, exists := s.companyByName[name]; exists {
		return id
	}
	s.nextCompanyID++
	s.companies[s.nextCompanyID] = domain.Company{ID: s.nextCompanyID, Name: name}
	s.companyByName[name] = s.nextCompanyID
	return s.nextCompanyID
}

func (s *Store) withCompanyNameLocked(product domain.Product) domain.Product {
	if product.CompanyID != nil {
		if company, exists := s.companies[*product.CompanyID]; exists {
			product.CompanyName = company.Name
		}
	}
	return product
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
