package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"scanpos/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrValidation        = errors.New("validation failed")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrSettlementFailed  = errors.New("settlement failed")
)

// InsufficientStockError identifies the product whose stock could not cover
// its draft line. It matches errors.Is(err, ErrInsufficientStock).
type InsufficientStockError struct {
	ProductName string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s", e.ProductName)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// Repository is the ledger store: persisted products, companies, invoices and
// invoice lines, plus the two atomic operations (CommitInvoice,
// RepriceCompany). Implementations guarantee each mutating method is
// all-or-nothing; readers never observe partial state.
type Repository interface {
	ListProducts(ctx context.Context, search string) ([]domain.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	GetProductByID(ctx context.Context, id int64) (*domain.Product, error)
	// CreateProduct inserts a product. A non-empty companyName resolves an
	// existing company or creates one in the same atomic unit; empty means a
	// null company reference. Duplicate SKU is ErrConflict.
	CreateProduct(ctx context.Context, product domain.Product, companyName string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	ListCompanies(ctx context.Context) ([]domain.Company, error)

	// CommitInvoice settles a draft: inside one transaction it re-reads each
	// product's current prices, verifies stock, persists the invoice and its
	// lines with historical price snapshots, and decrements stock. Returns
	// InsufficientStockError when a line exceeds current stock; any error
	// leaves the ledger untouched.
	CommitInvoice(ctx context.Context, lines []domain.DraftLine, at time.Time) (*domain.Invoice, []domain.InvoiceLine, error)

	// RepriceCompany applies a percentage delta to each price field of every
	// product under the company. Writes product rows only; invoice lines are
	// never touched. Returns the number of products updated.
	RepriceCompany(ctx context.Context, companyID int64, purchasePct, sellingPct, wholesalePct float64) (int, error)

	GetDailyReport(ctx context.Context) ([]domain.DailyReportRow, error)
	ListInvoicesByDay(ctx context.Context, day string) ([]domain.Invoice, error)
	GetInvoiceDetail(ctx context.Context, invoiceID int64) (*domain.Invoice, []domain.InvoiceLine, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
