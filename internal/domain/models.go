package domain

import "time"

// PriceMode selects which product price a draft line charges.
type PriceMode string

const (
	ModeRetail    PriceMode = "retail"
	ModeWholesale PriceMode = "wholesale"
)

func (m PriceMode) Valid() bool {
	return m == ModeRetail || m == ModeWholesale
}

type Product struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	SKU            string  `json:"sku"`
	Stock          int     `json:"stock"`
	PurchasePrice  float64 `json:"purchase_price"`
	SellingPrice   float64 `json:"selling_price"`
	WholesalePrice float64 `json:"wholesale_price"`
	CompanyID      *int64  `json:"company_id,omitempty"`
	CompanyName    string  `json:"company_name,omitempty"`
}

type Company struct {
	ID                   int64   `json:"company_id"`
	Name                 string  `json:"name"`
	DailyPricePercentage float64 `json:"daily_price_percentage"`
}

type Invoice struct {
	ID    int64     `json:"id"`
	Date  time.Time `json:"date"`
	Total float64   `json:"total"`
}

type InvoiceLine struct {
	InvoiceID   int64  `json:"invoice_id"`
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name,omitempty"`
	Quantity    int    `json:"quantity"`
	// UnitPrice is the price actually charged, after the retail/wholesale
	// selection made on the draft line.
	UnitPrice  float64 `json:"unit_price"`
	TotalPrice float64 `json:"total_price"`
	// HistoricalPurchasePrice and HistoricalSellingPrice are point-in-time
	// copies frozen at commit. Repricing and product edits never touch them.
	HistoricalPurchasePrice float64 `json:"historical_purchase_price"`
	HistoricalSellingPrice  float64 `json:"historical_selling_price"`
}

// DraftLine is an uncommitted line item. StockAtSelection is a snapshot taken
// when the product entered the draft, used only for client-side validation;
// settlement re-checks against persisted stock.
type DraftLine struct {
	ProductID        int64     `json:"product_id"`
	SKU              string    `json:"sku"`
	Name             string    `json:"name"`
	Quantity         int       `json:"quantity"`
	Mode             PriceMode `json:"mode"`
	SellingPrice     float64   `json:"selling_price"`
	WholesalePrice   float64   `json:"wholesale_price"`
	StockAtSelection int       `json:"stock_at_selection"`
}

// PendingScan is a scanned code whose SKU resolved to no product. The scan
// loop suspends draining until it is resolved by product creation or dismissal.
type PendingScan struct {
	SKU        string    `json:"sku"`
	ReceivedAt time.Time `json:"received_at"`
}

type ProductCreateRequest struct {
	Name           string  `json:"name"`
	SKU            string  `json:"sku"`
	Stock          int     `json:"stock"`
	PurchasePrice  float64 `json:"purchase_price"`
	SellingPrice   float64 `json:"selling_price"`
	WholesalePrice float64 `json:"wholesale_price"`
	CompanyName    string  `json:"company_name,omitempty"`
}

// ProductUpdateRequest carries a stock replenishment plus new absolute prices.
// AdditionalStock is added to the current stock, never assigned over it.
type ProductUpdateRequest struct {
	AdditionalStock int      `json:"additional_stock"`
	PurchasePrice   *float64 `json:"purchase_price,omitempty"`
	SellingPrice    *float64 `json:"selling_price,omitempty"`
	WholesalePrice  *float64 `json:"wholesale_price,omitempty"`
}

type RepriceRequest struct {
	CompanyID    int64   `json:"company_id"`
	PurchasePct  float64 `json:"purchase_pct"`
	SellingPct   float64 `json:"selling_pct"`
	WholesalePct float64 `json:"wholesale_pct"`
}

type RepriceResponse struct {
	CompanyID       int64 `json:"company_id"`
	ProductsUpdated int   `json:"products_updated"`
}

type DraftAddRequest struct {
	SKU  string    `json:"sku"`
	Mode PriceMode `json:"mode,omitempty"`
}

type DraftLineUpdateRequest struct {
	Quantity *int       `json:"quantity,omitempty"`
	Mode     *PriceMode `json:"mode,omitempty"`
}

type DraftResponse struct {
	Lines []DraftLine `json:"lines"`
	Total float64     `json:"total"`
}

type SettleResponse struct {
	Invoice Invoice       `json:"invoice"`
	Lines   []InvoiceLine `json:"lines"`
}

type InvoiceDetail struct {
	Invoice Invoice       `json:"invoice"`
	Lines   []InvoiceLine `json:"lines"`
	Revenue float64       `json:"revenue"`
	Cost    float64       `json:"cost"`
	Profit  float64       `json:"profit"`
}

// DailyReportRow aggregates one calendar day of invoices. Cost and Profit are
// derived from the lines' historical_* fields only, never current prices.
type DailyReportRow struct {
	Date         string  `json:"date"`
	InvoiceCount int64   `json:"invoice_count"`
	Revenue      float64 `json:"revenue"`
	Cost         float64 `json:"cost"`
	Profit       float64 `json:"profit"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
