package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"scanpos/internal/cache"
	"scanpos/internal/domain"
	"scanpos/internal/draft"
	"scanpos/internal/scan"
	"scanpos/internal/store"
)

const companyCacheKey = "companies:all"

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Service owns the register session: the draft order, the pending unresolved
// scan, and every path into the ledger store. The session mutex makes it the
// single logical writer; the scan loop and interactive handlers all funnel
// through it, so draft state never needs its own locking.
type Service struct {
	repo       store.Repository
	companies  cache.CompanyCache
	companyTTL time.Duration

	mu      sync.Mutex
	order   *draft.Order
	pending *domain.PendingScan
}

func New(repo store.Repository, companies cache.CompanyCache, companyTTL time.Duration) *Service {
	if companies == nil {
		companies = cache.NoopCompanyCache{}
	}
	if companyTTL <= 0 {
		companyTTL = 5 * time.Minute
	}

	return &Service{
		repo:       repo,
		companies:  companies,
		companyTTL: companyTTL,
		order:      draft.NewOrder(),
	}
}

// RunScanLoop drains the scan queue on a fixed interval until ctx is done.
// Each tick consumes at most drainLimit codes so a scanner burst cannot starve
// interactive requests of the session mutex. Draining suspends while a scan is
// pending resolution: codes stay queued in arrival order and nothing is lost.
func (s *Service) RunScanLoop(ctx context.Context, queue *scan.Queue, interval time.Duration, drainLimit int) {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	if drainLimit < 1 {
		drainLimit = 32
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[scan-loop] stopped")
			return
		case <-ticker.C:
			for i := 0; i < drainLimit; i++ {
				if s.PendingScan() != nil {
					break
				}
				code, ok := queue.Pop()
				if !ok {
					break
				}
				if err := s.ProcessScan(ctx, code); err != nil {
					log.Printf("[scan-loop] process %q: %v", code, err)
				}
			}
		}
	}
}

// ProcessScan resolves a scanned code against the catalog. A known SKU is
// merged into the draft at retail mode; an unknown SKU becomes the pending
// scan awaiting product creation or dismissal.
func (s *Service) ProcessScan(ctx context.Context, code string) error {
	sku := draft.NormalizeSKU(code)
	if sku == "" {
		return store.ErrValidation
	}

	product, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.mu.Lock()
			s.pending = &domain.PendingScan{SKU: sku, ReceivedAt: time.Now().UTC()}
			s.mu.Unlock()
			log.Printf("[scan-loop] unknown sku %s, awaiting resolution", sku)
			return nil
		}
		return err
	}

	s.mu.Lock()
	line := s.order.Add(*product, domain.ModeRetail)
	s.mu.Unlock()
	log.Printf("[scan-loop] %s x%d", line.SKU, line.Quantity)
	return nil
}

func (s *Service) PendingScan() *domain.PendingScan {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return nil
	}
	pending := *s.pending
	return &pending
}

func (s *Service) DismissPendingScan() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return store.ErrNotFound
	}
	log.Printf("[service] dismissed pending scan %s", s.pending.SKU)
	s.pending = nil
	return nil
}

func (s *Service) DraftView() domain.DraftResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.DraftResponse{Lines: s.order.Lines(), Total: s.order.Total()}
}

func (s *Service) AddDraftLine(ctx context.Context, req domain.DraftAddRequest) (domain.DraftResponse, error) {
	sku := draft.NormalizeSKU(req.SKU)
	if sku == "" {
		return domain.DraftResponse{}, store.ErrValidation
	}
	mode := req.Mode
	if mode == "" {
		mode = domain.ModeRetail
	}
	if !mode.Valid() {
		return domain.DraftResponse{}, store.ErrValidation
	}

	product, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		return domain.DraftResponse{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.order.Add(*product, mode)
	return domain.DraftResponse{Lines: s.order.Lines(), Total: s.order.Total()}, nil
}

func (s *Service) UpdateDraftLine(sku string, req domain.DraftLineUpdateRequest) (domain.DraftResponse, error) {
	sku = draft.NormalizeSKU(sku)
	if sku == "" || (req.Quantity == nil && req.Mode == nil) {
		return domain.DraftResponse{}, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Quantity != nil {
		if err := s.order.SetQuantity(sku, *req.Quantity); err != nil {
			return domain.DraftResponse{}, err
		}
	}
	if req.Mode != nil {
		if _, exists := s.order.Line(sku); exists {
			if err := s.order.SetMode(sku, *req.Mode); err != nil {
				return domain.DraftResponse{}, err
			}
		} else if req.Quantity == nil {
			return domain.DraftResponse{}, store.ErrNotFound
		}
	}
	return domain.DraftResponse{Lines: s.order.Lines(), Total: s.order.Total()}, nil
}

func (s *Service) RemoveDraftLine(sku string) (domain.DraftResponse, error) {
	sku = draft.NormalizeSKU(sku)
	if sku == "" {
		return domain.DraftResponse{}, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.order.Remove(sku); err != nil {
		return domain.DraftResponse{}, err
	}
	return domain.DraftResponse{Lines: s.order.Lines(), Total: s.order.Total()}, nil
}

func (s *Service) DiscardDraft() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order.Clear()
}

// Settle commits the draft as an invoice. The store transaction re-reads
// current prices and stock; on success the draft is cleared, on any failure it
// is left intact for correction and retry.
func (s *Service) Settle(ctx context.Context) (domain.SettleResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.order.Empty() {
		return domain.SettleResponse{}, store.ErrValidation
	}

	invoice, lines, err := s.repo.CommitInvoice(ctx, s.order.Lines(), time.Now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrInsufficientStock) ||
			errors.Is(err, store.ErrNotFound) ||
			errors.Is(err, store.ErrValidation) {
			return domain.SettleResponse{}, err
		}
		return domain.SettleResponse{}, fmt.Errorf("%w: %v", store.ErrSettlementFailed, err)
	}

	s.order.Clear()
	log.Printf("[service] settled invoice %d total=%.2f lines=%d", invoice.ID, invoice.Total, len(lines))
	return domain.SettleResponse{Invoice: *invoice, Lines: lines}, nil
}

func (s *Service) ListProducts(ctx context.Context, search string) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, search)
}

func (s *Service) GetProduct(ctx context.Context, sku string) (domain.Product, error) {
	sku = draft.NormalizeSKU(sku)
	if sku == "" {
		return domain.Product{}, store.ErrValidation
	}
	product, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

// CreateProduct registers a product. When its SKU matches the pending scan,
// the pending scan is resolved by adding the new product to the draft, the
// same path a recognized scan takes.
func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	req.SKU = draft.NormalizeSKU(req.SKU)
	req.Name = strings.TrimSpace(req.Name)
	req.CompanyName = strings.TrimSpace(req.CompanyName)
	if req.SKU == "" || req.Name == "" {
		return domain.Product{}, store.ErrValidation
	}
	if req.Stock < 0 || req.PurchasePrice < 0 || req.SellingPrice < 0 || req.WholesalePrice < 0 {
		return domain.Product{}, store.ErrValidation
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:           req.Name,
		SKU:            req.SKU,
		Stock:          req.Stock,
		PurchasePrice:  req.PurchasePrice,
		SellingPrice:   req.SellingPrice,
		WholesalePrice: req.WholesalePrice,
	}, req.CompanyName)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Another caller created this SKU first. The pending scan, if it
			// matches, resolves against the winner row the same way a
			// recognized scan would.
			s.resolvePendingAgainstExisting(ctx, req.SKU)
		}
		return domain.Product{}, err
	}

	if req.CompanyName != "" {
		s.refreshCompanyCache(ctx)
	}

	s.mu.Lock()
	if s.pending != nil && s.pending.SKU == created.SKU {
		s.pending = nil
		line := s.order.Add(*created, domain.ModeRetail)
		log.Printf("[service] pending scan %s resolved, %s x%d", created.SKU, line.SKU, line.Quantity)
	}
	s.mu.Unlock()

	return *created, nil
}

func (s *Service) resolvePendingAgainstExisting(ctx context.Context, sku string) {
	product, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil || s.pending.SKU != sku {
		return
	}
	s.pending = nil
	line := s.order.Add(*product, domain.ModeRetail)
	log.Printf("[service] pending scan %s resolved against existing product, %s x%d", sku, line.SKU, line.Quantity)
}

// UpdateProduct replenishes stock and optionally replaces prices. Stock is
// additive: the request carries units received, not a new absolute level.
func (s *Service) UpdateProduct(ctx context.Context, sku string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	sku = draft.NormalizeSKU(sku)
	if sku == "" || req.AdditionalStock < 0 {
		return domain.Product{}, store.ErrValidation
	}

	existing, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	updated.Stock += req.AdditionalStock
	if req.PurchasePrice != nil {
		if *req.PurchasePrice < 0 {
			return domain.Product{}, store.ErrValidation
		}
		updated.PurchasePrice = *req.PurchasePrice
	}
	if req.SellingPrice != nil {
		if *req.SellingPrice < 0 {
			return domain.Product{}, store.ErrValidation
		}
		updated.SellingPrice = *req.SellingPrice
	}
	if req.WholesalePrice != nil {
		if *req.WholesalePrice < 0 {
			return domain.Product{}, store.ErrValidation
		}
		updated.WholesalePrice = *req.WholesalePrice
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	return *saved, nil
}

func (s *Service) ListCompanies(ctx context.Context) ([]domain.Company, error) {
	if companies, hit, err := s.companies.Get(ctx, companyCacheKey); err == nil && hit {
		return companies, nil
	} else if err != nil {
		log.Printf("[service] WARN: company cache read: %v", err)
	}

	companies, err := s.repo.ListCompanies(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.companies.Set(ctx, companyCacheKey, companies, s.companyTTL); err != nil {
		log.Printf("[service] WARN: company cache write: %v", err)
	}
	return companies, nil
}

// Reprice applies percentage deltas to every product of one company. Invoice
// lines are untouched by construction: the store writes product rows only.
func (s *Service) Reprice(ctx context.Context, req domain.RepriceRequest) (domain.RepriceResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.RepriceResponse{}, fmt.Errorf("admin role required")
	}
	if req.CompanyID < 1 {
		return domain.RepriceResponse{}, store.ErrValidation
	}

	updated, err := s.repo.RepriceCompany(ctx, req.CompanyID, req.PurchasePct, req.SellingPct, req.WholesalePct)
	if err != nil {
		return domain.RepriceResponse{}, err
	}

	log.Printf("[service] repriced company %d: %d products (purchase %+.2f%%, selling %+.2f%%, wholesale %+.2f%%)",
		req.CompanyID, updated, req.PurchasePct, req.SellingPct, req.WholesalePct)
	return domain.RepriceResponse{CompanyID: req.CompanyID, ProductsUpdated: updated}, nil
}

func (s *Service) DailyReport(ctx context.Context) ([]domain.DailyReportRow, error) {
	return s.repo.GetDailyReport(ctx)
}

func (s *Service) ListInvoicesByDay(ctx context.Context, day string) ([]domain.Invoice, error) {
	if _, err := time.Parse("2006-01-02", day); err != nil {
		return nil, store.ErrValidation
	}
	return s.repo.ListInvoicesByDay(ctx, day)
}

func (s *Service) InvoiceDetail(ctx context.Context, invoiceID int64) (domain.InvoiceDetail, error) {
	if invoiceID < 1 {
		return domain.InvoiceDetail{}, store.ErrValidation
	}

	invoice, lines, err := s.repo.GetInvoiceDetail(ctx, invoiceID)
	if err != nil {
		return domain.InvoiceDetail{}, err
	}

	detail := domain.InvoiceDetail{Invoice: *invoice, Lines: lines}
	for _, line := range lines {
		detail.Revenue += float64(line.Quantity) * line.HistoricalSellingPrice
		detail.Cost += float64(line.Quantity) * line.HistoricalPurchasePrice
	}
	detail.Profit = detail.Revenue - detail.Cost
	return detail, nil
}

func (s *Service) refreshCompanyCache(ctx context.Context) {
	companies, err := s.repo.ListCompanies(ctx)
	if err != nil {
		log.Printf("[service] WARN: company cache refresh: %v", err)
		return
	}
	if err := s.companies.Set(ctx, companyCacheKey, companies, s.companyTTL); err != nil {
		log.Printf("[service] WARN: company cache write: %v", err)
	}
}
