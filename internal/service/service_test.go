package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"scanpos/internal/domain"
	"scanpos/internal/scan"
	"scanpos/internal/store"
	"scanpos/internal/store/memory"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	repo := memory.New()
	svc := New(repo, nil, 0)
	return svc, repo
}

func seedProduct(t *testing.T, repo *memory.Store, sku string, stock int, purchase, selling, wholesale float64, company string) domain.Product {
	t.Helper()
	created, err := repo.CreateProduct(context.Background(), domain.Product{
		Name:           "Product " + sku,
		SKU:            sku,
		Stock:          stock,
		PurchasePrice:  purchase,
		SellingPrice:   selling,
		WholesalePrice: wholesale,
	}, company)
	if err != nil {
		t.Fatalf("seed %s: %v", sku, err)
	}
	return *created
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRepeatedScansAggregateIntoOneLine(t *testing.T) {
	svc, repo := newTestService(t)
	seedProduct(t, repo, "A1", 10, 2.00, 5.00, 4.00, "")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := svc.ProcessScan(ctx, "A1"); err != nil {
			t.Fatalf("process scan: %v", err)
		}
	}

	view := svc.DraftView()
	if len(view.Lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(view.Lines))
	}
	if view.Lines[0].Quantity != 3 {
		t.Fatalf("expected quantity 3, got %d", view.Lines[0].Quantity)
	}
	if !almostEqual(view.Total, 15.00) {
		t.Fatalf("expected total 15.00, got %.2f", view.Total)
	}
}

func TestSettleFreezesPricesAndClearsDraft(t *testing.T) {
	svc, repo := newTestService(t)
	created := seedProduct(t, repo, "A1", 10, 2.00, 5.00, 4.00, "")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := svc.ProcessScan(ctx, "A1"); err != nil {
			t.Fatalf("process scan: %v", err)
		}
	}

	resp, err := svc.Settle(ctx)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !almostEqual(resp.Invoice.Total, 15.00) {
		t.Fatalf("expected invoice total 15.00, got %.2f", resp.Invoice.Total)
	}
	if len(resp.Lines) != 1 {
		t.Fatalf("expected 1 invoice line, got %d", len(resp.Lines))
	}
	line := resp.Lines[0]
	if !almostEqual(line.HistoricalPurchasePrice, 2.00) || !almostEqual(line.HistoricalSellingPrice, 5.00) {
		t.Fatalf("unexpected historical prices: %+v", line)
	}

	after, err := repo.GetProductByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.Stock != 7 {
		t.Fatalf("expected stock 7, got %d", after.Stock)
	}

	if view := svc.DraftView(); len(view.Lines) != 0 {
		t.Fatalf("expected draft cleared after settle, got %d lines", len(view.Lines))
	}
}

func TestSettleInsufficientStockLeavesEverythingIntact(t *testing.T) {
	svc, repo := newTestService(t)
	created := seedProduct(t, repo, "A1", 2, 2.00, 5.00, 4.00, "")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := svc.ProcessScan(ctx, "A1"); err != nil {
			t.Fatalf("process scan: %v", err)
		}
	}

	_, err := svc.Settle(ctx)
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	var stockErr *store.InsufficientStockError
	if !errors.As(err, &stockErr) || stockErr.ProductName != "Product A1" {
		t.Fatalf("expected error naming the product, got %v", err)
	}

	after, _ := repo.GetProductByID(ctx, created.ID)
	if after.Stock != 2 {
		t.Fatalf("stock changed on failed settle: %d", after.Stock)
	}
	report, _ := repo.GetDailyReport(ctx)
	if len(report) != 0 {
		t.Fatalf("invoice persisted on failed settle: %+v", report)
	}

	// Draft stays intact for correction and retry.
	view := svc.DraftView()
	if len(view.Lines) != 1 || view.Lines[0].Quantity != 3 {
		t.Fatalf("draft lost on failed settle: %+v", view)
	}
}

func TestSettleEmptyDraft(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Settle(context.Background()); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPriceEditBetweenScanAndSettleWins(t *testing.T) {
	svc, repo := newTestService(t)
	seedProduct(t, repo, "A1", 10, 2.00, 5.00, 4.00, "")
	ctx := context.Background()

	if err := svc.ProcessScan(ctx, "A1"); err != nil {
		t.Fatalf("process scan: %v", err)
	}

	newPrice := 6.00
	if _, err := svc.UpdateProduct(adminCtx(), "A1", domain.ProductUpdateRequest{SellingPrice: &newPrice}); err != nil {
		t.Fatalf("update product: %v", err)
	}

	resp, err := svc.Settle(ctx)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !almostEqual(resp.Lines[0].UnitPrice, 6.00) {
		t.Fatalf("settlement must charge the price current at commit, got %.2f", resp.Lines[0].UnitPrice)
	}
	if !almostEqual(resp.Lines[0].HistoricalSellingPrice, 6.00) {
		t.Fatalf("historical selling price must be the charged price, got %.2f", resp.Lines[0].HistoricalSellingPrice)
	}
}

func TestRepriceNeverTouchesSettledInvoices(t *testing.T) {
	svc, repo := newTestService(t)
	created := seedProduct(t, repo, "A1", 10, 2.00, 5.00, 4.00, "Aqua Distribution")
	ctx := context.Background()

	if err := svc.ProcessScan(ctx, "A1"); err != nil {
		t.Fatalf("process scan: %v", err)
	}
	settled, err := svc.Settle(ctx)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}

	resp, err := svc.Reprice(adminCtx(), domain.RepriceRequest{
		CompanyID:   *created.CompanyID,
		PurchasePct: 10, SellingPct: -5, WholesalePct: 0,
	})
	if err != nil {
		t.Fatalf("reprice: %v", err)
	}
	if resp.ProductsUpdated != 1 {
		t.Fatalf("expected 1 product updated, got %d", resp.ProductsUpdated)
	}

	detail, err := svc.InvoiceDetail(ctx, settled.Invoice.ID)
	if err != nil {
		t.Fatalf("invoice detail: %v", err)
	}
	line := detail.Lines[0]
	if !almostEqual(line.HistoricalPurchasePrice, 2.00) || !almostEqual(line.HistoricalSellingPrice, 5.00) {
		t.Fatalf("repricing leaked into historical data: %+v", line)
	}
	if !almostEqual(detail.Profit, 3.00) {
		t.Fatalf("expected profit 3.00 from historical prices, got %.2f", detail.Profit)
	}
}

func TestRepriceRequiresAdmin(t *testing.T) {
	svc, repo := newTestService(t)
	created := seedProduct(t, repo, "A1", 10, 2.00, 5.00, 4.00, "Aqua Distribution")

	cashier := WithActor(context.Background(), domain.Actor{Username: "cashier", Role: "cashier"})
	_, err := svc.Reprice(cashier, domain.RepriceRequest{CompanyID: *created.CompanyID, SellingPct: 10})
	if err == nil || !strings.Contains(err.Error(), "admin role required") {
		t.Fatalf("expected admin role required, got %v", err)
	}
}

func TestUnknownSKUBecomesPendingAndResolvesOnCreate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.ProcessScan(ctx, "zz9"); err != nil {
		t.Fatalf("process scan: %v", err)
	}

	pending := svc.PendingScan()
	if pending == nil || pending.SKU != "ZZ9" {
		t.Fatalf("expected pending scan ZZ9, got %+v", pending)
	}

	created, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Name: "New Item", SKU: "ZZ9", Stock: 5, PurchasePrice: 1.00, SellingPrice: 2.00, WholesalePrice: 1.50,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if created.SKU != "ZZ9" {
		t.Fatalf("unexpected created sku %s", created.SKU)
	}

	if svc.PendingScan() != nil {
		t.Fatalf("pending scan not cleared by product creation")
	}
	view := svc.DraftView()
	if len(view.Lines) != 1 || view.Lines[0].SKU != "ZZ9" || view.Lines[0].Quantity != 1 {
		t.Fatalf("resolved scan not added to draft: %+v", view)
	}
}

func TestCreateProductWithDifferentSKULeavesPending(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.ProcessScan(ctx, "ZZ9"); err != nil {
		t.Fatalf("process scan: %v", err)
	}
	if _, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Name: "Other Item", SKU: "OTHER", SellingPrice: 1.00,
	}); err != nil {
		t.Fatalf("create product: %v", err)
	}

	pending := svc.PendingScan()
	if pending == nil || pending.SKU != "ZZ9" {
		t.Fatalf("pending scan must survive unrelated product creation, got %+v", pending)
	}
}

func TestCreateConflictResolvesMatchingPendingScan(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	if err := svc.ProcessScan(ctx, "ZZ9"); err != nil {
		t.Fatalf("process scan: %v", err)
	}
	// Another caller wins the creation race for the same SKU.
	seedProduct(t, repo, "ZZ9", 5, 1.00, 3.00, 2.50, "")

	_, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Name: "Late Duplicate", SKU: "ZZ9", SellingPrice: 3.00,
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}

	if pending := svc.PendingScan(); pending != nil {
		t.Fatalf("pending scan must resolve against the winner row, got %+v", pending)
	}
	view := svc.DraftView()
	if len(view.Lines) != 1 || view.Lines[0].SKU != "ZZ9" || view.Lines[0].Quantity != 1 {
		t.Fatalf("unexpected draft after conflict resolution: %+v", view.Lines)
	}
}

func TestDismissPendingScan(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.DismissPendingScan(); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found with no pending scan, got %v", err)
	}

	if err := svc.ProcessScan(ctx, "ZZ9"); err != nil {
		t.Fatalf("process scan: %v", err)
	}
	if err := svc.DismissPendingScan(); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	if svc.PendingScan() != nil {
		t.Fatalf("pending scan not cleared by dismissal")
	}
}

func TestScanLoopSuspendsWhilePendingAndPreservesOrder(t *testing.T) {
	svc, repo := newTestService(t)
	seedProduct(t, repo, "A1", 10, 2.00, 5.00, 4.00, "")

	queue := scan.NewQueue()
	queue.Push("ZZ9")
	queue.Push("A1")

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		svc.RunScanLoop(ctx, queue, time.Millisecond, 8)
	}()

	waitFor(t, "pending scan", func() bool { return svc.PendingScan() != nil })

	// While pending, the loop must not consume queued codes.
	time.Sleep(20 * time.Millisecond)
	if queue.Len() != 1 {
		t.Fatalf("queue drained while scan pending: len=%d", queue.Len())
	}

	if _, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Name: "New Item", SKU: "ZZ9", Stock: 5, SellingPrice: 2.00,
	}); err != nil {
		t.Fatalf("create product: %v", err)
	}

	waitFor(t, "queue drained", func() bool { return queue.Len() == 0 })
	waitFor(t, "both lines in draft", func() bool { return len(svc.DraftView().Lines) == 2 })

	view := svc.DraftView()
	if view.Lines[0].SKU != "ZZ9" || view.Lines[1].SKU != "A1" {
		t.Fatalf("arrival order lost: %+v", view.Lines)
	}

	cancel()
	wg.Wait()
}

func TestAddDraftLineWholesaleMode(t *testing.T) {
	svc, repo := newTestService(t)
	seedProduct(t, repo, "A1", 10, 2.00, 5.00, 4.00, "")

	resp, err := svc.AddDraftLine(context.Background(), domain.DraftAddRequest{SKU: "a1", Mode: domain.ModeWholesale})
	if err != nil {
		t.Fatalf("add draft line: %v", err)
	}
	if !almostEqual(resp.Total, 4.00) {
		t.Fatalf("expected wholesale total 4.00, got %.2f", resp.Total)
	}
}

func TestUpdateDraftLineQuantityAndMode(t *testing.T) {
	svc, repo := newTestService(t)
	seedProduct(t, repo, "A1", 10, 2.00, 5.00, 4.00, "")
	ctx := context.Background()

	if _, err := svc.AddDraftLine(ctx, domain.DraftAddRequest{SKU: "A1"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	qty := 4
	mode := domain.ModeWholesale
	resp, err := svc.UpdateDraftLine("A1", domain.DraftLineUpdateRequest{Quantity: &qty, Mode: &mode})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !almostEqual(resp.Total, 16.00) {
		t.Fatalf("expected total 16.00, got %.2f", resp.Total)
	}

	zero := 0
	resp, err = svc.UpdateDraftLine("A1", domain.DraftLineUpdateRequest{Quantity: &zero})
	if err != nil {
		t.Fatalf("update to zero: %v", err)
	}
	if len(resp.Lines) != 0 {
		t.Fatalf("expected line removed at quantity zero")
	}
}

func TestUpdateProductAddsStock(t *testing.T) {
	svc, repo := newTestService(t)
	seedProduct(t, repo, "A1", 10, 2.00, 5.00, 4.00, "")

	updated, err := svc.UpdateProduct(adminCtx(), "A1", domain.ProductUpdateRequest{AdditionalStock: 5})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Stock != 15 {
		t.Fatalf("expected stock 15, got %d", updated.Stock)
	}
	if !almostEqual(updated.SellingPrice, 5.00) {
		t.Fatalf("prices must be untouched when omitted, got %.2f", updated.SellingPrice)
	}
}

func TestListInvoicesByDayValidatesFormat(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.ListInvoicesByDay(context.Background(), "14-03-2026"); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
