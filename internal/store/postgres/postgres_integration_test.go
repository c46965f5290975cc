package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cafepos/backend/internal/domain"
	"cafepos/backend/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("CAFEPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set CAFEPOS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func seedLots(t *testing.T, s *Store, productID string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_entries WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	err := s.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		if _, err := repo.CreateProduct(ctx, domain.Product{
			ID: productID, Name: productID, Type: domain.ProductRaw, TracksInventory: true, IsActive: true,
			CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			return err
		}
		for i, cost := range []string{"5000", "6000"} {
			if _, err := repo.InsertStockEntry(ctx, domain.StockEntry{
				ID:                fmt.Sprintf("%s-lot-%d", productID, i),
				ProductID:         productID,
				MovementType:      domain.MovementPurchaseIn,
				InitialQuantity:   decimal.NewFromInt(50),
				RemainingQuantity: decimal.NewFromInt(50),
				UnitCost:          decimal.NewNullDecimal(decimal.RequireFromString(cost)),
				Source:            domain.SourceRef{Kind: domain.SourcePurchase, ID: "it"},
				CreatedAt:         now.Add(time.Duration(i-2) * time.Hour),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed lots: %v", err)
	}
}

func TestLockOpenLotsReturnsOldestFirst(t *testing.T) {
	s := openTestStore(t)
	productID := fmt.Sprintf("prod-it-%d", time.Now().UnixNano())
	seedLots(t, s, productID)

	ctx := context.Background()
	err := s.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		lots, err := repo.LockOpenLots(ctx, productID)
		if err != nil {
			return err
		}
		if len(lots) != 2 || lots[0].ID != productID+"-lot-0" {
			return fmt.Errorf("unexpected lot order: %+v", lots)
		}
		if err := repo.UpdateLotRemaining(ctx, lots[0].ID, decimal.Zero); err != nil {
			return err
		}
		available, err := repo.AvailableQuantity(ctx, productID)
		if err != nil {
			return err
		}
		if !available.Equal(decimal.NewFromInt(50)) {
			return fmt.Errorf("expected 50 available, got %s", available)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("draw lots: %v", err)
	}

	err = s.View(ctx, func(ctx context.Context, repo store.Repository) error {
		lots, err := repo.LockOpenLots(ctx, productID)
		if err != nil {
			return err
		}
		if len(lots) != 1 || lots[0].ID != productID+"-lot-1" {
			return fmt.Errorf("depleted lot must be skipped: %+v", lots)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view lots: %v", err)
	}
}

type draw struct {
	lotID    string
	quantity decimal.Decimal
}

// drawOldestFirst takes need units from the product's open lots in FIFO order
// and returns what it took with the resulting cost.
func drawOldestFirst(ctx context.Context, repo store.Repository, productID string, need decimal.Decimal, afterLock func()) ([]draw, decimal.Decimal, error) {
	lots, err := repo.LockOpenLots(ctx, productID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if afterLock != nil {
		afterLock()
	}
	draws := make([]draw, 0, len(lots))
	cost := decimal.Zero
	for _, lot := range lots {
		if !need.IsPositive() {
			break
		}
		take := decimal.Min(need, lot.RemainingQuantity)
		if err := repo.UpdateLotRemaining(ctx, lot.ID, lot.RemainingQuantity.Sub(take)); err != nil {
			return nil, decimal.Zero, err
		}
		draws = append(draws, draw{lotID: lot.ID, quantity: take})
		cost = cost.Add(take.Mul(lot.UnitCost.Decimal))
		need = need.Sub(take)
	}
	if need.IsPositive() {
		return nil, decimal.Zero, domain.InsufficientStock(productID, need)
	}
	return draws, cost, nil
}

func TestConcurrentDrawsQueueOnLotLocks(t *testing.T) {
	s := openTestStore(t)
	productID := fmt.Sprintf("prod-it-%d", time.Now().UnixNano())
	seedLots(t, s, productID)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	forty := decimal.NewFromInt(40)
	locked := make(chan struct{})
	var (
		wg          sync.WaitGroup
		firstDraws  []draw
		secondDraws []draw
		firstCost   decimal.Decimal
		secondCost  decimal.Decimal
		firstErr    error
		secondErr   error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		firstErr = s.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
			var err error
			firstDraws, firstCost, err = drawOldestFirst(ctx, repo, productID, forty, func() {
				close(locked)
				// hold the lot locks while the second drawer queues behind them
				time.Sleep(300 * time.Millisecond)
			})
			return err
		})
	}()
	go func() {
		defer wg.Done()
		<-locked
		secondErr = s.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
			var err error
			secondDraws, secondCost, err = drawOldestFirst(ctx, repo, productID, forty, nil)
			return err
		})
	}()
	wg.Wait()

	if firstErr != nil || secondErr != nil {
		t.Fatalf("draws failed: first=%v second=%v", firstErr, secondErr)
	}
	if len(firstDraws) != 1 || firstDraws[0].lotID != productID+"-lot-0" {
		t.Fatalf("first drawer should take only the oldest lot: %+v", firstDraws)
	}
	if len(secondDraws) != 2 ||
		secondDraws[0].lotID != productID+"-lot-0" || !secondDraws[0].quantity.Equal(decimal.NewFromInt(10)) ||
		secondDraws[1].lotID != productID+"-lot-1" || !secondDraws[1].quantity.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("second drawer should finish the oldest lot before the next: %+v", secondDraws)
	}
	if !firstCost.Equal(decimal.NewFromInt(200000)) || !secondCost.Equal(decimal.NewFromInt(230000)) {
		t.Fatalf("unexpected costs: first=%s second=%s", firstCost, secondCost)
	}

	err := s.View(ctx, func(ctx context.Context, repo store.Repository) error {
		available, err := repo.AvailableQuantity(ctx, productID)
		if err != nil {
			return err
		}
		if !available.Equal(decimal.NewFromInt(20)) {
			return fmt.Errorf("expected 20 left, got %s", available)
		}
		lots, err := repo.LockOpenLots(ctx, productID)
		if err != nil {
			return err
		}
		if len(lots) != 1 || lots[0].ID != productID+"-lot-1" {
			return fmt.Errorf("only the newer lot should stay open: %+v", lots)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	productID := fmt.Sprintf("prod-it-%d", time.Now().UnixNano())
	seedLots(t, s, productID)

	ctx := context.Background()
	boom := errors.New("boom")
	err := s.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		if err := repo.UpdateLotRemaining(ctx, productID+"-lot-0", decimal.Zero); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	err = s.View(ctx, func(ctx context.Context, repo store.Repository) error {
		available, err := repo.AvailableQuantity(ctx, productID)
		if err != nil {
			return err
		}
		if !available.Equal(decimal.NewFromInt(100)) {
			return fmt.Errorf("expected rollback to keep 100 available, got %s", available)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestDuplicateProductNameIsConflict(t *testing.T) {
	s := openTestStore(t)
	productID := fmt.Sprintf("prod-it-%d", time.Now().UnixNano())
	seedLots(t, s, productID)

	now := time.Now().UTC()
	err := s.WithTx(context.Background(), func(ctx context.Context, repo store.Repository) error {
		_, err := repo.CreateProduct(ctx, domain.Product{
			ID: productID + "-dup", Name: productID, Type: domain.ProductRaw, IsActive: true,
			CreatedAt: now, UpdatedAt: now,
		})
		return err
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestViewRejectsWrites(t *testing.T) {
	s := openTestStore(t)
	err := s.View(context.Background(), func(ctx context.Context, repo store.Repository) error {
		return repo.CreateAuditLog(ctx, domain.AuditLog{Action: "noop"})
	})
	if !errors.Is(err, store.ErrReadOnly) {
		t.Fatalf("expected read-only error, got %v", err)
	}
}
