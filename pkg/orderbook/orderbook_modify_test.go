package orderbook

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

func TestReplaceQuantityOnly(t *testing.T) {
	ob := newTestBook()
	mustNew(t, ob, BID, p21, 100, 1)
	mustNew(t, ob, BID, p21, 20, 2)

	mustReplace(t, ob, p21, 50, 1)

	checkSize(t, ob, p21, 70, 0)
	checkDepth(t, ob, 1, 0)
	view, ok := ob.Order(1)
	if !ok || view.Remaining != 50 || view.Side != BID {
		t.Fatalf("unexpected order view %+v (ok=%v)", view, ok)
	}
}

func TestReplaceMovesPriceAndKeepsSide(t *testing.T) {
	ob := newTestBook()
	mustNew(t, ob, ASK, p23, 100, 1)

	mustReplace(t, ob, p24, 80, 1)

	checkSize(t, ob, p23, 0, 0)
	checkSize(t, ob, p24, 0, 80)
	checkDepth(t, ob, 0, 1)
	checkTop(t, ob, p0, p24)

	view, _ := ob.Order(1)
	if view.Side != ASK || !view.Price.Equal(p24) {
		t.Fatalf("expected ASK @ 24, got %+v", view)
	}
}

func TestReplaceIntoExistingLevel(t *testing.T) {
	ob := newTestBook()
	mustNew(t, ob, BID, p20, 10, 1)
	mustNew(t, ob, BID, p22, 30, 2)

	mustReplace(t, ob, p22, 15, 1)

	checkDepth(t, ob, 1, 0)
	checkSize(t, ob, p22, 45, 0)
	checkSize(t, ob, p20, 0, 0)
}

func TestReplaceAfterPartialFill(t *testing.T) {
	ob := newTestBook()
	mustNew(t, ob, BID, p21, 100, 1)
	ob.ApplyTrade(40, 1)

	// replace sets the new quantity, it does not add to what is left
	mustReplace(t, ob, p21, 100, 1)
	checkSize(t, ob, p21, 100, 0)
}

func TestReplaceUnknownOrder(t *testing.T) {
	ob := newTestBook()
	mustReplace(t, ob, p21, 100, 42)

	checkDepth(t, ob, 0, 0)
	if ob.OrderCount() != 0 {
		t.Fatalf("replace of unknown id must not create an order")
	}
}

func TestReplaceThenCancel(t *testing.T) {
	ob := newTestBook()
	mustNew(t, ob, ASK, p22, 10, 7)
	mustReplace(t, ob, p23, 20, 7)
	ob.ApplyCancelOrder(7)

	checkDepth(t, ob, 0, 0)
	checkTop(t, ob, p0, p0)
}

// Replaces on distinct ids race with each other, never with themselves.
func TestConcurrentReplaces(t *testing.T) {
	ob := newTestBook()

	n := 200
	for i := 0; i < n; i++ {
		mustNew(t, ob, BID, p20, 10, uint64(i+1))
	}

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(id uint64) {
			defer wg.Done()
			target := p21
			if id%2 == 0 {
				target = p22
			}
			_ = ob.ApplyReplaceOrder(target, 5, id)
		}(uint64(i + 1))
	}
	wg.Wait()

	checkSize(t, ob, p20, 0, 0)
	checkSize(t, ob, p21, int64(n/2*5), 0)
	checkSize(t, ob, p22, int64(n/2*5), 0)
	checkDepth(t, ob, 2, 0)
	checkTop(t, ob, p22, p0)
}

func TestReplaceRacingCancel(t *testing.T) {
	for round := 0; round < 50; round++ {
		ob := newTestBook()
		mustNew(t, ob, BID, p21, 10, 1)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = ob.ApplyReplaceOrder(decimal.NewFromInt(25), 10, 1)
		}()
		go func() {
			defer wg.Done()
			ob.ApplyCancelOrder(1)
		}()
		wg.Wait()

		// either the cancel won outright, or it ran after the replace and removed the
		// moved order; in both cases 21 is gone
		checkSize(t, ob, p21, 0, 0)
		if depth := ob.BookDepth(BID); depth > 1 {
			t.Fatalf("round %d: unexpected bid depth %d", round, depth)
		}
	}
}
