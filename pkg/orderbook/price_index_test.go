package orderbook

import "testing"

func TestPriceIndexOrdering(t *testing.T) {
	bids := newPriceIndex(BID)
	asks := newPriceIndex(ASK)
	for _, p := range []Price{300, 100, 200} {
		bids.insert(newPriceLevel(BID, p, 1))
		asks.insert(newPriceLevel(ASK, p, 1))
	}

	if top := bids.top(); top == nil || top.Price() != 300 {
		t.Fatalf("expected best bid 300, got %v", top)
	}
	if top := asks.top(); top == nil || top.Price() != 100 {
		t.Fatalf("expected best ask 100, got %v", top)
	}

	var order []Price
	bids.walk(func(lvl *PriceLevel) bool {
		order = append(order, lvl.Price())
		return true
	})
	if len(order) != 3 || order[0] != 300 || order[1] != 200 || order[2] != 100 {
		t.Fatalf("unexpected bid ladder %v", order)
	}
}

func TestPriceIndexRemove(t *testing.T) {
	x := newPriceIndex(ASK)
	a := newPriceLevel(ASK, 100, 5)
	b := newPriceLevel(ASK, 110, 5)
	x.insert(a)
	x.insert(b)

	if !x.remove(a) {
		t.Fatalf("remove of live level failed")
	}
	if x.remove(a) {
		t.Fatalf("second remove should report false")
	}
	if x.size() != 1 {
		t.Fatalf("expected depth 1, got %d", x.size())
	}
	if x.find(100) != nil {
		t.Fatalf("removed level still found")
	}
	if top := x.top(); top != b {
		t.Fatalf("expected best to move to 110")
	}

	x.remove(b)
	if x.top() != nil || x.size() != 0 {
		t.Fatalf("expected empty side")
	}
}

func TestPriceLevelAdd(t *testing.T) {
	lvl := newPriceLevel(BID, 10, 7)
	if got := lvl.add(3); got != 10 {
		t.Fatalf("expected 10, got %d", got)
	}
	if got := lvl.add(-10); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if lvl.Side() != BID || lvl.Price() != 10 {
		t.Fatalf("unexpected level identity")
	}
}
