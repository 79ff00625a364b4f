package tranche

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chidi150c/tranchebot/internal/exchange"
)

// fakeBroker mirrors submits and cancels into its open-order listing.
type fakeBroker struct {
	mu sync.Mutex

	open     []exchange.OpenOrder
	submits  []exchange.SubmitRequest
	cancels  []string
	modifies []modifyCall
	lists    int
	nextID   int

	listErr   error
	submitErr error
	cancelErr error
	modifyErr error
}

type modifyCall struct {
	ID    string
	Price float64
}

func (f *fakeBroker) Submit(_ context.Context, req exchange.SubmitRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.nextID++
	id := fmt.Sprintf("NEW%d", f.nextID)
	f.submits = append(f.submits, req)
	f.open = append(f.open, exchange.OpenOrder{OrderID: id, Price: req.Price, ReduceOnly: req.ReduceOnly, Quantity: req.Qty})
	return id, nil
}

func (f *fakeBroker) Modify(_ context.Context, id string, price float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.modifyErr != nil {
		return f.modifyErr
	}
	f.modifies = append(f.modifies, modifyCall{ID: id, Price: price})
	for i := range f.open {
		if f.open[i].OrderID == id {
			f.open[i].Price = price
		}
	}
	return nil
}

func (f *fakeBroker) Cancel(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancels = append(f.cancels, id)
	kept := f.open[:0]
	for _, o := range f.open {
		if o.OrderID != id {
			kept = append(kept, o)
		}
	}
	f.open = kept
	return nil
}

func (f *fakeBroker) OpenOrders(_ context.Context, _ string) ([]exchange.OpenOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]exchange.OpenOrder, len(f.open))
	copy(out, f.open)
	return out, nil
}

func (f *fakeBroker) submittedPrices() []float64 {
	out := make([]float64, 0, len(f.submits))
	for _, s := range f.submits {
		out = append(out, s.Price)
	}
	return out
}

func (f *fakeBroker) calls() int { return len(f.submits) + len(f.cancels) + len(f.modifies) }

var errBoom = errors.New("boom")
