package reservation

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"autopost-engine/internal/domain"
)

type fakeSource struct {
	items    []domain.OpenItem
	byAmount []domain.OpenItem
}

func (f *fakeSource) ListOpenItems(ctx context.Context, q CandidateQuery) ([]domain.OpenItem, error) {
	var out []domain.OpenItem
	for _, item := range f.items {
		if q.PartnerID != 0 && item.PartnerID != q.PartnerID {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (f *fakeSource) FindByPartnerAmount(ctx context.Context, companyCode string, partnerID int64, amount decimal.Decimal, cutoff time.Time, limit int) ([]domain.OpenItem, error) {
	var out []domain.OpenItem
	for _, item := range f.byAmount {
		if item.PartnerID == partnerID && item.Residual.Equal(amount) && len(out) < limit {
			out = append(out, item)
		}
	}
	return out, nil
}

func item(id int64, residual int64) domain.OpenItem {
	return domain.OpenItem{
		ID:          id,
		CompanyCode: "C001",
		AccountCode: "1310",
		PartnerID:   42,
		Residual:    decimal.NewFromInt(residual),
		DocDate:     time.Date(2025, 1, int(id), 0, 0, 0, 0, time.UTC),
	}
}

func params(amount int64, tolerance int64) Params {
	return Params{
		CompanyCode: "C001",
		AccountCode: "1310",
		PartnerID:   42,
		Amount:      decimal.NewFromInt(amount),
		Tolerance:   decimal.NewFromInt(tolerance),
		Cutoff:      time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
	}
}

func TestReserve_SingleMatch(t *testing.T) {
	engine := NewEngine(&fakeSource{items: []domain.OpenItem{
		item(1, 50000),
		item(2, 109000),
	}}, 6)

	res, ok, err := engine.Reserve(context.Background(), params(109000, 0))
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, res.Items, 1)
	assert.Equal(t, int64(2), res.Items[0].OpenItemID)
	assert.True(t, res.Total.Equal(decimal.NewFromInt(109000)))
}

func TestReserve_SingleMatchWithinTolerance(t *testing.T) {
	engine := NewEngine(&fakeSource{items: []domain.OpenItem{
		item(1, 10050),
	}}, 6)

	res, ok, err := engine.Reserve(context.Background(), params(10000, 100))
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, res.Items, 1)
	// The full residual is reserved; the overshoot is trimmed to the amount.
	assert.True(t, res.Items[0].Applied.Equal(decimal.NewFromInt(10000)))
	assert.True(t, res.Total.Equal(decimal.NewFromInt(10000)))
}

func TestReserve_FIFOAccumulation(t *testing.T) {
	engine := NewEngine(&fakeSource{items: []domain.OpenItem{
		item(1, 400),
		item(2, 600),
		item(3, 300),
	}}, 6)

	res, ok, err := engine.Reserve(context.Background(), params(1000, 0))
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, res.Items, 2)
	assert.Equal(t, int64(1), res.Items[0].OpenItemID)
	assert.Equal(t, int64(2), res.Items[1].OpenItemID)
	assert.True(t, res.Total.Equal(decimal.NewFromInt(1000)))
}

func TestReserve_CombinationSearchAfterFIFOOvershoot(t *testing.T) {
	// FIFO accumulates 700+500 = 1200 > 900 and aborts; the combination
	// search then finds {700, 200}.
	engine := NewEngine(&fakeSource{items: []domain.OpenItem{
		item(1, 700),
		item(2, 500),
		item(3, 200),
	}}, 6)

	res, ok, err := engine.Reserve(context.Background(), params(900, 0))
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, res.Items, 2)
	assert.Equal(t, int64(1), res.Items[0].OpenItemID)
	assert.Equal(t, int64(3), res.Items[1].OpenItemID)
}

func TestReserve_CombinationRespectsItemCap(t *testing.T) {
	// FIFO overshoots at 200+250, and only {200, 100, 100} sums to 400.
	items := []domain.OpenItem{
		item(1, 200),
		item(2, 250),
		item(3, 100),
		item(4, 100),
	}

	res, ok, err := NewEngine(&fakeSource{items: items}, 3).Reserve(context.Background(), params(400, 0))
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, res.Items, 3)

	// A cap of 2 forbids that subset.
	_, ok, err = NewEngine(&fakeSource{items: items}, 2).Reserve(context.Background(), params(400, 0))
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestReserve_OvershootWithinToleranceTrimsLastItem(t *testing.T) {
	// {300, 250} at tolerance 50 overshoots by 50; the last item's applied
	// amount is trimmed so the reservation totals the incoming amount.
	engine := NewEngine(&fakeSource{items: []domain.OpenItem{
		item(1, 300),
		item(2, 250),
	}}, 6)

	res, ok, err := engine.Reserve(context.Background(), params(500, 50))
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, res.Items, 2)
	assert.True(t, res.Items[0].Applied.Equal(decimal.NewFromInt(300)))
	assert.True(t, res.Items[1].Applied.Equal(decimal.NewFromInt(200)))
	assert.True(t, res.Total.Equal(decimal.NewFromInt(500)))
}

func TestReserve_NoMatch(t *testing.T) {
	engine := NewEngine(&fakeSource{items: []domain.OpenItem{
		item(1, 800),
	}}, 6)

	res, ok, err := engine.Reserve(context.Background(), params(500, 0))
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, res)
}

func TestReserve_IgnoresClearedAndNonPositive(t *testing.T) {
	cleared := item(1, 500)
	cleared.Cleared = true
	zero := item(2, 0)

	engine := NewEngine(&fakeSource{items: []domain.OpenItem{cleared, zero, item(3, 500)}}, 6)

	res, ok, err := engine.Reserve(context.Background(), params(500, 0))
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(3), res.Items[0].OpenItemID)
}

func TestReserve_WidenedRequiresExactlyOneCandidate(t *testing.T) {
	p := params(75000, 0)
	p.AccountCode = ""

	one := item(10, 75000)
	one.AccountCode = "1320"

	engine := NewEngine(&fakeSource{byAmount: []domain.OpenItem{one}}, 6)
	res, ok, err := engine.Reserve(context.Background(), p)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(10), res.Items[0].OpenItemID)
	// The reserved item keeps its own account, not the rule's.
	assert.Equal(t, "1320", res.Items[0].AccountCode)

	// Two same-amount candidates are ambiguous: no reservation.
	engine = NewEngine(&fakeSource{byAmount: []domain.OpenItem{one, item(11, 75000)}}, 6)
	_, ok, err = engine.Reserve(context.Background(), p)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestReserve_WidenedNeedsPartner(t *testing.T) {
	p := params(75000, 0)
	p.AccountCode = ""
	p.PartnerID = 0

	engine := NewEngine(&fakeSource{byAmount: []domain.OpenItem{item(10, 75000)}}, 6)
	_, ok, err := engine.Reserve(context.Background(), p)
	assert.NoError(t, err)
	assert.False(t, ok)
}
