package positions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tradedesk/internal/events"
	"tradedesk/internal/model"
	"tradedesk/internal/types"
)

type fakeStore struct {
	byID map[string]model.Position
}

func newFakeStore(ps ...model.Position) *fakeStore {
	s := &fakeStore{byID: map[string]model.Position{}}
	for _, p := range ps {
		s.byID[p.ID] = p
	}
	return s
}

func (s *fakeStore) GetByID(_ context.Context, accountID, id string) (model.Position, error) {
	p, ok := s.byID[id]
	if !ok || p.AccountID != accountID {
		return model.Position{}, ErrNotFound
	}
	return p, nil
}

func (s *fakeStore) List(_ context.Context, accountID string, f ListFilter) ([]model.Position, error) {
	var out []model.Position
	for _, p := range s.byID {
		if p.AccountID != accountID {
			continue
		}
		if f.Open != nil && p.IsOpen != *f.Open {
			continue
		}
		if f.Market != "" && p.Market != f.Market {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *fakeStore) ListOpen(ctx context.Context, accountID string) ([]model.Position, error) {
	open := true
	return s.List(ctx, accountID, ListFilter{Open: &open})
}

func (s *fakeStore) ListAllOpen(_ context.Context) ([]model.Position, error) {
	var out []model.Position
	for _, p := range s.byID {
		if p.IsOpen {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) ListOpenByMarket(_ context.Context, market string) ([]model.Position, error) {
	var out []model.Position
	for _, p := range s.byID {
		if p.IsOpen && p.Market == market {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) Update(_ context.Context, p model.Position) error {
	if _, ok := s.byID[p.ID]; !ok {
		return ErrNotFound
	}
	s.byID[p.ID] = p
	return nil
}

type fakeAccounts struct {
	byID map[string]model.Account
}

func (f *fakeAccounts) GetByID(_ context.Context, id string) (model.Account, error) {
	acc, ok := f.byID[id]
	if !ok {
		return model.Account{}, errors.New("no rows")
	}
	return acc, nil
}

func (f *fakeAccounts) UpdateBalance(_ context.Context, id string, balance, realizedPnL decimal.Decimal) error {
	acc := f.byID[id]
	acc.Balance = balance
	acc.RealizedPnL = realizedPnL
	f.byID[id] = acc
	return nil
}

type fakeOrders struct {
	inserted []model.Order
}

func (f *fakeOrders) Insert(_ context.Context, o model.Order) error {
	f.inserted = append(f.inserted, o)
	return nil
}

type fakeQuoter struct {
	cached map[string]decimal.Decimal
	rest   map[string]decimal.Decimal
}

func (f *fakeQuoter) LastPrice(symbol string) (decimal.Decimal, bool) {
	p, ok := f.cached[symbol]
	return p, ok
}

func (f *fakeQuoter) Price(_ context.Context, symbol string) (decimal.Decimal, error) {
	if p, ok := f.cached[symbol]; ok {
		return p, nil
	}
	if p, ok := f.rest[symbol]; ok {
		return p, nil
	}
	return decimal.Decimal{}, errors.New("symbol not found")
}

func openPosition(accountID, market string, amount, entry string) model.Position {
	amt := decimal.RequireFromString(amount)
	ep := decimal.RequireFromString(entry)
	return model.Position{
		ID:           uuid.NewString(),
		AccountID:    accountID,
		Market:       market,
		Amount:       amt,
		EntryPrice:   ep,
		CurrentPrice: ep,
		Collateral:   amt.Abs().Mul(ep).Div(decimal.NewFromInt(5)),
		Leverage:     decimal.NewFromInt(5),
		MarginMode:   types.MarginModeIsolated,
		IsOpen:       true,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
}

type fixture struct {
	svc      *Service
	store    *fakeStore
	accounts *fakeAccounts
	orders   *fakeOrders
	quotes   *fakeQuoter
	bus      *events.Bus
}

func newFixture(balance string, positions ...model.Position) *fixture {
	store := newFakeStore(positions...)
	accounts := &fakeAccounts{byID: map[string]model.Account{
		"acc-1": {ID: "acc-1", Balance: decimal.RequireFromString(balance)},
	}}
	orders := &fakeOrders{}
	quotes := &fakeQuoter{cached: map[string]decimal.Decimal{}, rest: map[string]decimal.Decimal{}}
	bus := events.NewBus()
	return &fixture{
		svc:      NewService(store, accounts, orders, quotes, bus, zap.NewNop()),
		store:    store,
		accounts: accounts,
		orders:   orders,
		quotes:   quotes,
		bus:      bus,
	}
}

func TestSyncMarksToLatestPrice(t *testing.T) {
	t.Parallel()

	p := openPosition("acc-1", "BTCUSDT", "2", "100")
	f := newFixture("10000", p)
	f.quotes.cached["BTCUSDT"] = decimal.RequireFromString("110")

	sub := f.bus.Subscribe()
	defer f.bus.Unsubscribe(sub)

	require.NoError(t, f.svc.Sync(context.Background(), "acc-1"))

	got := f.store.byID[p.ID]
	assert.Equal(t, "110", got.CurrentPrice.String())
	assert.Equal(t, "20", got.PnL.String())

	ev := <-sub
	assert.Equal(t, events.TypePosition, ev.Type)
}

func TestSyncSkipsUnchangedAndUnquoted(t *testing.T) {
	t.Parallel()

	quoted := openPosition("acc-1", "BTCUSDT", "2", "100")
	unquoted := openPosition("acc-1", "ETHUSDT", "1", "200")
	f := newFixture("10000", quoted, unquoted)
	f.quotes.cached["BTCUSDT"] = decimal.RequireFromString("100")

	sub := f.bus.Subscribe()
	defer f.bus.Unsubscribe(sub)

	require.NoError(t, f.svc.Sync(context.Background(), "acc-1"))

	select {
	case ev := <-sub:
		t.Fatalf("unexpected event %v", ev.Type)
	default:
	}
	assert.True(t, f.store.byID[unquoted.ID].PnL.IsZero())
}

func TestSyncMarketTouchesOnlyThatMarket(t *testing.T) {
	t.Parallel()

	btc := openPosition("acc-1", "BTCUSDT", "2", "100")
	eth := openPosition("acc-1", "ETHUSDT", "1", "200")
	f := newFixture("10000", btc, eth)
	f.quotes.cached["BTCUSDT"] = decimal.RequireFromString("110")
	f.quotes.cached["ETHUSDT"] = decimal.RequireFromString("250")

	require.NoError(t, f.svc.SyncMarket(context.Background(), "BTCUSDT"))

	assert.Equal(t, "110", f.store.byID[btc.ID].CurrentPrice.String())
	// the other market keeps its stale mark even though a quote is cached
	assert.Equal(t, "200", f.store.byID[eth.ID].CurrentPrice.String())
}

func TestCloseFullSettles(t *testing.T) {
	t.Parallel()

	p := openPosition("acc-1", "BTCUSDT", "2", "100")
	f := newFixture("1000", p)
	f.quotes.cached["BTCUSDT"] = decimal.RequireFromString("110")

	closed, err := f.svc.Close(context.Background(), "acc-1", p.ID, nil, nil)
	require.NoError(t, err)

	assert.False(t, closed.IsOpen)
	assert.Equal(t, "20", closed.PnL.String())

	acc := f.accounts.byID["acc-1"]
	// 1000 + 2*110 + 20
	assert.Equal(t, "1240", acc.Balance.String())
	assert.Equal(t, "20", acc.RealizedPnL.String())

	require.Len(t, f.orders.inserted, 1)
	order := f.orders.inserted[0]
	assert.Equal(t, types.OrderSideSell, order.Side)
	assert.Equal(t, "2", order.Amount.String())
	assert.Equal(t, "110", order.EntryPrice.String())
	assert.Equal(t, types.OrderStatusFilled, order.Status)

	assert.False(t, f.store.byID[p.ID].IsOpen)
}

func TestClosePartialKeepsPositionOpen(t *testing.T) {
	t.Parallel()

	p := openPosition("acc-1", "BTCUSDT", "2", "100")
	f := newFixture("1000", p)
	f.quotes.cached["BTCUSDT"] = decimal.RequireFromString("110")

	half := decimal.RequireFromString("1")
	reduced, err := f.svc.Close(context.Background(), "acc-1", p.ID, &half, nil)
	require.NoError(t, err)

	assert.True(t, reduced.IsOpen)
	assert.Equal(t, "1", reduced.Amount.String())
	assert.Equal(t, "10", reduced.PnL.String(), "pnl recomputed for the remainder")

	acc := f.accounts.byID["acc-1"]
	assert.Equal(t, "1000", acc.Balance.String(), "no settlement on partial close")
	assert.Empty(t, f.orders.inserted)
}

func TestCloseUsesExplicitPrice(t *testing.T) {
	t.Parallel()

	p := openPosition("acc-1", "BTCUSDT", "2", "100")
	f := newFixture("1000", p)

	price := decimal.RequireFromString("90")
	closed, err := f.svc.Close(context.Background(), "acc-1", p.ID, nil, &price)
	require.NoError(t, err)

	assert.Equal(t, "-20", closed.PnL.String())
	acc := f.accounts.byID["acc-1"]
	// 1000 + 2*90 - 20
	assert.Equal(t, "1160", acc.Balance.String())
}

func TestCloseFallsBackToRESTPrice(t *testing.T) {
	t.Parallel()

	p := openPosition("acc-1", "BTCUSDT", "2", "100")
	f := newFixture("1000", p)
	f.quotes.rest["BTCUSDT"] = decimal.RequireFromString("105")

	closed, err := f.svc.Close(context.Background(), "acc-1", p.ID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "105", closed.CurrentPrice.String())
}

func TestCloseWithoutAnyPriceFails(t *testing.T) {
	t.Parallel()

	p := openPosition("acc-1", "BTCUSDT", "2", "100")
	f := newFixture("1000", p)

	_, err := f.svc.Close(context.Background(), "acc-1", p.ID, nil, nil)
	require.ErrorIs(t, err, ErrFeedUnavailable)
	assert.True(t, f.store.byID[p.ID].IsOpen, "position untouched")
}

func TestCloseRejectsClosedAndForeignPositions(t *testing.T) {
	t.Parallel()

	closed := openPosition("acc-1", "BTCUSDT", "2", "100")
	closed.IsOpen = false
	foreign := openPosition("acc-2", "BTCUSDT", "2", "100")
	f := newFixture("1000", closed, foreign)

	_, err := f.svc.Close(context.Background(), "acc-1", closed.ID, nil, nil)
	require.ErrorIs(t, err, ErrPositionClosed)

	_, err = f.svc.Close(context.Background(), "acc-1", foreign.ID, nil, nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListFiltersStatus(t *testing.T) {
	t.Parallel()

	open := openPosition("acc-1", "BTCUSDT", "2", "100")
	done := openPosition("acc-1", "ETHUSDT", "1", "200")
	done.IsOpen = false
	f := newFixture("1000", open, done)

	got, err := f.svc.List(context.Background(), "acc-1", "open", "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, open.ID, got[0].ID)

	got, err = f.svc.List(context.Background(), "acc-1", "closed", "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, done.ID, got[0].ID)

	_, err = f.svc.List(context.Background(), "acc-1", "pending", "")
	assert.Error(t, err)
}

func TestSummary(t *testing.T) {
	t.Parallel()

	p := openPosition("acc-1", "BTCUSDT", "2", "100")
	p.PnL = decimal.RequireFromString("20")
	p.Collateral = decimal.RequireFromString("40")
	f := newFixture("1000", p)

	s, err := f.svc.Summary(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "1020", s.Equity.String())
	assert.Equal(t, "40", s.UsedMargin.String())
	assert.Equal(t, "980", s.AvailableMargin.String())
	assert.Equal(t, "49000", s.BuyingPower.String())
}
