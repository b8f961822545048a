package positions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradedesk/internal/events"
	"tradedesk/internal/ledger"
	"tradedesk/internal/model"
	"tradedesk/internal/types"
)

var (
	ErrPositionClosed  = errors.New("position already closed")
	ErrFeedUnavailable = errors.New("no price available")
)

type PositionStore interface {
	GetByID(ctx context.Context, accountID, id string) (model.Position, error)
	List(ctx context.Context, accountID string, f ListFilter) ([]model.Position, error)
	ListOpen(ctx context.Context, accountID string) ([]model.Position, error)
	ListAllOpen(ctx context.Context) ([]model.Position, error)
	ListOpenByMarket(ctx context.Context, market string) ([]model.Position, error)
	Update(ctx context.Context, p model.Position) error
}

type AccountStore interface {
	GetByID(ctx context.Context, id string) (model.Account, error)
	UpdateBalance(ctx context.Context, id string, balance, realizedPnL decimal.Decimal) error
}

// OrderWriter records the compensating sell order booked on close.
type OrderWriter interface {
	Insert(ctx context.Context, o model.Order) error
}

// Quoter resolves a close or mark price, cache first, REST as fallback.
type Quoter interface {
	LastPrice(symbol string) (decimal.Decimal, bool)
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}

type Service struct {
	store    PositionStore
	accounts AccountStore
	orders   OrderWriter
	quotes   Quoter
	bus      *events.Bus
	log      *zap.Logger
}

func NewService(store PositionStore, accounts AccountStore, orders OrderWriter, quotes Quoter, bus *events.Bus, log *zap.Logger) *Service {
	return &Service{store: store, accounts: accounts, orders: orders, quotes: quotes, bus: bus, log: log}
}

// List returns the account's positions. status is "open", "closed" or empty
// for both; market narrows to one symbol.
func (s *Service) List(ctx context.Context, accountID, status, market string) ([]model.Position, error) {
	var f ListFilter
	switch status {
	case "open":
		open := true
		f.Open = &open
	case "closed":
		open := false
		f.Open = &open
	case "":
	default:
		return nil, fmt.Errorf("unknown status %q", status)
	}
	f.Market = market
	return s.store.List(ctx, accountID, f)
}

// Summary computes the account's margin snapshot from its balance and open
// positions.
func (s *Service) Summary(ctx context.Context, accountID string) (ledger.Summary, error) {
	acc, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return ledger.Summary{}, err
	}
	open, err := s.store.ListOpen(ctx, accountID)
	if err != nil {
		return ledger.Summary{}, err
	}
	return ledger.AccountSummary(acc.Balance, open, ledger.MaxLeverage), nil
}

// Sync marks every open position of one account to the latest cached price
// and persists the refreshed rows.
func (s *Service) Sync(ctx context.Context, accountID string) error {
	open, err := s.store.ListOpen(ctx, accountID)
	if err != nil {
		return err
	}
	return s.sync(ctx, open)
}

// SyncAll refreshes every open position in the system. The poller calls this
// so positions stay current even while no feed tick arrives.
func (s *Service) SyncAll(ctx context.Context) error {
	open, err := s.store.ListAllOpen(ctx)
	if err != nil {
		return err
	}
	return s.sync(ctx, open)
}

// SyncMarket refreshes only the open positions in one market. Live ticks call
// this so a price event never triggers a cross-account scan.
func (s *Service) SyncMarket(ctx context.Context, market string) error {
	open, err := s.store.ListOpenByMarket(ctx, market)
	if err != nil {
		return err
	}
	return s.sync(ctx, open)
}

func (s *Service) sync(ctx context.Context, open []model.Position) error {
	for _, p := range open {
		price, ok := s.quotes.LastPrice(p.Market)
		if !ok || price.Equal(p.CurrentPrice) {
			continue
		}
		marked := ledger.MarkToMarket(p, price)
		if err := s.store.Update(ctx, marked); err != nil {
			s.log.Warn("position sync failed",
				zap.String("position_id", p.ID), zap.Error(err))
			continue
		}
		s.bus.Publish(events.Event{Type: events.TypePosition, Data: marked})
	}
	return nil
}

// RunPoller re-syncs all open positions every freq until ctx is cancelled.
func (s *Service) RunPoller(ctx context.Context, freq time.Duration) {
	ticker := time.NewTicker(freq)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SyncAll(ctx); err != nil {
				s.log.Warn("position poll failed", zap.Error(err))
			}
		}
	}
}

// Close exits a position, fully when closeAmount is nil or covers the whole
// size. The close price comes from the request, the price cache or a REST
// lookup, in that order. A full close settles the balance, bumps realized
// PnL and books a compensating sell order.
func (s *Service) Close(ctx context.Context, accountID, positionID string, closeAmount, price *decimal.Decimal) (model.Position, error) {
	p, err := s.store.GetByID(ctx, accountID, positionID)
	if err != nil {
		return model.Position{}, err
	}
	if !p.IsOpen {
		return model.Position{}, ErrPositionClosed
	}

	closePrice, err := s.closePrice(ctx, p.Market, price)
	if err != nil {
		return model.Position{}, err
	}

	marked := ledger.MarkToMarket(p, closePrice)
	qty := marked.Amount.Abs()
	if closeAmount != nil {
		qty = *closeAmount
	}
	closedPnL := ledger.PnL(marked.Amount, marked.EntryPrice, closePrice)

	reduced, err := ledger.Reduce(marked, qty)
	if err != nil {
		return model.Position{}, err
	}
	if err := s.store.Update(ctx, reduced); err != nil {
		return model.Position{}, fmt.Errorf("persist close: %w", err)
	}

	if !reduced.IsOpen {
		acc, err := s.accounts.GetByID(ctx, accountID)
		if err != nil {
			return model.Position{}, err
		}
		proceeds := marked.Amount.Abs().Mul(closePrice)
		newBalance := acc.Balance.Add(proceeds).Add(closedPnL)
		if err := s.accounts.UpdateBalance(ctx, accountID, newBalance, acc.RealizedPnL.Add(closedPnL)); err != nil {
			return model.Position{}, fmt.Errorf("settle close: %w", err)
		}

		order := model.Order{
			ID:         uuid.NewString(),
			AccountID:  accountID,
			Market:     p.Market,
			Side:       types.OrderSideSell,
			Amount:     marked.Amount.Abs(),
			EntryPrice: closePrice,
			OrderType:  types.OrderTypeMarket,
			Status:     types.OrderStatusFilled,
			CreatedAt:  time.Now().UTC(),
		}
		if err := s.orders.Insert(ctx, order); err != nil {
			s.log.Error("failed to book closing order",
				zap.String("position_id", p.ID), zap.Error(err))
		} else {
			s.bus.Publish(events.Event{Type: events.TypeOrder, Data: order})
		}

		s.log.Info("position closed",
			zap.String("position_id", p.ID),
			zap.String("account_id", accountID),
			zap.String("market", p.Market),
			zap.String("close_price", closePrice.String()),
			zap.String("pnl", closedPnL.String()))
	}

	s.bus.Publish(events.Event{Type: events.TypePosition, Data: reduced})
	return reduced, nil
}

func (s *Service) closePrice(ctx context.Context, market string, price *decimal.Decimal) (decimal.Decimal, error) {
	if price != nil && price.IsPositive() {
		return *price, nil
	}
	p, err := s.quotes.Price(ctx, market)
	if err != nil || !p.IsPositive() {
		return decimal.Decimal{}, ErrFeedUnavailable
	}
	return p, nil
}
