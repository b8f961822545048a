package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
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
	ErrAccountNotFound     = errors.New("account not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInsufficientMargin  = errors.New("insufficient margin")
	ErrValidation          = errors.New("invalid order")
)

// AccountStore is the slice of the accounts store the order flow needs.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (model.Account, error)
	UpdateBalance(ctx context.Context, id string, balance, realizedPnL decimal.Decimal) error
}

type OrderStore interface {
	Insert(ctx context.Context, o model.Order) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, accountID string, limit int) ([]model.Order, error)
}

type PositionStore interface {
	Insert(ctx context.Context, p model.Position) error
	ListOpen(ctx context.Context, accountID string) ([]model.Position, error)
}

type Service struct {
	accounts  AccountStore
	orders    OrderStore
	positions PositionStore
	bus       *events.Bus
	log       *zap.Logger
}

func NewService(accounts AccountStore, orders OrderStore, positions PositionStore, bus *events.Bus, log *zap.Logger) *Service {
	return &Service{accounts: accounts, orders: orders, positions: positions, bus: bus, log: log}
}

type PlaceRequest struct {
	AccountID  string           `json:"-"`
	Market     string           `json:"market"`
	Side       types.OrderSide  `json:"side"`
	Amount     decimal.Decimal  `json:"amount"`
	Price      decimal.Decimal  `json:"price"`
	OrderType  types.OrderType  `json:"order_type"`
	Leverage   decimal.Decimal  `json:"leverage"`
	MarginMode types.MarginMode `json:"margin_mode"`
}

func (r *PlaceRequest) normalize() error {
	r.Market = strings.ToUpper(strings.TrimSpace(r.Market))
	if r.Market == "" {
		return fmt.Errorf("%w: market is required", ErrValidation)
	}
	if !r.Side.Valid() {
		return fmt.Errorf("%w: unknown side %q", ErrValidation, r.Side)
	}
	if r.OrderType == "" {
		r.OrderType = types.OrderTypeMarket
	}
	if !r.OrderType.Valid() {
		return fmt.Errorf("%w: unknown order type %q", ErrValidation, r.OrderType)
	}
	if !r.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if !r.Price.IsPositive() {
		return fmt.Errorf("%w: price must be positive", ErrValidation)
	}
	if r.Leverage.IsZero() {
		r.Leverage = decimal.NewFromInt(1)
	}
	if !r.Leverage.IsPositive() {
		return fmt.Errorf("%w: leverage must be positive", ErrValidation)
	}
	if r.MarginMode == "" {
		r.MarginMode = types.MarginModeIsolated
	}
	if !r.MarginMode.Valid() {
		return fmt.Errorf("%w: unknown margin mode %q", ErrValidation, r.MarginMode)
	}
	return nil
}

// PlaceOrder runs the whole fill: validate, check funds and margin, write
// the order, move the balance and, for buys, open a position. Every order is
// recorded as filled immediately. If a later step fails the order row and the
// balance are rolled back best-effort.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceRequest) (model.Order, error) {
	if err := req.normalize(); err != nil {
		return model.Order{}, err
	}
	if req.Leverage.GreaterThan(ledger.MaxLeverage) {
		return model.Order{}, ledger.ErrLeverageExceeded
	}

	acc, err := s.accounts.GetByID(ctx, req.AccountID)
	if err != nil {
		return model.Order{}, ErrAccountNotFound
	}

	totalCost := req.Amount.Mul(req.Price)
	if req.Side == types.OrderSideBuy {
		if totalCost.GreaterThan(acc.Balance) {
			return model.Order{}, ErrInsufficientBalance
		}
		open, err := s.positions.ListOpen(ctx, req.AccountID)
		if err != nil {
			return model.Order{}, fmt.Errorf("load open positions: %w", err)
		}
		summary := ledger.AccountSummary(acc.Balance, open, ledger.MaxLeverage)
		if totalCost.GreaterThan(summary.AvailableMargin) {
			return model.Order{}, ErrInsufficientMargin
		}
	}

	order := model.Order{
		ID:         uuid.NewString(),
		AccountID:  req.AccountID,
		Market:     req.Market,
		Side:       req.Side,
		Amount:     req.Amount,
		EntryPrice: req.Price,
		OrderType:  req.OrderType,
		Status:     types.OrderStatusFilled,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.orders.Insert(ctx, order); err != nil {
		return model.Order{}, fmt.Errorf("persist order: %w", err)
	}

	newBalance := acc.Balance.Sub(totalCost)
	if req.Side == types.OrderSideSell {
		newBalance = acc.Balance.Add(totalCost)
	}
	if err := s.accounts.UpdateBalance(ctx, acc.ID, newBalance, acc.RealizedPnL); err != nil {
		s.compensate(ctx, order, acc, false)
		return model.Order{}, fmt.Errorf("update balance: %w", err)
	}

	var pos model.Position
	if req.Side == types.OrderSideBuy {
		collateral := totalCost.Div(req.Leverage)
		if floor := totalCost.Mul(ledger.InitialMarginRate); collateral.LessThan(floor) {
			collateral = floor
		}
		pos, err = ledger.Open(req.AccountID, req.Market, req.Amount, req.Price, collateral, req.Leverage, req.MarginMode)
		if err != nil {
			s.compensate(ctx, order, acc, true)
			return model.Order{}, err
		}
		if err := s.positions.Insert(ctx, pos); err != nil {
			s.compensate(ctx, order, acc, true)
			return model.Order{}, fmt.Errorf("persist position: %w", err)
		}
	}

	s.log.Info("order filled",
		zap.String("order_id", order.ID),
		zap.String("account_id", order.AccountID),
		zap.String("market", order.Market),
		zap.String("side", string(order.Side)),
		zap.String("amount", order.Amount.String()),
		zap.String("price", order.EntryPrice.String()))

	s.bus.Publish(events.Event{Type: events.TypeOrder, Data: order})
	if req.Side == types.OrderSideBuy {
		s.bus.Publish(events.Event{Type: events.TypePosition, Data: pos})
	}
	return order, nil
}

// compensate undoes the order row and, when the debit already happened, puts
// the prior balance back. Failures here are logged and swallowed, there is
// nothing left to do for the caller.
func (s *Service) compensate(ctx context.Context, order model.Order, acc model.Account, balanceMoved bool) {
	if err := s.orders.Delete(ctx, order.ID); err != nil {
		s.log.Error("compensation failed to delete order",
			zap.String("order_id", order.ID), zap.Error(err))
	}
	if balanceMoved {
		if err := s.accounts.UpdateBalance(ctx, acc.ID, acc.Balance, acc.RealizedPnL); err != nil {
			s.log.Error("compensation failed to restore balance",
				zap.String("account_id", acc.ID), zap.Error(err))
		}
	}
}

// List returns the account's order history, newest first.
func (s *Service) List(ctx context.Context, accountID string, limit int) ([]model.Order, error) {
	return s.orders.List(ctx, accountID, limit)
}
