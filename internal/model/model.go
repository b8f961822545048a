package model

import (
	"time"

	"tradedesk/internal/types"

	"github.com/shopspring/decimal"
)

type Account struct {
	ID            string          `json:"id"`
	WalletAddress string          `json:"wallet_address"`
	Email         string          `json:"email,omitempty"`
	Username      string          `json:"username,omitempty"`
	Tier          string          `json:"tier"`
	Stage         string          `json:"stage"`
	Balance       decimal.Decimal `json:"balance"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type Order struct {
	ID         string            `json:"id"`
	AccountID  string            `json:"account_id"`
	Market     string            `json:"market"`
	Side       types.OrderSide   `json:"side"`
	Amount     decimal.Decimal   `json:"amount"`
	EntryPrice decimal.Decimal   `json:"entry_price"`
	OrderType  types.OrderType   `json:"order_type"`
	Status     types.OrderStatus `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Position is the one canonical position shape. Amount is signed:
// positive is long, negative is short.
type Position struct {
	ID               string           `json:"id"`
	AccountID        string           `json:"account_id"`
	Market           string           `json:"market"`
	Amount           decimal.Decimal  `json:"amount"`
	EntryPrice       decimal.Decimal  `json:"entry_price"`
	CurrentPrice     decimal.Decimal  `json:"current_price"`
	Collateral       decimal.Decimal  `json:"collateral"`
	Leverage         decimal.Decimal  `json:"leverage"`
	MarginMode       types.MarginMode `json:"margin_mode"`
	LiquidationPrice decimal.Decimal  `json:"liquidation_price"`
	PnL              decimal.Decimal  `json:"pnl"`
	PnLPercent       decimal.Decimal  `json:"pnl_percent"`
	IsOpen           bool             `json:"is_open"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

func (p Position) IsLong() bool {
	return p.Amount.Sign() >= 0
}
