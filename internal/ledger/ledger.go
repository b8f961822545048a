package ledger

import (
	"errors"
	"fmt"
	"time"

	"tradedesk/internal/model"
	"tradedesk/internal/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrValidation       = errors.New("invalid position input")
	ErrLeverageExceeded = fmt.Errorf("leverage cannot exceed %sx", MaxLeverage.String())
)

var (
	// MaxLeverage caps position leverage account wide.
	MaxLeverage = decimal.NewFromInt(50)
	// MaintenanceMarginRate is the fraction of position value that must
	// remain covered by collateral (0.5%).
	MaintenanceMarginRate = decimal.NewFromFloat(0.005)
	// InitialMarginRate floors the collateral taken when opening (1%).
	InitialMarginRate = decimal.NewFromFloat(0.01)
)

var hundred = decimal.NewFromInt(100)

// Summary is the derived margin snapshot. It is computed on demand and
// never persisted.
type Summary struct {
	Equity          decimal.Decimal `json:"equity"`
	UsedMargin      decimal.Decimal `json:"used_margin"`
	AvailableMargin decimal.Decimal `json:"available_margin"`
	BuyingPower     decimal.Decimal `json:"buying_power"`
	UnrealizedPnL   decimal.Decimal `json:"unrealized_pnl"`
}

// Open builds a new position. Current price starts at the entry price, so
// PnL is zero and the liquidation price is computed from entry inputs.
func Open(accountID, market string, amount, entryPrice, collateral, leverage decimal.Decimal, marginMode types.MarginMode) (model.Position, error) {
	if leverage.GreaterThan(MaxLeverage) {
		return model.Position{}, ErrLeverageExceeded
	}
	if amount.IsZero() || !entryPrice.IsPositive() || leverage.Sign() < 0 {
		return model.Position{}, ErrValidation
	}
	if !marginMode.Valid() {
		return model.Position{}, ErrValidation
	}
	now := time.Now().UTC()
	p := model.Position{
		ID:           uuid.NewString(),
		AccountID:    accountID,
		Market:       market,
		Amount:       amount,
		EntryPrice:   entryPrice,
		CurrentPrice: entryPrice,
		Collateral:   collateral,
		Leverage:     leverage,
		MarginMode:   marginMode,
		PnL:          decimal.Zero,
		PnLPercent:   decimal.Zero,
		IsOpen:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	p.LiquidationPrice = liquidationPrice(p)
	return p, nil
}

// MarkToMarket recomputes the derived fields against a new current price.
// It is pure and idempotent: every derived field is overwritten, nothing
// accumulates, so redundant calls from the tick pump, the poll timer and
// manual refreshes all converge to the same position.
func MarkToMarket(p model.Position, currentPrice decimal.Decimal) model.Position {
	p.CurrentPrice = currentPrice
	p.PnL = PnL(p.Amount, p.EntryPrice, currentPrice)
	p.PnLPercent = PnLPercent(p.Amount, p.EntryPrice, currentPrice)
	p.LiquidationPrice = liquidationPrice(p)
	p.UpdatedAt = time.Now().UTC()
	return p
}

// Reduce shrinks a position by closeAmount of its absolute size. A
// closeAmount at or above the full size closes the position outright,
// freezing the derived fields at their close-time values.
func Reduce(p model.Position, closeAmount decimal.Decimal) (model.Position, error) {
	if !closeAmount.IsPositive() {
		return p, ErrValidation
	}
	if closeAmount.GreaterThanOrEqual(p.Amount.Abs()) {
		p.IsOpen = false
		p.UpdatedAt = time.Now().UTC()
		return p, nil
	}
	if p.Amount.Sign() >= 0 {
		p.Amount = p.Amount.Sub(closeAmount)
	} else {
		p.Amount = p.Amount.Add(closeAmount)
	}
	p.PnL = PnL(p.Amount, p.EntryPrice, p.CurrentPrice)
	p.PnLPercent = PnLPercent(p.Amount, p.EntryPrice, p.CurrentPrice)
	p.UpdatedAt = time.Now().UTC()
	return p, nil
}

// AccountSummary aggregates the margin snapshot from the balance and the
// open positions. Pure; callers may invoke it on every render and tick.
func AccountSummary(balance decimal.Decimal, open []model.Position, maxLeverage decimal.Decimal) Summary {
	var unrealized, used decimal.Decimal
	for _, p := range open {
		unrealized = unrealized.Add(p.PnL)
		used = used.Add(p.Collateral)
	}
	equity := balance.Add(unrealized)
	available := equity.Sub(used)
	return Summary{
		Equity:          equity,
		UsedMargin:      used,
		AvailableMargin: available,
		BuyingPower:     available.Mul(maxLeverage),
		UnrealizedPnL:   unrealized,
	}
}

// IsLiquidatable reports whether losses have consumed the position's
// maintenance margin. The ledger only exposes the predicate; nothing here
// force-closes a position.
func IsLiquidatable(p model.Position) bool {
	maintenance := p.Amount.Abs().Mul(p.CurrentPrice).Mul(MaintenanceMarginRate)
	return p.Collateral.LessThanOrEqual(maintenance)
}

// PnL is sign-aware: longs profit when price rises, shorts when it falls.
func PnL(amount, entryPrice, currentPrice decimal.Decimal) decimal.Decimal {
	if amount.Sign() >= 0 {
		return currentPrice.Sub(entryPrice).Mul(amount)
	}
	return entryPrice.Sub(currentPrice).Mul(amount.Abs())
}

func PnLPercent(amount, entryPrice, currentPrice decimal.Decimal) decimal.Decimal {
	if !entryPrice.IsPositive() {
		return decimal.Zero
	}
	if amount.Sign() >= 0 {
		return currentPrice.Sub(entryPrice).Div(entryPrice).Mul(hundred)
	}
	return entryPrice.Sub(currentPrice).Div(entryPrice).Mul(hundred)
}

func liquidationPrice(p model.Position) decimal.Decimal {
	switch p.MarginMode {
	case types.MarginModeCross:
		// A correct cross formula would price against total account
		// equity rather than this position's collateral alone. The
		// observed behavior uses the isolated expression for both
		// modes, so until that changes this branch stays identical.
		return isolatedLiquidationPrice(p.Amount, p.EntryPrice, p.Collateral)
	default:
		return isolatedLiquidationPrice(p.Amount, p.EntryPrice, p.Collateral)
	}
}

func isolatedLiquidationPrice(amount, entryPrice, collateral decimal.Decimal) decimal.Decimal {
	positionValue := amount.Abs().Mul(entryPrice)
	if positionValue.IsZero() {
		return decimal.Zero
	}
	maintenance := positionValue.Mul(MaintenanceMarginRate)
	buffer := collateral.Sub(maintenance).Div(positionValue)
	if amount.Sign() >= 0 {
		return entryPrice.Mul(decimal.NewFromInt(1).Sub(buffer))
	}
	return entryPrice.Mul(decimal.NewFromInt(1).Add(buffer))
}
