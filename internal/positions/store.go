package positions

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tradedesk/internal/model"
	"tradedesk/internal/types"
)

var ErrNotFound = errors.New("position not found")

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const positionColumns = `id, account_id, market, amount, entry_price, current_price, collateral,
	leverage, margin_mode, liquidation_price, pnl, pnl_percent, is_open, created_at, updated_at`

func (s *Store) Insert(ctx context.Context, p model.Position) error {
	_, err := s.pool.Exec(ctx, `
		insert into active_positions (id, account_id, market, amount, entry_price, current_price,
			collateral, leverage, margin_mode, liquidation_price, pnl, pnl_percent, is_open, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, p.ID, p.AccountID, p.Market, p.Amount, p.EntryPrice, p.CurrentPrice,
		p.Collateral, p.Leverage, string(p.MarginMode), p.LiquidationPrice, p.PnL, p.PnLPercent,
		p.IsOpen, p.CreatedAt, p.UpdatedAt)
	return err
}

// Update replaces every mutable column. Last write wins.
func (s *Store) Update(ctx context.Context, p model.Position) error {
	tag, err := s.pool.Exec(ctx, `
		update active_positions
		set amount = $1, current_price = $2, collateral = $3, liquidation_price = $4,
			pnl = $5, pnl_percent = $6, is_open = $7, updated_at = $8
		where id = $9
	`, p.Amount, p.CurrentPrice, p.Collateral, p.LiquidationPrice,
		p.PnL, p.PnLPercent, p.IsOpen, p.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, accountID, id string) (model.Position, error) {
	row := s.pool.QueryRow(ctx,
		"select "+positionColumns+" from active_positions where id = $1 and account_id = $2", id, accountID)
	p, err := scanPosition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Position{}, ErrNotFound
	}
	return p, err
}

// ListFilter narrows a listing. Open defaults to open-only when nil status
// semantics are wanted; callers pass nil to get everything.
type ListFilter struct {
	Open   *bool
	Market string
}

func (s *Store) List(ctx context.Context, accountID string, f ListFilter) ([]model.Position, error) {
	query := "select " + positionColumns + " from active_positions where account_id = $1"
	args := []any{accountID}
	if f.Open != nil {
		args = append(args, *f.Open)
		query += " and is_open = $2"
	}
	if f.Market != "" {
		args = append(args, f.Market)
		query += fmt.Sprintf(" and market = $%d", len(args))
	}
	query += " order by created_at desc, id desc"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPositions(rows)
}

func (s *Store) ListOpen(ctx context.Context, accountID string) ([]model.Position, error) {
	open := true
	return s.List(ctx, accountID, ListFilter{Open: &open})
}

// ListAllOpen returns every open position across accounts for the sync poller.
func (s *Store) ListAllOpen(ctx context.Context) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		"select "+positionColumns+" from active_positions where is_open = true order by account_id, created_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPositions(rows)
}

// ListOpenByMarket returns the open positions in one market across accounts,
// for marking on a live tick without scanning everything.
func (s *Store) ListOpenByMarket(ctx context.Context, market string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		"select "+positionColumns+" from active_positions where is_open = true and market = $1 order by account_id, created_at",
		market)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPositions(rows)
}

func scanPosition(row pgx.Row) (model.Position, error) {
	var p model.Position
	var mode string
	err := row.Scan(&p.ID, &p.AccountID, &p.Market, &p.Amount, &p.EntryPrice, &p.CurrentPrice,
		&p.Collateral, &p.Leverage, &mode, &p.LiquidationPrice, &p.PnL, &p.PnLPercent,
		&p.IsOpen, &p.CreatedAt, &p.UpdatedAt)
	p.MarginMode = types.MarginMode(mode)
	return p, err
}

func scanPositions(rows pgx.Rows) ([]model.Position, error) {
	var out []model.Position
	for rows.Next() {
		var p model.Position
		var mode string
		if err := rows.Scan(&p.ID, &p.AccountID, &p.Market, &p.Amount, &p.EntryPrice, &p.CurrentPrice,
			&p.Collateral, &p.Leverage, &mode, &p.LiquidationPrice, &p.PnL, &p.PnLPercent,
			&p.IsOpen, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.MarginMode = types.MarginMode(mode)
		out = append(out, p)
	}
	return out, rows.Err()
}
