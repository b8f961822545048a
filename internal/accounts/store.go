package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"tradedesk/internal/model"
)

var ErrNotFound = errors.New("account not found")

// Store persists accounts in the users table.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const accountColumns = `id, wallet_address, email, username, tier, stage, balance, realized_pnl, created_at, updated_at`

func scanAccount(row pgx.Row) (model.Account, error) {
	var a model.Account
	err := row.Scan(&a.ID, &a.WalletAddress, &a.Email, &a.Username, &a.Tier, &a.Stage,
		&a.Balance, &a.RealizedPnL, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Account{}, ErrNotFound
	}
	return a, err
}

func (s *Store) GetByID(ctx context.Context, id string) (model.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx,
		"select "+accountColumns+" from users where id = $1", id))
}

func (s *Store) GetByWallet(ctx context.Context, wallet string) (model.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx,
		"select "+accountColumns+" from users where wallet_address = $1", wallet))
}

// Create inserts a new account row. The caller supplies the id.
func (s *Store) Create(ctx context.Context, a model.Account) (model.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx, `
		insert into users (id, wallet_address, email, username, tier, stage, balance, realized_pnl)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning `+accountColumns,
		a.ID, a.WalletAddress, a.Email, a.Username, a.Tier, a.Stage, a.Balance, a.RealizedPnL))
}

// UpdateBalance overwrites the balance and realized PnL.
func (s *Store) UpdateBalance(ctx context.Context, id string, balance, realizedPnL decimal.Decimal) error {
	tag, err := s.pool.Exec(ctx, `
		update users
		set balance = $1, realized_pnl = $2, updated_at = now()
		where id = $3
	`, balance, realizedPnL, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetDemo restores the demo stage and the starting balance. Used on every
// wallet login so a returning trader always starts from a clean slate.
func (s *Store) ResetDemo(ctx context.Context, id string, balance decimal.Decimal) error {
	tag, err := s.pool.Exec(ctx, `
		update users
		set balance = $1, realized_pnl = 0, tier = 'basic', stage = 'demo', updated_at = now()
		where id = $2
	`, balance, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
