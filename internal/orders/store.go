package orders

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tradedesk/internal/model"
	"tradedesk/internal/types"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Insert(ctx context.Context, o model.Order) error {
	_, err := s.pool.Exec(ctx, `
		insert into orders (id, account_id, market, side, amount, entry_price, order_type, status, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, o.ID, o.AccountID, o.Market, string(o.Side), o.Amount, o.EntryPrice, string(o.OrderType), string(o.Status), o.CreatedAt)
	return err
}

func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, "delete from orders where id = $1", id)
	return err
}

func (s *Store) List(ctx context.Context, accountID string, limit int) ([]model.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		select id, account_id, market, side, amount, entry_price, order_type, status, created_at
		from orders
		where account_id = $1
		order by created_at desc, id desc
		limit $2
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

func scanOrders(rows pgx.Rows) ([]model.Order, error) {
	var out []model.Order
	for rows.Next() {
		var o model.Order
		var side, typ, status string
		if err := rows.Scan(&o.ID, &o.AccountID, &o.Market, &side, &o.Amount, &o.EntryPrice, &typ, &status, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.Side = types.OrderSide(side)
		o.OrderType = types.OrderType(typ)
		o.Status = types.OrderStatus(status)
		out = append(out, o)
	}
	return out, rows.Err()
}
