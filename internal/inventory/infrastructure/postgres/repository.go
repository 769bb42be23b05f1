package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/foodshare/internal/inventory/domain"
	orderdomain "github.com/dmehra2102/foodshare/internal/order/domain"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ErrStockChanged means a guarded decrement matched no row even though the check passed.
var ErrStockChanged = errors.New("stock changed during reservation")

// StockStore reads and reserves stock on db. With lock set, CheckAvailability takes row
// locks that are held until the surrounding transaction ends.
type StockStore struct {
	db   DBTX
	lock bool
}

// NewTxStockStore returns a store for use inside a transaction.
func NewTxStockStore(tx pgx.Tx) *StockStore {
	return &StockStore{db: tx, lock: true}
}

func (s *StockStore) CheckAvailability(ctx context.Context, items []orderdomain.LineItem) ([]orderdomain.Shortfall, error) {
	if len(items) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(items))
	for _, li := range items {
		names = append(names, li.Name)
	}

	// rows are locked in item name order so concurrent submissions cannot deadlock
	q := `SELECT item_name, quantity FROM inventory WHERE item_name = ANY($1) ORDER BY item_name`
	if s.lock {
		q += ` FOR UPDATE`
	}
	rows, err := s.db.Query(ctx, q, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	have := make(map[string]int, len(names))
	for rows.Next() {
		var (
			name string
			qty  int
		)
		if err := rows.Scan(&name, &qty); err != nil {
			return nil, err
		}
		have[name] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var short []orderdomain.Shortfall
	for _, li := range items {
		if have[li.Name] < li.Quantity {
			short = append(short, orderdomain.Shortfall{Item: li.Name, Requested: li.Quantity, Available: have[li.Name]})
		}
	}
	return short, nil
}

func (s *StockStore) Decrement(ctx context.Context, items []orderdomain.LineItem) error {
	for _, li := range items {
		if li.Quantity <= 0 {
			return fmt.Errorf("refusing to decrement %s by %d", li.Name, li.Quantity)
		}
		ct, err := s.db.Exec(ctx, `UPDATE inventory SET quantity = quantity - $1, updated_at = now()
			WHERE item_name = $2 AND quantity >= $1`, li.Quantity, li.Name)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", ErrStockChanged, li.Name)
		}
	}
	return nil
}

func (s *StockStore) Get(ctx context.Context, name string) (domain.Item, error) {
	var it domain.Item
	err := s.db.QueryRow(ctx, `SELECT item_name, category, quantity, updated_at FROM inventory WHERE item_name=$1`, name).
		Scan(&it.Name, &it.Category, &it.Quantity, &it.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Item{}, domain.ErrItemNotFound
	}
	if err != nil {
		return domain.Item{}, err
	}
	return it, nil
}

func (s *StockStore) List(ctx context.Context) ([]domain.Item, error) {
	return s.items(ctx, `SELECT item_name, category, quantity, updated_at FROM inventory ORDER BY item_name`)
}

func (s *StockStore) LowStock(ctx context.Context, threshold int) ([]domain.Item, error) {
	return s.items(ctx, `SELECT item_name, category, quantity, updated_at FROM inventory
		WHERE quantity <= $1 ORDER BY quantity, item_name`, threshold)
}

func (s *StockStore) items(ctx context.Context, q string, args ...any) ([]domain.Item, error) {
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Item, 0)
	for rows.Next() {
		var it domain.Item
		if err := rows.Scan(&it.Name, &it.Category, &it.Quantity, &it.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Repository serves inventory reads straight from the pool and records donations in
// their own transaction.
type Repository struct {
	*StockStore
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{
		StockStore: &StockStore{db: pool},
		log:        log,
		pool:       pool,
	}
}

func (r *Repository) RecordDonation(ctx context.Context, d domain.Donation) (domain.Donation, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Donation{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	err = tx.QueryRow(ctx, `INSERT INTO donations (donor_id, item_name, category, quantity, donated_at)
		VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		d.DonorID, d.ItemName, d.Category, d.Quantity, d.DonatedAt).Scan(&d.ID)
	if err != nil {
		return domain.Donation{}, err
	}

	_, err = tx.Exec(ctx, `INSERT INTO inventory (item_name, category, quantity, updated_at) VALUES ($1,$2,$3,$4)
		ON CONFLICT (item_name) DO UPDATE SET
			quantity = inventory.quantity + EXCLUDED.quantity,
			category = COALESCE(NULLIF(EXCLUDED.category, ''), inventory.category),
			updated_at = EXCLUDED.updated_at`,
		d.ItemName, d.Category, d.Quantity, time.Now().UTC())
	if err != nil {
		return domain.Donation{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Donation{}, err
	}
	r.log.Debug("stock replenished", "item", d.ItemName, "quantity", d.Quantity)
	return d, nil
}

// SetStock overwrites an item's quantity. Used for seeding.
func (r *Repository) SetStock(ctx context.Context, name string, quantity int) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO inventory (item_name, quantity, updated_at) VALUES ($1,$2,now())
		ON CONFLICT (item_name) DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = EXCLUDED.updated_at`, name, quantity)
	return err
}
