package order

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists orders. Place is the atomic unit of work: it reads and
// decrements product stock and inserts the order as one commit, with no
// partial effects observable on any failure. The same contract is implemented
// by PGRepo (native transactions) and MemRepo (single lock), so the service
// logic is storage-engine agnostic.
type Repository interface {
	Place(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, f Filter) ([]Order, error)
	UpdateStatus(ctx context.Context, id string, next Status, restock bool) (*Order, error)
	Delete(ctx context.Context, id string) (bool, error)
	MonthlySales(ctx context.Context) ([]MonthlySales, error)
}

const opTimeout = 5 * time.Second

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

// retryable reports whether err is a serialization/deadlock failure that a
// fresh attempt of the whole unit of work may resolve.
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// Place runs the reservation protocol under a serializable transaction:
// per line item read the product, reject on missing product or short stock,
// snapshot name/price/image onto the item, decrement stock, then insert the
// order and its items. The conditional decrement (stock >= quantity) guards
// the invariant even if the pool is configured below serializable.
func (r *PGRepo) Place(ctx context.Context, o *Order) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i := range o.Items {
		it := &o.Items[i]

		var stock int
		err := tx.QueryRow(ctx, `
      SELECT name, COALESCE(image,''), price::text, stock
      FROM products WHERE id=$1
    `, it.ProductID).Scan(&it.Name, &it.Image, &it.Price, &stock)
		if errors.Is(err, pgx.ErrNoRows) {
			return &NotFoundError{Resource: "product", ID: it.ProductID}
		}
		if err != nil {
			return err
		}
		if stock < it.Quantity {
			return &InsufficientStockError{
				ProductID: it.ProductID,
				Name:      it.Name,
				Requested: it.Quantity,
				Available: stock,
			}
		}

		tag, err := tx.Exec(ctx, `
      UPDATE products SET stock = stock - $2, updated_at = NOW()
      WHERE id = $1 AND stock >= $2
    `, it.ProductID, it.Quantity)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return &InsufficientStockError{
				ProductID: it.ProductID,
				Name:      it.Name,
				Requested: it.Quantity,
				Available: stock,
			}
		}
	}

	if _, err := tx.Exec(ctx, `
    INSERT INTO orders (id, user_id, status, mode_of_payment,
      ship_address, ship_city, ship_phone, ship_postal_code, ship_country,
      items_price, tax_price, shipping_price, total_price, created_at, updated_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$14)
  `, o.ID, o.UserID, o.Status, o.Payment,
		o.Shipping.Address, o.Shipping.City, o.Shipping.PhoneNo, o.Shipping.PostalCode, o.Shipping.Country,
		o.ItemsPrice, o.TaxPrice, o.ShippingPrice, o.TotalPrice, o.CreatedAt); err != nil {
		return err
	}

	for _, it := range o.Items {
		if _, err := tx.Exec(ctx, `
      INSERT INTO order_items (id, order_id, product_id, name, image, quantity, price)
      VALUES ($1,$2,$3,$4,$5,$6,$7)
    `, it.ID, o.ID, it.ProductID, it.Name, it.Image, it.Quantity, it.Price); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

const orderColumns = `
  id, user_id, status, mode_of_payment,
  ship_address, ship_city, ship_phone, ship_postal_code, ship_country,
  items_price::text, tax_price::text, shipping_price::text, total_price::text,
  created_at, updated_at`

func scanOrder(row pgx.Row, o *Order) error {
	return row.Scan(&o.ID, &o.UserID, &o.Status, &o.Payment,
		&o.Shipping.Address, &o.Shipping.City, &o.Shipping.PhoneNo,
		&o.Shipping.PostalCode, &o.Shipping.Country,
		&o.ItemsPrice, &o.TaxPrice, &o.ShippingPrice, &o.TotalPrice,
		&o.CreatedAt, &o.UpdatedAt)
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var o Order
	err := scanOrder(r.db.QueryRow(ctx, `SELECT`+orderColumns+` FROM orders WHERE id=$1`, id), &o)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Resource: "order", ID: id}
	}
	if err != nil {
		return nil, err
	}
	items, err := r.items(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return &o, nil
}

func (r *PGRepo) items(ctx context.Context, orderID string) ([]Item, error) {
	rows, err := r.db.Query(ctx, `
    SELECT id, order_id, product_id, name, COALESCE(image,''), quantity, price::text
    FROM order_items WHERE order_id=$1 ORDER BY id
  `, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Name, &it.Image, &it.Quantity, &it.Price); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *PGRepo) List(ctx context.Context, f Filter) ([]Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, `
    SELECT`+orderColumns+`
    FROM orders
    WHERE ($1 = '' OR user_id = $1)
      AND ($2 = '' OR status = $2)
    ORDER BY created_at DESC
  `, f.UserID, string(f.Status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := scanOrder(rows, &o); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		items, err := r.items(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Items = items
	}
	return out, nil
}

// UpdateStatus locks the order row, checks the transition against the state
// machine, and applies it. With restock enabled, a move into Canceled returns
// every item's quantity to product stock in the same transaction.
func (r *PGRepo) UpdateStatus(ctx context.Context, id string, next Status, restock bool) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var cur Status
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, id).Scan(&cur)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Resource: "order", ID: id}
	}
	if err != nil {
		return nil, err
	}
	if !CanTransition(cur, next) {
		return nil, validationf("illegal status transition %s -> %s", cur, next)
	}

	if _, err := tx.Exec(ctx, `
    UPDATE orders SET status=$2, updated_at=NOW() WHERE id=$1
  `, id, next); err != nil {
		return nil, err
	}

	if restock && next == StatusCanceled {
		if _, err := tx.Exec(ctx, `
      UPDATE products p SET stock = p.stock + oi.quantity, updated_at = NOW()
      FROM order_items oi
      WHERE oi.order_id = $1 AND oi.product_id = p.id
    `, id); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *PGRepo) Delete(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	// order_items has ON DELETE CASCADE; stock is intentionally not restored
	cmd, err := r.db.Exec(ctx, `DELETE FROM orders WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *PGRepo) MonthlySales(ctx context.Context) ([]MonthlySales, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, `
    SELECT EXTRACT(YEAR FROM created_at)::int AS year,
           EXTRACT(MONTH FROM created_at)::int AS month,
           SUM(total_price)::text AS total_sales
    FROM orders
    WHERE status = $1
    GROUP BY year, month
    ORDER BY year, month
  `, StatusCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MonthlySales
	for rows.Next() {
		var m MonthlySales
		if err := rows.Scan(&m.Year, &m.Month, &m.TotalSales); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
