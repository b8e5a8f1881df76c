package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"storefront/backend/internal/domain"
	"storefront/backend/internal/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies the embedded schema migrations. The migrate instance is not
// closed because that would close the shared *sql.DB.
func (s *Store) Migrate() error {
	driver, err := migratepg.WithInstance(s.db, &migratepg.Config{
		MigrationsTable: "storefront_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("could not open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

const transactionColumns = `id, external_id, status, detail, email, payer, amount, currency,
	payment_method, payment_type, created_at`

func (s *Store) CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if err := store.ValidateTransaction(tx); err != nil {
		return nil, err
	}
	payer, err := json.Marshal(tx.Payer)
	if err != nil {
		return nil, fmt.Errorf("marshal payer: %w", err)
	}
	if tx.Date.IsZero() {
		tx.Date = time.Now().UTC()
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6::jsonb,$7,$8,$9,$10,$11)
		RETURNING `+transactionColumns,
		tx.ID, tx.ExternalID, tx.Status, tx.Detail, tx.Email, string(payer), tx.Amount, tx.Currency,
		tx.PaymentMethod, tx.PaymentType, tx.Date,
	)
	created, err := scanTransaction(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return created, nil
}

func (s *Store) SaveTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if err := store.ValidateTransaction(tx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE transactions
		SET external_id = $2, status = $3, detail = $4, amount = $5, currency = $6
		WHERE id = $1
		RETURNING `+transactionColumns,
		tx.ID, tx.ExternalID, tx.Status, tx.Detail, tx.Amount, tx.Currency,
	)
	saved, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return saved, nil
}

func (s *Store) FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return tx, nil
}

// TransitionTransaction is a single conditional UPDATE; concurrent callers
// race on the row lock and only one sees a non-approved status.
func (s *Store) TransitionTransaction(ctx context.Context, id string, update domain.TransactionUpdate) (*domain.Transaction, error) {
	if _, err := domain.ToTransactionStatus(string(update.Status)); err != nil || update.Amount < 0 {
		return nil, store.ErrInvalidInput
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE transactions
		SET status = $2,
			detail = $3,
			amount = $4,
			currency = $5,
			payment_method = COALESCE(NULLIF($6, ''), payment_method),
			payment_type = COALESCE(NULLIF($7, ''), payment_type)
		WHERE id = $1 AND status <> 'approved'
		RETURNING `+transactionColumns,
		id, update.Status, update.Detail, update.Amount, update.Currency, update.PaymentMethod, update.PaymentType,
	)
	tx, err := scanTransaction(row)
	if err == nil {
		return tx, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return nil, s.missedTransition(ctx, id)
}

// missedTransition explains a conditional UPDATE that matched no row.
func (s *Store) missedTransition(ctx context.Context, id string) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrTransitionRejected
}

func (s *Store) UpdateTransactionStatus(ctx context.Context, id string, status domain.TransactionStatus) (*domain.Transaction, error) {
	if _, err := domain.ToTransactionStatus(string(status)); err != nil {
		return nil, store.ErrInvalidInput
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE transactions SET status = $2
		WHERE id = $1 AND status NOT IN ('approved', 'rejected')
		RETURNING `+transactionColumns, id, status)
	tx, err := scanTransaction(row)
	if err == nil {
		return tx, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return nil, s.missedTransition(ctx, id)
}

func (s *Store) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	var q query
	if filter.Status != "" {
		q.where("status = ?", filter.Status)
	}
	q.dates("created_at", filter.Dates)

	field, desc := filter.SortField()
	column := "created_at"
	if field != "date" {
		column = "amount"
	}

	sqlText := `SELECT ` + transactionColumns + ` FROM transactions` + q.clause() + orderBy(column, desc)
	sqlText += q.page(filter.Page)

	rows, err := s.db.QueryContext(ctx, sqlText, q.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]domain.Transaction, 0, 32)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txs, nil
}

const orderColumns = `id, number, transaction_id, items, customer, shipment, total, status, comment, created_at`

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if err := store.ValidateOrder(order); err != nil {
		return nil, err
	}
	if order.Items == nil {
		order.Items = []domain.OrderItem{}
	}
	items, err := json.Marshal(order.Items)
	if err != nil {
		return nil, fmt.Errorf("marshal order items: %w", err)
	}
	customer, err := json.Marshal(order.Customer)
	if err != nil {
		return nil, fmt.Errorf("marshal customer: %w", err)
	}
	shipment, err := json.Marshal(order.Shipment)
	if err != nil {
		return nil, fmt.Errorf("marshal shipment: %w", err)
	}
	if order.Date.IsZero() {
		order.Date = time.Now().UTC()
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4::jsonb,$5::jsonb,$6::jsonb,$7,$8,$9,$10)
		RETURNING `+orderColumns,
		order.ID, order.Number, order.TransactionID, string(items), string(customer), string(shipment),
		order.Total, order.Status, order.Comment, order.Date,
	)
	created, err := scanOrder(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	return created, nil
}

func (s *Store) FindOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	return s.findOrder(ctx, "id", id)
}

func (s *Store) FindOrderByTransaction(ctx context.Context, transactionID string) (*domain.Order, error) {
	return s.findOrder(ctx, "transaction_id", transactionID)
}

func (s *Store) findOrder(ctx context.Context, column string, value string) (*domain.Order, error) {
	if column != "id" && column != "transaction_id" {
		return nil, fmt.Errorf("unsupported lookup column")
	}

	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM orders WHERE %s = $1`, orderColumns, column), value)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return order, nil
}

func (s *Store) UpdateOrder(ctx context.Context, id string, patch domain.OrderPatch) (*domain.Order, error) {
	if err := store.ValidateOrderPatch(patch); err != nil {
		return nil, err
	}

	q := query{args: []any{id}}
	if patch.Status != nil {
		q.set("status = ?", *patch.Status)
	}
	if patch.Comment != nil {
		q.set("comment = ?", *patch.Comment)
	}
	if patch.Customer != nil {
		customer, err := json.Marshal(patch.Customer)
		if err != nil {
			return nil, fmt.Errorf("marshal customer: %w", err)
		}
		q.set("customer = ?::jsonb", string(customer))
	}
	if patch.Shipment != nil {
		shipment, err := json.Marshal(patch.Shipment)
		if err != nil {
			return nil, fmt.Errorf("marshal shipment: %w", err)
		}
		q.set("shipment = ?::jsonb", string(shipment))
	}

	row := s.db.QueryRowContext(ctx,
		`UPDATE orders SET `+strings.Join(q.conds, ", ")+` WHERE id = $1 RETURNING `+orderColumns,
		q.args...)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return order, nil
}

func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	var q query
	if filter.Status != "" {
		q.where("status = ?", filter.Status)
	}
	if customer := strings.TrimSpace(filter.Customer); customer != "" {
		q.where("strpos(lower(customer->>'email'), lower(?)) > 0", customer)
	}
	q.dates("created_at", filter.Dates)

	field, desc := filter.SortField()
	column := "created_at"
	if field != "date" {
		column = "total"
	}

	sqlText := `SELECT ` + orderColumns + ` FROM orders` + q.clause() + orderBy(column, desc)
	sqlText += q.page(filter.Page)

	rows, err := s.db.QueryContext(ctx, sqlText, q.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, 32)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) DailySales(ctx context.Context, from time.Time, to time.Time) ([]domain.DailySales, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date_trunc('day', created_at AT TIME ZONE 'UTC') AS day, count(*), COALESCE(sum(total), 0)
		FROM orders
		WHERE status <> 'cancelled' AND created_at BETWEEN $1 AND $2
		GROUP BY day
		ORDER BY day
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.DailySales, 0, 31)
	for rows.Next() {
		var d domain.DailySales
		if err := rows.Scan(&d.Day, &d.Count, &d.Total); err != nil {
			return nil, err
		}
		d.Day = time.Date(d.Day.Year(), d.Day.Month(), d.Day.Day(), 0, 0, 0, 0, time.UTC)
		sales = append(sales, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) CountOrdersByStatus(ctx context.Context, from time.Time, to time.Time) ([]domain.StatusStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, count(*)
		FROM orders
		WHERE created_at BETWEEN $1 AND $2
		GROUP BY status
		ORDER BY status
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make([]domain.StatusStats, 0, 4)
	for rows.Next() {
		var st domain.StatusStats
		if err := rows.Scan(&st.Status, &st.Count); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Store) SumApprovedAmount(ctx context.Context, from time.Time, to time.Time) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(sum(amount), 0)
		FROM transactions
		WHERE status = 'approved' AND created_at BETWEEN $1 AND $2
	`, from, to).Scan(&total)
	return total, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var payer []byte
	if err := row.Scan(
		&tx.ID,
		&tx.ExternalID,
		&tx.Status,
		&tx.Detail,
		&tx.Email,
		&payer,
		&tx.Amount,
		&tx.Currency,
		&tx.PaymentMethod,
		&tx.PaymentType,
		&tx.Date,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payer, &tx.Payer); err != nil {
		return nil, fmt.Errorf("decode payer: %w", err)
	}
	tx.Date = tx.Date.UTC()
	return &tx, nil
}

func scanOrder(row scanner) (*domain.Order, error) {
	var order domain.Order
	var items, customer, shipment []byte
	if err := row.Scan(
		&order.ID,
		&order.Number,
		&order.TransactionID,
		&items,
		&customer,
		&shipment,
		&order.Total,
		&order.Status,
		&order.Comment,
		&order.Date,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &order.Items); err != nil {
		return nil, fmt.Errorf("decode order items: %w", err)
	}
	if err := json.Unmarshal(customer, &order.Customer); err != nil {
		return nil, fmt.Errorf("decode customer: %w", err)
	}
	if err := json.Unmarshal(shipment, &order.Shipment); err != nil {
		return nil, fmt.Errorf("decode shipment: %w", err)
	}
	order.Date = order.Date.UTC()
	return &order, nil
}

// query accumulates WHERE conditions written with ? placeholders and numbers
// them in order.
type query struct {
	conds []string
	args  []any
}

func (q *query) where(cond string, arg any) {
	q.args = append(q.args, arg)
	q.conds = append(q.conds, strings.Replace(cond, "?", fmt.Sprintf("$%d", len(q.args)), 1))
}

// set appends an assignment; it shares the placeholder numbering of where.
func (q *query) set(assign string, arg any) {
	q.where(assign, arg)
}

func (q *query) dates(column string, r domain.DateRange) {
	if r.From != nil {
		q.where(column+" >= ?", *r.From)
	}
	if r.To != nil {
		q.where(column+" <= ?", *r.To)
	}
}

func (q *query) clause() string {
	if len(q.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.conds, " AND ")
}

func (q *query) page(p domain.Page) string {
	out := ""
	if p.Size > 0 {
		q.args = append(q.args, p.Size)
		out += fmt.Sprintf(" LIMIT $%d", len(q.args))
	}
	if p.Offset > 0 {
		q.args = append(q.args, p.Offset)
		out += fmt.Sprintf(" OFFSET $%d", len(q.args))
	}
	return out
}

func orderBy(column string, desc bool) string {
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, id %s", column, dir, dir)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
