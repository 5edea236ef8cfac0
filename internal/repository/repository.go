package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"
)

var (
	ErrReceiptNotFound  = errors.New("receipt not found")
	ErrDuplicateReceipt = errors.New("receipt for this checkout already exists")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// Repository stores checkout receipts in Postgres.
type Repository struct {
	db *sql.DB
}

type ReceiptRepository interface {
	Close() error
	RunMigrations(*Credentials) error
	SaveReceipt(ctx context.Context, r domain.Receipt) error
	GetReceipt(ctx context.Context, id string) (*domain.Receipt, error)
	ListReceipts(ctx context.Context, userID string, limit int) ([]domain.Receipt, error)
}

func NewRepository(ctx context.Context, cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.PingContext(ctx); e2 != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) SaveReceipt(ctx context.Context, rec domain.Receipt) error {
	choices, err := json.Marshal(rec.Choices)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery choices: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO checkout_receipts (
			id, snapshot_id, order_ref, user_id, item_ids, delivery_choices,
			subtotal_products, subtotal_shipping, grand_total, currency, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID,
		rec.SnapshotID,
		rec.OrderRef,
		rec.UserID,
		pq.Array(rec.ItemIDs),
		choices,
		int64(rec.Totals.SubtotalProducts),
		int64(rec.Totals.SubtotalShipping),
		int64(rec.Totals.GrandTotal),
		rec.Currency,
		rec.CompletedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateReceipt
		}
		return fmt.Errorf("failed to insert receipt: %w", err)
	}
	return nil
}

const receiptColumns = `id, snapshot_id, order_ref, user_id, item_ids, delivery_choices,
	subtotal_products, subtotal_shipping, grand_total, currency, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row rowScanner) (*domain.Receipt, error) {
	var (
		rec      domain.Receipt
		choices  []byte
		products int64
		shipping int64
		grand    int64
	)
	err := row.Scan(
		&rec.ID,
		&rec.SnapshotID,
		&rec.OrderRef,
		&rec.UserID,
		pq.Array(&rec.ItemIDs),
		&choices,
		&products,
		&shipping,
		&grand,
		&rec.Currency,
		&rec.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(choices, &rec.Choices); err != nil {
		return nil, fmt.Errorf("failed to unmarshal delivery choices: %w", err)
	}
	rec.Totals = domain.Totals{
		SubtotalProducts: domain.Money(products),
		SubtotalShipping: domain.Money(shipping),
		GrandTotal:       domain.Money(grand),
	}
	return &rec, nil
}

func (r *Repository) GetReceipt(ctx context.Context, id string) (*domain.Receipt, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+receiptColumns+` FROM checkout_receipts WHERE id = $1`, id)
	rec, err := scanReceipt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReceiptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	return rec, nil
}

// ListReceipts returns the buyer's receipts, newest first.
func (r *Repository) ListReceipts(ctx context.Context, userID string, limit int) ([]domain.Receipt, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+receiptColumns+` FROM checkout_receipts WHERE user_id = $1 ORDER BY completed_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	defer rows.Close()

	var out []domain.Receipt
	for rows.Next() {
		rec, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate receipts: %w", err)
	}
	return out, nil
}
