package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/cartsync/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(cred *Credentials) (*PostgresRepository, error) {
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

	if e2 := db.Ping(); e2 != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "cart_schema_migrations",
	})
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

func (r *PostgresRepository) GetCartItems(ctx context.Context, userID string) ([]domain.CartRow, error) {
	query := `SELECT id, user_id, product_id, quantity, added_at, updated_at
	          FROM cart_items WHERE user_id = $1 ORDER BY added_at, id`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	items := []domain.CartRow{}
	for rows.Next() {
		var row domain.CartRow
		if err := rows.Scan(
			&row.ID,
			&row.UserID,
			&row.ProductID,
			&row.Quantity,
			&row.AddedAt,
			&row.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan cart item row: %w", err)
		}
		items = append(items, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return items, nil
}

func (r *PostgresRepository) UpsertItem(ctx context.Context, userID, productID string, quantity int, rowID string) (*domain.CartRow, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if rowID == "" {
		rowID = uuid.NewString()
	}

	query := `INSERT INTO cart_items (id, user_id, product_id, quantity, added_at, updated_at)
	          VALUES ($1, $2, $3, $4, NOW(), NOW())
	          ON CONFLICT (user_id, product_id)
	          DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = NOW()
	          RETURNING id, user_id, product_id, quantity, added_at, updated_at`

	var row domain.CartRow
	err := r.db.QueryRowContext(ctx, query, rowID, userID, productID, quantity).Scan(
		&row.ID,
		&row.UserID,
		&row.ProductID,
		&row.Quantity,
		&row.AddedAt,
		&row.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert cart item: %w", err)
	}
	return &row, nil
}

func (r *PostgresRepository) UpdateQuantity(ctx context.Context, rowID string, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE cart_items SET quantity = $2, updated_at = NOW() WHERE id = $1`,
		rowID, quantity)
	if err != nil {
		return fmt.Errorf("update cart item quantity: %w", err)
	}
	return requireAffected(result)
}

func (r *PostgresRepository) RemoveItem(ctx context.Context, rowID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1`, rowID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	return requireAffected(result)
}

func (r *PostgresRepository) ClearCart(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrItemNotFound
	}
	return nil
}
