package postgresql

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/liftedinit/powchain/internal/models"
)

//go:embed migrations/*
var migrationsFS embed.FS

type PostgresOutputHandler struct {
	pool *pgxpool.Pool
}

func (h *PostgresOutputHandler) GetPool() *pgxpool.Pool {
	return h.pool
}

// DB returns a database/sql view of the pool for SQL based metrics collectors.
func (h *PostgresOutputHandler) DB() *sql.DB {
	return stdlib.OpenDBFromPool(h.pool)
}

func NewPostgresOutputHandler(ctx context.Context, connString string, maxConns uint) (*PostgresOutputHandler, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL connection string: %w", err)
	}

	if maxConns > math.MaxInt32 {
		return nil, fmt.Errorf("max connections exceeds maximum int32 value")
	}
	if maxConns > 0 {
		config.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	handler := &PostgresOutputHandler{
		pool: pool,
	}

	// Run migrations. This is idempotent.
	if err = handler.runMigrations(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return handler, nil
}

func (h *PostgresOutputHandler) GetLatestBlock(ctx context.Context) (*models.Block, error) {
	var data []byte
	err := h.pool.QueryRow(ctx, `
		SELECT data
		FROM api.blocks
		ORDER BY id DESC
		LIMIT 1
	`).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // No rows found
		}
		return nil, fmt.Errorf("failed to get the latest block: %w", err)
	}

	var block models.Block
	if err := json.Unmarshal(data, &block); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the latest block: %w", err)
	}
	return &block, nil
}

func (h *PostgresOutputHandler) WriteBlockWithTransactions(ctx context.Context, block *models.Block) error {
	data, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("failed to marshal block %d: %w", block.Index, err)
	}

	tx, err := h.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // Ensure rollback if commit is not reached

	// Write block. Transactions of a replaced block are dropped with it.
	_, err = tx.Exec(ctx, `DELETE FROM api.transactions WHERE block_id = $1`, block.Index)
	if err != nil {
		return fmt.Errorf("failed to clear block transactions: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO api.blocks (id, hash, previous_hash, proof, timestamp, data) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			hash = EXCLUDED.hash,
			previous_hash = EXCLUDED.previous_hash,
			proof = EXCLUDED.proof,
			timestamp = EXCLUDED.timestamp,
			data = EXCLUDED.data;
	`, block.Index, block.Hash, block.PreviousHash, block.Proof, block.Timestamp, data)
	if err != nil {
		return fmt.Errorf("failed to write blockchain block: %w", err)
	}

	// Write transactions
	for i, t := range block.Transactions {
		_, err = tx.Exec(ctx, `
			INSERT INTO api.transactions (block_id, position, sender, recipient, amount) VALUES ($1, $2, $3, $4, $5)
		`, block.Index, i, t.Sender, t.Recipient, t.Amount)
		if err != nil {
			return fmt.Errorf("failed to write blockchain transaction: %w", err)
		}
	}

	// Commit transaction
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (h *PostgresOutputHandler) ResetChain(ctx context.Context) error {
	slog.Info("Clearing exported chain")
	if _, err := h.pool.Exec(ctx, `TRUNCATE api.transactions, api.blocks`); err != nil {
		return fmt.Errorf("failed to clear exported chain: %w", err)
	}
	return nil
}

func (h *PostgresOutputHandler) runMigrations() error {
	// Create tables if they don't exist
	slog.Info("Running PostgreSQL migrations...")

	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := migratepgx.WithInstance(stdlib.OpenDBFromPool(h.pool), &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", d, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	defer m.Close()

	// Run migrations
	if err = m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func (h *PostgresOutputHandler) Close() error {
	slog.Info("Closing PostgreSQL connection pool")
	h.pool.Close()
	slog.Info("PostgreSQL connection pool closed")
	return nil
}
