package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zavaops/ticketflow/internal/common"
	"github.com/zavaops/ticketflow/internal/model"
)

// PostgresStore keeps each ticket as a JSONB document keyed by ticket ID.
// The document shape matches the JSON the API serves, so reads need no
// mapping layer.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open creates a pgx pool from the database config.
func Open(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	logger.Info("connecting to database")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse database config", "error", err)
		return nil, err
	}

	pc.MaxConns = cfg.MaxConns
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "ticketflow"

	ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}

	logger.Info("successfully connected to database")
	return pool, nil
}

// NewPostgresStore wraps a pool and ensures the tickets table exists.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool, logger: logger}
	if err := s.migrate(ctx); err != nil {
		return nil, common.NewAppError("DB_MIGRATE", "failed to ensure schema", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS tickets (
			ticket_id  text PRIMARY KEY,
			status     text NOT NULL,
			created_at timestamptz NOT NULL,
			updated_at timestamptz NOT NULL,
			doc        jsonb NOT NULL
		);
		CREATE INDEX IF NOT EXISTS tickets_status_idx ON tickets (status);
		CREATE INDEX IF NOT EXISTS tickets_created_at_idx ON tickets (created_at DESC);
	`)
	return err
}

// HealthCheck pings the pool, used by the readiness endpoint.
func (s *PostgresStore) HealthCheck(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Create(ctx context.Context, t *model.Ticket) error {
	doc, err := json.Marshal(t)
	if err != nil {
		return common.NewAppError("DB_MARSHAL", "failed to encode ticket", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO tickets (ticket_id, status, created_at, updated_at, doc)
		VALUES ($1, $2, $3, $4, $5)`,
		t.TicketID, string(t.Status), t.CreatedAt, t.UpdatedAt, doc)
	if err != nil {
		if isUniqueViolation(err) {
			return common.NewAppError("TICKET_EXISTS", "ticket already exists", common.ErrConflict)
		}
		return common.NewAppError("DB_INSERT", "failed to insert ticket", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, ticketID string) (*model.Ticket, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM tickets WHERE ticket_id = $1`, ticketID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.NewAppError("TICKET_NOT_FOUND", "ticket not found", common.ErrNotFound)
	}
	if err != nil {
		return nil, common.NewAppError("DB_QUERY", "failed to load ticket", err)
	}
	var t model.Ticket
	if err := json.Unmarshal(doc, &t); err != nil {
		return nil, common.NewAppError("DB_UNMARSHAL", "failed to decode ticket", err)
	}
	return &t, nil
}

// Update reads the document under a row lock, merges the patch, and writes
// it back in the same transaction, so concurrent stage writers serialize on
// the row instead of overwriting each other.
func (s *PostgresStore) Update(ctx context.Context, ticketID string, patch *model.TicketPatch) (*model.Ticket, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, common.NewAppError("DB_TX", "failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	var doc []byte
	err = tx.QueryRow(ctx,
		`SELECT doc FROM tickets WHERE ticket_id = $1 FOR UPDATE`, ticketID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.NewAppError("TICKET_NOT_FOUND", "ticket not found", common.ErrNotFound)
	}
	if err != nil {
		return nil, common.NewAppError("DB_QUERY", "failed to load ticket", err)
	}

	var t model.Ticket
	if err := json.Unmarshal(doc, &t); err != nil {
		return nil, common.NewAppError("DB_UNMARSHAL", "failed to decode ticket", err)
	}

	model.ApplyPatch(&t, patch)
	t.UpdatedAt = time.Now().UTC()

	newDoc, err := json.Marshal(&t)
	if err != nil {
		return nil, common.NewAppError("DB_MARSHAL", "failed to encode ticket", err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE tickets SET status = $2, updated_at = $3, doc = $4
		WHERE ticket_id = $1`,
		ticketID, string(t.Status), t.UpdatedAt, newDoc)
	if err != nil {
		return nil, common.NewAppError("DB_UPDATE", "failed to update ticket", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, common.NewAppError("DB_TX", "failed to commit transaction", err)
	}
	return &t, nil
}

func (s *PostgresStore) Delete(ctx context.Context, ticketID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tickets WHERE ticket_id = $1`, ticketID)
	if err != nil {
		return common.NewAppError("DB_DELETE", "failed to delete ticket", err)
	}
	if tag.RowsAffected() == 0 {
		return common.NewAppError("TICKET_NOT_FOUND", "ticket not found", common.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, opts ListOptions) (*model.TicketList, error) {
	query := `SELECT doc FROM tickets`
	args := []any{}
	if opts.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, opts.Status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, common.NewAppError("DB_QUERY", "failed to list tickets", err)
	}
	defer rows.Close()

	var matched []*model.Ticket
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, common.NewAppError("DB_SCAN", "failed to scan ticket row", err)
		}
		var t model.Ticket
		if err := json.Unmarshal(doc, &t); err != nil {
			return nil, common.NewAppError("DB_UNMARSHAL", "failed to decode ticket", err)
		}
		matched = append(matched, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, common.NewAppError("DB_QUERY", "failed to list tickets", err)
	}
	return paginate(matched, opts), nil
}

func (s *PostgresStore) All(ctx context.Context) ([]*model.Ticket, error) {
	rows, err := s.pool.Query(ctx, `SELECT doc FROM tickets ORDER BY created_at DESC`)
	if err != nil {
		return nil, common.NewAppError("DB_QUERY", "failed to load tickets", err)
	}
	defer rows.Close()

	var out []*model.Ticket
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, common.NewAppError("DB_SCAN", "failed to scan ticket row", err)
		}
		var t model.Ticket
		if err := json.Unmarshal(doc, &t); err != nil {
			return nil, common.NewAppError("DB_UNMARSHAL", "failed to decode ticket", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	// 23505 is unique_violation.
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}

var _ TicketStore = (*PostgresStore)(nil)
var _ TicketStore = (*MemoryStore)(nil)

// Close closes the pool gracefully.
func Close(pool *pgxpool.Pool, logger *slog.Logger) {
	logger.Info("closing database connections")
	if pool != nil {
		pool.Close()
	}
	logger.Info("database connections closed")
}

// String implements fmt.Stringer for debug logging.
func (o ListOptions) String() string {
	return fmt.Sprintf("status=%q page=%d size=%d", o.Status, o.Page, o.PageSize)
}
