package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mattn/go-sqlite3"

	"github.com/mstgnz/gohuifu/provider"
)

const (
	busyRetries  = 3
	defaultLimit = 50
)

// ExchangeRecord is a journaled gateway exchange
type ExchangeRecord struct {
	ID           int64           `json:"id"`
	Gateway      string          `json:"gateway"`
	Operation    string          `json:"operation"`
	FunctionCode string          `json:"function_code,omitempty"`
	RequestID    string          `json:"request_id,omitempty"`
	Outcome      string          `json:"outcome"`
	Code         string          `json:"code,omitempty"`
	Description  string          `json:"description,omitempty"`
	Error        string          `json:"error,omitempty"`
	DurationMs   int64           `json:"duration_ms"`
	Request      json.RawMessage `json:"request,omitempty"`
	Response     json.RawMessage `json:"response,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// NotificationRecord is a journaled callback
type NotificationRecord struct {
	ID        int64     `json:"id"`
	Gateway   string    `json:"gateway"`
	Event     string    `json:"event,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	State     string    `json:"state"`
	Ack       string    `json:"ack"`
	Strategy  string    `json:"strategy,omitempty"`
	Payload   string    `json:"payload,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Journal keeps every exchange and notification in a local SQLite database
type Journal struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// NewJournal opens (or creates) the journal database at dbPath
func NewJournal(dbPath string) (*Journal, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_timeout=20000&_txlock=immediate", dbPath)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)

	j := &Journal{
		db:   db,
		path: dbPath,
	}

	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Printf("SQLite journal initialized at: %s", dbPath)
	return j, nil
}

func (j *Journal) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS exchanges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		gateway TEXT NOT NULL,
		operation TEXT NOT NULL,
		function_code TEXT NOT NULL DEFAULT '',
		request_id TEXT NOT NULL DEFAULT '',
		outcome TEXT NOT NULL,
		code TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL DEFAULT 0,
		request TEXT,
		response TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_exchanges_request ON exchanges(request_id);
	CREATE INDEX IF NOT EXISTS idx_exchanges_gateway ON exchanges(gateway, created_at);

	CREATE TABLE IF NOT EXISTS notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		gateway TEXT NOT NULL,
		event TEXT NOT NULL DEFAULT '',
		request_id TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		ack TEXT NOT NULL,
		strategy TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_gateway ON notifications(gateway, created_at);
	`

	_, err := j.db.Exec(query)
	return err
}

// isBusy reports whether err is a lock conflict worth retrying
func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// retryOperation retries op while the database reports SQLITE_BUSY
func (j *Journal) retryOperation(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond

	return backoff.Retry(func() error {
		err := op()
		if err != nil && !isBusy(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, busyRetries), ctx))
}

func encodeJSON(v any) (sql.NullString, error) {
	switch t := v.(type) {
	case nil:
		return sql.NullString{}, nil
	case *provider.Params:
		if t == nil {
			return sql.NullString{}, nil
		}
		raw, err := t.MarshalJSON()
		return sql.NullString{String: string(raw), Valid: err == nil}, err
	case map[string]any:
		if t == nil {
			return sql.NullString{}, nil
		}
	}
	raw, err := json.Marshal(v)
	return sql.NullString{String: string(raw), Valid: err == nil}, err
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// RecordExchange stores one gateway exchange
func (j *Journal) RecordExchange(ctx context.Context, ex provider.Exchange) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	request, err := encodeJSON(ex.Request)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	response, err := encodeJSON(ex.Response)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}

	return j.retryOperation(ctx, func() error {
		_, err := j.db.ExecContext(ctx, `
		INSERT INTO exchanges (gateway, operation, function_code, request_id, outcome, code,
			description, error, duration_ms, request, response, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ex.Gateway, ex.Operation, ex.FunctionCode, ex.RequestID, ex.Outcome, ex.Code,
			ex.Description, ex.Error, ex.Duration.Milliseconds(), request, response, timestamp(ex.Timestamp),
		)
		if err != nil {
			return fmt.Errorf("failed to record exchange: %w", err)
		}
		return nil
	})
}

// RecordNotification stores one callback
func (j *Journal) RecordNotification(ctx context.Context, n provider.Notification) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.retryOperation(ctx, func() error {
		_, err := j.db.ExecContext(ctx, `
		INSERT INTO notifications (gateway, event, request_id, state, ack, strategy, payload, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			n.Gateway, n.Event, n.RequestID, string(n.State), string(n.Ack), n.Strategy, n.Payload, n.Error,
			timestamp(n.Timestamp),
		)
		if err != nil {
			return fmt.Errorf("failed to record notification: %w", err)
		}
		return nil
	})
}

const exchangeColumns = `id, gateway, operation, function_code, request_id, outcome, code,
	description, error, duration_ms, request, response, created_at`

// ExchangesByRequestID returns the exchanges sent with a request sequence id, oldest first
func (j *Journal) ExchangesByRequestID(ctx context.Context, requestID string) ([]ExchangeRecord, error) {
	return j.queryExchanges(ctx,
		`SELECT `+exchangeColumns+` FROM exchanges WHERE request_id = ? ORDER BY id`, requestID)
}

// RecentExchanges returns the newest exchanges of a gateway. An empty gateway
// matches all of them.
func (j *Journal) RecentExchanges(ctx context.Context, gateway string, limit int) ([]ExchangeRecord, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	return j.queryExchanges(ctx,
		`SELECT `+exchangeColumns+` FROM exchanges WHERE (? = '' OR gateway = ?) ORDER BY id DESC LIMIT ?`,
		gateway, gateway, limit)
}

func (j *Journal) queryExchanges(ctx context.Context, query string, args ...any) ([]ExchangeRecord, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query exchanges: %w", err)
	}
	defer rows.Close()

	var records []ExchangeRecord
	for rows.Next() {
		var (
			rec               ExchangeRecord
			request, response sql.NullString
			createdAt         string
		)
		if err := rows.Scan(&rec.ID, &rec.Gateway, &rec.Operation, &rec.FunctionCode, &rec.RequestID,
			&rec.Outcome, &rec.Code, &rec.Description, &rec.Error, &rec.DurationMs,
			&request, &response, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan exchange: %w", err)
		}
		if request.Valid {
			rec.Request = json.RawMessage(request.String)
		}
		if response.Valid {
			rec.Response = json.RawMessage(response.String)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// RecentNotifications returns the newest callbacks of a gateway. An empty
// gateway matches all of them.
func (j *Journal) RecentNotifications(ctx context.Context, gateway string, limit int) ([]NotificationRecord, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	rows, err := j.db.QueryContext(ctx, `
	SELECT id, gateway, event, request_id, state, ack, strategy, payload, error, created_at
	FROM notifications
	WHERE (? = '' OR gateway = ?)
	ORDER BY id DESC LIMIT ?`, gateway, gateway, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var records []NotificationRecord
	for rows.Next() {
		var (
			rec       NotificationRecord
			createdAt string
		)
		if err := rows.Scan(&rec.ID, &rec.Gateway, &rec.Event, &rec.RequestID, &rec.State, &rec.Ack,
			&rec.Strategy, &rec.Payload, &rec.Error, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetStats returns journal statistics
func (j *Journal) GetStats(ctx context.Context) (map[string]any, error) {
	outcomes := map[string]int{}
	rows, err := j.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM exchanges GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("failed to count exchanges: %w", err)
	}
	defer rows.Close()

	total := 0
	for rows.Next() {
		var (
			outcome string
			count   int
		)
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, err
		}
		outcomes[outcome] = count
		total += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var notifications, rejected int
	if err := j.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN state = ? THEN 1 ELSE 0 END), 0) FROM notifications`,
		string(provider.StateRejected),
	).Scan(&notifications, &rejected); err != nil {
		return nil, fmt.Errorf("failed to count notifications: %w", err)
	}

	return map[string]any{
		"exchanges":              total,
		"exchange_outcomes":      outcomes,
		"notifications":          notifications,
		"rejected_notifications": rejected,
		"database_path":          j.path,
	}, nil
}

// Ping checks that the database is reachable
func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Close closes the database connection
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}
