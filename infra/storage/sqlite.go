package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/mstgnz/vpos/infra/logger"
	"github.com/mstgnz/vpos/provider"
)

// SQLiteStore persists records as JSON documents with a few indexed columns
type SQLiteStore struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// NewSQLiteStore opens (and if needed creates) the database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_timeout=20000&_txlock=immediate&_foreign_keys=on", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{db: db, path: dbPath}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite storage initialized", logger.LogContext{Fields: map[string]any{"path": dbPath}})
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		parent_id TEXT NOT NULL DEFAULT '',
		partner_id TEXT NOT NULL DEFAULT '',
		terminal_id TEXT NOT NULL,
		status TEXT NOT NULL,
		external_id TEXT NOT NULL DEFAULT '',
		callback_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		data TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_parent ON transactions(parent_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_external ON transactions(partner_id, external_id);

	CREATE TABLE IF NOT EXISTS terminals (
		id TEXT PRIMARY KEY,
		partner_id TEXT NOT NULL DEFAULT '',
		bank_code TEXT NOT NULL,
		position INTEGER NOT NULL,
		data TEXT NOT NULL,
		UNIQUE(partner_id, bank_code)
	);

	CREATE TABLE IF NOT EXISTS commission_overrides (
		id TEXT PRIMARY KEY,
		partner_id TEXT NOT NULL,
		currency TEXT NOT NULL,
		active INTEGER NOT NULL,
		data TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_overrides_partner ON commission_overrides(partner_id, currency);

	CREATE TABLE IF NOT EXISTS bin_records (
		bin TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.Exec(query)
	return err
}

// retryOperation executes a database operation with retry logic for SQLITE_BUSY errors
func (s *SQLiteStore) retryOperation(operation func() error, maxRetries int) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			return err
		}

		lastErr = err
		if attempt < maxRetries {
			// 10ms, 20ms, 40ms, 80ms
			time.Sleep(time.Duration(10*(1<<attempt)) * time.Millisecond)
		}
	}

	return fmt.Errorf("operation failed after %d retries, last error: %w", maxRetries+1, lastErr)
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return strings.Contains(err.Error(), "database is locked")
}

func isUnique(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func (s *SQLiteStore) CreateTransaction(ctx context.Context, tx *provider.Transaction) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction: %w", err)
	}

	return s.retryOperation(func() error {
		_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, parent_id, partner_id, terminal_id, status, external_id, created_at, updated_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			tx.ID, tx.ParentID, tx.PartnerID, tx.TerminalID, string(tx.Status), tx.ExternalID,
			tx.CreatedAt.UTC(), tx.UpdatedAt.UTC(), string(data))
		if err != nil && isUnique(err) {
			return ErrDuplicate
		}
		return err
	}, 3)
}

func (s *SQLiteStore) GetTransaction(ctx context.Context, id string) (*provider.Transaction, error) {
	var data string
	err := s.retryOperation(func() error {
		return s.db.QueryRowContext(ctx, `SELECT data FROM transactions WHERE id = ?`, id).Scan(&data)
	}, 3)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	return decodeTransaction(data)
}

func decodeTransaction(data string) (*provider.Transaction, error) {
	var tx provider.Transaction
	if err := json.Unmarshal([]byte(data), &tx); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transaction: %w", err)
	}
	return &tx, nil
}

// mutate loads a transaction inside a write transaction, lets fn change it
// and stores the result
func (s *SQLiteStore) mutate(ctx context.Context, id string, fn func(tx *provider.Transaction) error) (*provider.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out *provider.Transaction
	err := s.retryOperation(func() error {
		dbTx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer dbTx.Rollback()

		var data string
		if err := dbTx.QueryRowContext(ctx, `SELECT data FROM transactions WHERE id = ?`, id).Scan(&data); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		tx, err := decodeTransaction(data)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			return err
		}

		updated, err := json.Marshal(tx)
		if err != nil {
			return fmt.Errorf("failed to marshal transaction: %w", err)
		}

		var callbackAt any
		if tx.CallbackAt != nil {
			callbackAt = tx.CallbackAt.UTC()
		}
		if _, err := dbTx.ExecContext(ctx, `
		UPDATE transactions SET status = ?, callback_at = ?, updated_at = ?, data = ? WHERE id = ?`,
			string(tx.Status), callbackAt, tx.UpdatedAt.UTC(), string(updated), id); err != nil {
			return err
		}
		if err := dbTx.Commit(); err != nil {
			return err
		}
		out = tx
		return nil
	}, 3)
	return out, err
}

func (s *SQLiteStore) UpdateTransaction(ctx context.Context, id string, expect provider.Status, upd TransactionUpdate) (*provider.Transaction, error) {
	return s.mutate(ctx, id, func(tx *provider.Transaction) error {
		if expect != "" && tx.Status != expect {
			return ErrStatusConflict
		}
		upd.Apply(tx, time.Now().UTC())
		return nil
	})
}

func (s *SQLiteStore) ClaimCallback(ctx context.Context, id string, at time.Time) (*provider.Transaction, error) {
	return s.mutate(ctx, id, func(tx *provider.Transaction) error {
		if tx.Status != provider.StatusProcessing {
			return ErrStatusConflict
		}
		if tx.CallbackAt != nil {
			return ErrAlreadyClaimed
		}
		tx.CallbackAt = &at
		tx.UpdatedAt = at
		return nil
	})
}

func (s *SQLiteStore) ClaimChild(ctx context.Context, parentID, slot, childID string) (*provider.Transaction, error) {
	return s.mutate(ctx, parentID, func(tx *provider.Transaction) error {
		return claimChild(tx, slot, childID, time.Now().UTC())
	})
}

func (s *SQLiteStore) ReleaseChild(ctx context.Context, parentID, slot, childID string) error {
	_, err := s.mutate(ctx, parentID, func(tx *provider.Transaction) error {
		releaseChild(tx, slot, childID, time.Now().UTC())
		return nil
	})
	return err
}

func (s *SQLiteStore) ListChildren(ctx context.Context, parentID string) ([]*provider.Transaction, error) {
	var children []*provider.Transaction
	err := s.retryOperation(func() error {
		rows, err := s.db.QueryContext(ctx, `SELECT data FROM transactions WHERE parent_id = ? ORDER BY created_at, id`, parentID)
		if err != nil {
			return err
		}
		defer rows.Close()

		children = children[:0]
		for rows.Next() {
			var data string
			if err := rows.Scan(&data); err != nil {
				return err
			}
			tx, err := decodeTransaction(data)
			if err != nil {
				return err
			}
			children = append(children, tx)
		}
		return rows.Err()
	}, 3)
	return children, err
}

func (s *SQLiteStore) SaveTerminal(ctx context.Context, t *provider.Terminal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	siblings, err := s.listTerminals(ctx, t.PartnerID)
	if err != nil {
		return err
	}
	if err := checkTerminal(t, siblings); err != nil {
		return err
	}

	return s.retryOperation(func() error {
		var position int
		err := s.db.QueryRowContext(ctx, `SELECT position FROM terminals WHERE id = ?`, t.ID).Scan(&position)
		if errors.Is(err, sql.ErrNoRows) {
			if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), 0) + 1 FROM terminals`).Scan(&position); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		t.Position = position

		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to marshal terminal: %w", err)
		}

		_, err = s.db.ExecContext(ctx, `
		INSERT INTO terminals (id, partner_id, bank_code, position, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			partner_id = excluded.partner_id,
			bank_code = excluded.bank_code,
			data = excluded.data`,
			t.ID, t.PartnerID, t.BankCode, position, string(data))
		if err != nil && isUnique(err) {
			return ErrDuplicate
		}
		return err
	}, 3)
}

func (s *SQLiteStore) GetTerminal(ctx context.Context, id string) (*provider.Terminal, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM terminals WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load terminal: %w", err)
	}

	var t provider.Terminal
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal terminal: %w", err)
	}
	return &t, nil
}

func (s *SQLiteStore) ListTerminals(ctx context.Context, partnerID string) ([]*provider.Terminal, error) {
	return s.listTerminals(ctx, partnerID)
}

func (s *SQLiteStore) listTerminals(ctx context.Context, partnerID string) ([]*provider.Terminal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM terminals WHERE partner_id = ? ORDER BY position`, partnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query terminals: %w", err)
	}
	defer rows.Close()

	var terminals []*provider.Terminal
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan terminal: %w", err)
		}
		var t provider.Terminal
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			logger.Warn("skipping unreadable terminal row", logger.LogContext{PartnerID: partnerID, Fields: map[string]any{"error": err.Error()}})
			continue
		}
		terminals = append(terminals, &t)
	}
	return terminals, rows.Err()
}

func (s *SQLiteStore) SaveOverride(ctx context.Context, o *provider.CommissionOverride) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal override: %w", err)
	}

	return s.retryOperation(func() error {
		_, err := s.db.ExecContext(ctx, `
		INSERT INTO commission_overrides (id, partner_id, currency, active, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			partner_id = excluded.partner_id,
			currency = excluded.currency,
			active = excluded.active,
			data = excluded.data`,
			o.ID, o.PartnerID, o.Currency, o.Active, string(data))
		return err
	}, 3)
}

func (s *SQLiteStore) FindOverrides(ctx context.Context, partnerID, currency string) ([]*provider.CommissionOverride, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT data FROM commission_overrides
	WHERE partner_id = ? AND currency = ? AND active = 1
	ORDER BY id`, partnerID, currency)
	if err != nil {
		return nil, fmt.Errorf("failed to query overrides: %w", err)
	}
	defer rows.Close()

	var overrides []*provider.CommissionOverride
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var o provider.CommissionOverride
		if err := json.Unmarshal([]byte(data), &o); err != nil {
			return nil, fmt.Errorf("failed to unmarshal override: %w", err)
		}
		overrides = append(overrides, &o)
	}
	return overrides, rows.Err()
}

func (s *SQLiteStore) GetBinRecord(ctx context.Context, prefix string) (*provider.BinInfo, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM bin_records WHERE bin = ?`, prefix).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load bin record: %w", err)
	}

	var info provider.BinInfo
	if err := json.Unmarshal([]byte(data), &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bin record: %w", err)
	}
	return &info, nil
}

func (s *SQLiteStore) SaveBinRecord(ctx context.Context, info *provider.BinInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal bin record: %w", err)
	}

	return s.retryOperation(func() error {
		_, err := s.db.ExecContext(ctx, `
		INSERT INTO bin_records (bin, data, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(bin) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
			info.Bin, string(data))
		return err
	}, 3)
}

// Close closes the database connection
// Ping checks the database connection
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
