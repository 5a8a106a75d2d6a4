// Package storage persists users, tracked wallets, and position snapshots
// in Postgres. In-memory tracker state (cooldowns, confirmation history) is
// deliberately not persisted; it rebuilds from chain data after a restart.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// User is a Telegram chat with monitoring preferences.
type User struct {
	ID                int64
	ChatID            int64
	WarningThreshold  float64
	CriticalThreshold float64
	AlertsPaused      bool
	Wallets           []Wallet
}

// Wallet is one tracked address belonging to a user.
type Wallet struct {
	ID      int64
	UserID  int64
	Address string
	Label   string
}

// Snapshot is one observed position state, kept for history queries.
type Snapshot struct {
	WalletID      int64
	Protocol      string
	HealthFactor  float64
	CollateralUSD float64
	DebtUSD       float64
	ObservedAt    time.Time
}

type Store struct {
	logger *zap.Logger
	db     *sql.DB
}

func Open(logger *zap.Logger, dsn string) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{logger: logger, db: db}, nil
}

// NewWithDB wraps an existing connection, used by tests.
func NewWithDB(logger *zap.Logger, db *sql.DB) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{logger: logger, db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	chat_id BIGINT NOT NULL UNIQUE,
	warning_threshold DOUBLE PRECISION NOT NULL DEFAULT 1.5,
	critical_threshold DOUBLE PRECISION NOT NULL DEFAULT 1.1,
	alerts_paused BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS wallets (
	id BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	address TEXT NOT NULL,
	label TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (user_id, address)
);
CREATE TABLE IF NOT EXISTS position_snapshots (
	id BIGSERIAL PRIMARY KEY,
	wallet_id BIGINT NOT NULL REFERENCES wallets(id) ON DELETE CASCADE,
	protocol TEXT NOT NULL,
	health_factor DOUBLE PRECISION,
	collateral_usd DOUBLE PRECISION NOT NULL,
	debt_usd DOUBLE PRECISION NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_wallet_time
	ON position_snapshots (wallet_id, observed_at DESC);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// GetOrCreateUser returns the user for a chat, creating it with default
// thresholds on first contact.
func (s *Store) GetOrCreateUser(ctx context.Context, chatID int64) (*User, error) {
	const query = `
INSERT INTO users (chat_id) VALUES ($1)
ON CONFLICT (chat_id) DO UPDATE SET chat_id = EXCLUDED.chat_id
RETURNING id, chat_id, warning_threshold, critical_threshold, alerts_paused`

	var u User
	err := s.db.QueryRowContext(ctx, query, chatID).Scan(
		&u.ID, &u.ChatID, &u.WarningThreshold, &u.CriticalThreshold, &u.AlertsPaused)
	if err != nil {
		return nil, fmt.Errorf("get or create user %d: %w", chatID, err)
	}
	return &u, nil
}

// AddWallet tracks a new address for a user. Adding the same address twice
// updates the label instead of erroring.
func (s *Store) AddWallet(ctx context.Context, userID int64, address, label string) (*Wallet, error) {
	const query = `
INSERT INTO wallets (user_id, address, label) VALUES ($1, $2, $3)
ON CONFLICT (user_id, address) DO UPDATE SET label = EXCLUDED.label
RETURNING id, user_id, address, label`

	var w Wallet
	err := s.db.QueryRowContext(ctx, query, userID, strings.ToLower(address), label).Scan(
		&w.ID, &w.UserID, &w.Address, &w.Label)
	if err != nil {
		return nil, fmt.Errorf("add wallet %s: %w", address, err)
	}
	return &w, nil
}

// RemoveWallet stops tracking an address. Returns false when the address
// was not tracked.
func (s *Store) RemoveWallet(ctx context.Context, userID int64, address string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM wallets WHERE user_id = $1 AND address = $2`,
		userID, strings.ToLower(address))
	if err != nil {
		return false, fmt.Errorf("remove wallet %s: %w", address, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove wallet %s: %w", address, err)
	}
	return n > 0, nil
}

// ListWallets returns a user's tracked addresses in insertion order.
func (s *Store) ListWallets(ctx context.Context, userID int64) ([]Wallet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, address, label FROM wallets WHERE user_id = $1 ORDER BY id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []Wallet
	for rows.Next() {
		var w Wallet
		if err := rows.Scan(&w.ID, &w.UserID, &w.Address, &w.Label); err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// SetPaused toggles alert delivery for a user.
func (s *Store) SetPaused(ctx context.Context, userID int64, paused bool) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE users SET alerts_paused = $2 WHERE id = $1`, userID, paused); err != nil {
		return fmt.Errorf("set paused: %w", err)
	}
	return nil
}

// SetThresholds updates a user's warning/critical thresholds.
func (s *Store) SetThresholds(ctx context.Context, userID int64, warning, critical float64) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE users SET warning_threshold = $2, critical_threshold = $3 WHERE id = $1`,
		userID, warning, critical); err != nil {
		return fmt.Errorf("set thresholds: %w", err)
	}
	return nil
}

// ActiveUsers returns every user with at least one wallet and alerts not
// paused, wallets populated.
func (s *Store) ActiveUsers(ctx context.Context) ([]User, error) {
	const query = `
SELECT u.id, u.chat_id, u.warning_threshold, u.critical_threshold, u.alerts_paused,
       w.id, w.address, w.label
FROM users u
JOIN wallets w ON w.user_id = u.id
WHERE NOT u.alerts_paused
ORDER BY u.id, w.id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("active users: %w", err)
	}
	defer rows.Close()

	var users []User
	byID := make(map[int64]int)
	for rows.Next() {
		var u User
		var w Wallet
		if err := rows.Scan(&u.ID, &u.ChatID, &u.WarningThreshold, &u.CriticalThreshold,
			&u.AlertsPaused, &w.ID, &w.Address, &w.Label); err != nil {
			return nil, fmt.Errorf("scan active user: %w", err)
		}
		w.UserID = u.ID
		idx, ok := byID[u.ID]
		if !ok {
			users = append(users, u)
			idx = len(users) - 1
			byID[u.ID] = idx
		}
		users[idx].Wallets = append(users[idx].Wallets, w)
	}
	return users, rows.Err()
}

// SaveSnapshot records one observed position state. Infinite health factors
// are stored as NULL.
func (s *Store) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	hf := sql.NullFloat64{Float64: snap.HealthFactor, Valid: !math.IsInf(snap.HealthFactor, 0)}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO position_snapshots (wallet_id, protocol, health_factor, collateral_usd, debt_usd, observed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		snap.WalletID, snap.Protocol, hf, snap.CollateralUSD, snap.DebtUSD, snap.ObservedAt)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}
