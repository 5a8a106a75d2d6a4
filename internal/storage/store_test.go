package storage

import (
	"context"
	"math"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"go.uber.org/zap"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWithDB(zap.NewNop(), db), mock
}

func TestGetOrCreateUser(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO users").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "chat_id", "warning_threshold", "critical_threshold", "alerts_paused"}).
			AddRow(1, 42, 1.5, 1.1, false))

	u, err := store.GetOrCreateUser(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}
	if u.ChatID != 42 || u.WarningThreshold != 1.5 || u.CriticalThreshold != 1.1 {
		t.Errorf("user = %+v", u)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestAddWalletLowercasesAddress(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO wallets").
		WithArgs(int64(1), "0xabcdef", "main").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "address", "label"}).
			AddRow(5, 1, "0xabcdef", "main"))

	w, err := store.AddWallet(context.Background(), 1, "0xABCDEF", "main")
	if err != nil {
		t.Fatalf("AddWallet: %v", err)
	}
	if w.Address != "0xabcdef" {
		t.Errorf("address = %q, want lowercased", w.Address)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRemoveWalletNotTracked(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM wallets").
		WithArgs(int64(1), "0xabc").
		WillReturnResult(sqlmock.NewResult(0, 0))

	removed, err := store.RemoveWallet(context.Background(), 1, "0xabc")
	if err != nil {
		t.Fatalf("RemoveWallet: %v", err)
	}
	if removed {
		t.Error("expected removed=false for untracked wallet")
	}
}

func TestActiveUsersGroupsWallets(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{
		"id", "chat_id", "warning_threshold", "critical_threshold", "alerts_paused",
		"w_id", "address", "label"}).
		AddRow(1, 42, 1.5, 1.1, false, 10, "0xaaa", "main").
		AddRow(1, 42, 1.5, 1.1, false, 11, "0xbbb", "").
		AddRow(2, 43, 2.0, 1.2, false, 12, "0xccc", "")

	mock.ExpectQuery("SELECT u.id, u.chat_id").WillReturnRows(rows)

	users, err := store.ActiveUsers(context.Background())
	if err != nil {
		t.Fatalf("ActiveUsers: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("got %d users, want 2", len(users))
	}
	if len(users[0].Wallets) != 2 || len(users[1].Wallets) != 1 {
		t.Errorf("wallet grouping = %d/%d, want 2/1", len(users[0].Wallets), len(users[1].Wallets))
	}
	if users[0].Wallets[1].Address != "0xbbb" {
		t.Errorf("second wallet = %+v", users[0].Wallets[1])
	}
}

func TestSaveSnapshotInfiniteHealthFactor(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO position_snapshots").
		WithArgs(int64(10), "Aave V3 (Ethereum)", nil, 5000.0, 0.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.SaveSnapshot(context.Background(), Snapshot{
		WalletID:      10,
		Protocol:      "Aave V3 (Ethereum)",
		HealthFactor:  math.Inf(1),
		CollateralUSD: 5000,
		ObservedAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
