package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
)

// ============================================================
// Migrations Tests
// ============================================================

func TestLoadMigrations_Embedded(t *testing.T) {
	migs, err := LoadMigrations(migrationsFS)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(migs) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migs))
	}

	wantNames := []string{"signals", "admin_users", "sessions"}
	for i, m := range migs {
		if m.Version != int64(i+1) {
			t.Errorf("migration %d: version = %d", i, m.Version)
		}
		if m.Name != wantNames[i] {
			t.Errorf("migration %d: name = %q, want %q", i, m.Name, wantNames[i])
		}
		if m.UpSQL == "" || m.DownSQL == "" {
			t.Errorf("migration %d: empty sql", i)
		}
	}
	if !strings.Contains(migs[0].UpSQL, "CREATE TABLE IF NOT EXISTS signals") {
		t.Error("signals migration should create signals table")
	}
	if !strings.Contains(migs[0].UpSQL, "pnl NOT IN ('NaN', 'Infinity', '-Infinity')") {
		t.Error("signals migration should reject non-finite pnl")
	}
}

func TestLoadMigrations_Invalid(t *testing.T) {
	tests := []struct {
		name string
		fs   fstest.MapFS
		want string
	}{
		{
			name: "no files",
			fs:   fstest.MapFS{},
			want: "no migration files",
		},
		{
			name: "bad filename",
			fs: fstest.MapFS{
				"migrations/signals.sql": {Data: []byte("SELECT 1")},
			},
			want: "invalid migration filename",
		},
		{
			name: "missing down",
			fs: fstest.MapFS{
				"migrations/0001_signals.up.sql": {Data: []byte("SELECT 1")},
			},
			want: "both up and down",
		},
		{
			name: "empty file",
			fs: fstest.MapFS{
				"migrations/0001_signals.up.sql":   {Data: []byte("  ")},
				"migrations/0001_signals.down.sql": {Data: []byte("SELECT 1")},
			},
			want: "empty migration file",
		},
		{
			name: "conflicting names",
			fs: fstest.MapFS{
				"migrations/0001_signals.up.sql": {Data: []byte("SELECT 1")},
				"migrations/0001_other.down.sql": {Data: []byte("SELECT 1")},
			},
			want: "conflicting names",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadMigrations(tt.fs)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should contain %q", err, tt.want)
			}
		})
	}
}

func TestMigratorUp_SkipsApplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	m, err := NewMigrator(db)
	if err != nil {
		t.Fatalf("NewMigrator: %v", err)
	}

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT version FROM schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1).AddRow(2))

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS admin_sessions`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO schema_migrations`).
		WithArgs(int64(3), "sessions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := m.Up(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied != 1 {
		t.Errorf("expected 1 applied, got %d", applied)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestMigratorUp_RollbackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	m, _ := NewMigrator(db)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT version FROM schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS signals`).
		WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	applied, err := m.Up(context.Background())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if applied != 0 {
		t.Errorf("expected 0 applied, got %d", applied)
	}
	if !strings.Contains(err.Error(), "version 1 up failed") {
		t.Errorf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestMigratorDown(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	m, _ := NewMigrator(db)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT version FROM schema_migrations ORDER BY version DESC LIMIT`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(3))
	mock.ExpectBegin()
	mock.ExpectExec(`DROP TABLE IF EXISTS admin_sessions`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM schema_migrations`).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := m.Down(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 rolled back, got %d", n)
	}

	if _, err := m.Down(context.Background(), 0); err == nil {
		t.Error("expected error for zero steps")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestMigratorVersion(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	m, _ := NewMigrator(db)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT version, name FROM schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"version", "name"}))

	v, name, err := m.Version(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 0 || name != "" {
		t.Errorf("expected empty version, got %d %q", v, name)
	}

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT version, name FROM schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"version", "name"}).AddRow(3, "sessions"))

	v, name, err = m.Version(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 3 || name != "sessions" {
		t.Errorf("expected 3 sessions, got %d %q", v, name)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
