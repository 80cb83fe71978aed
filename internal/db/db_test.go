package db

import (
	"errors"
	"fmt"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestPendingFilesSortedAndFiltered(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_payouts.up.sql":  {Data: []byte("SELECT 1")},
		"0001_init.up.sql":     {Data: []byte("SELECT 1")},
		"0001_init.down.sql":   {Data: []byte("SELECT 1")},
		"README.md":            {Data: []byte("docs")},
		"nested/0003_x.up.sql": {Data: []byte("SELECT 1")},
	}

	files, err := PendingFiles(fsys)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"0001_init.up.sql", "0002_payouts.up.sql"}
	if len(files) != len(want) {
		t.Fatalf("got %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files[%d] = %q, want %q", i, files[i], want[i])
		}
	}
}

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	if !IsUniqueViolation(err) {
		t.Error("expected unique violation")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Error("foreign key violation reported as unique")
	}
	if IsUniqueViolation(errors.New("boom")) {
		t.Error("plain error reported as unique")
	}
}

func TestIsNoRows(t *testing.T) {
	if !IsNoRows(fmt.Errorf("get: %w", pgx.ErrNoRows)) {
		t.Error("expected no rows")
	}
	if IsNoRows(errors.New("boom")) {
		t.Error("plain error reported as no rows")
	}
}
