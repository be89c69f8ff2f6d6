//go:build !integration

package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"

	"edu-checkout/internal/domain"
)

func TestMapScanErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", pgx.ErrNoRows, domain.ErrNotFound},
		{"malformed key", &pgconn.PgError{Code: pgInvalidTextRepresentation}, domain.ErrNotFound},
		{"wrapped malformed key", fmt.Errorf("scan: %w", &pgconn.PgError{Code: pgInvalidTextRepresentation}), domain.ErrNotFound},
		{"other sqlstate", &pgconn.PgError{Code: "57014"}, domain.ErrReadDatabaseRow},
		{"driver error", errors.New("conn reset"), domain.ErrReadDatabaseRow},
	}
	for _, tc := range cases {
		t.Run("should map "+tc.name, func(t *testing.T) {
			if got := mapScanErr(tc.err); !errors.Is(got, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestMapExecErr(t *testing.T) {
	t.Run("should map unique violations", func(t *testing.T) {
		if got := mapExecErr(&pgconn.PgError{Code: pgUniqueViolation}); !errors.Is(got, domain.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", got)
		}
	})

	t.Run("should hide other driver errors", func(t *testing.T) {
		if got := mapExecErr(errors.New("conn reset")); !errors.Is(got, domain.ErrOperationFailed) {
			t.Errorf("expected ErrOperationFailed, got %v", got)
		}
		if mapExecErr(nil) != nil {
			t.Error("nil must stay nil")
		}
	})
}
