package access

import (
	"context"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestIsAccessible(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	defer db.Close()

	reg := testRegistry(t)
	e, _ := reg.Entity("document")
	principal := fakePrincipal{userID: 42}

	t.Run("accessible row", func(t *testing.T) {
		mock.ExpectQuery(`SELECT COUNT\(\*\) > 0 FROM \(SELECT`).
			WithArgs(int64(42), int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"accessible"}).AddRow(true))

		ok, err := IsAccessible(context.Background(), db, reg, e, principal, ModeRead, int64(7))
		if err != nil {
			t.Fatalf("IsAccessible failed: %v", err)
		}
		if !ok {
			t.Errorf("expected row to be accessible")
		}
	})

	t.Run("inaccessible row", func(t *testing.T) {
		mock.ExpectQuery(`SELECT COUNT\(\*\) > 0 FROM \(SELECT`).
			WithArgs(int64(42), int64(8)).
			WillReturnRows(sqlmock.NewRows([]string{"accessible"}).AddRow(false))

		ok, err := IsAccessible(context.Background(), db, reg, e, principal, ModeRead, int64(8))
		if err != nil {
			t.Fatalf("IsAccessible failed: %v", err)
		}
		if ok {
			t.Errorf("expected row to be inaccessible")
		}
	})

	t.Run("non-boolean result is fatal", func(t *testing.T) {
		mock.ExpectQuery(`SELECT COUNT\(\*\) > 0 FROM \(SELECT`).
			WithArgs(int64(42), int64(9)).
			WillReturnRows(sqlmock.NewRows([]string{"accessible"}).AddRow(int64(1)))

		_, err := IsAccessible(context.Background(), db, reg, e, principal, ModeRead, int64(9))
		if err == nil || !strings.Contains(err.Error(), "expected a boolean") {
			t.Errorf("expected non-boolean error, got %v", err)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
