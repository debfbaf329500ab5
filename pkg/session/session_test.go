package session

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/platinummonkey/baselayer/pkg/access"
	"github.com/platinummonkey/baselayer/pkg/observability"
)

type fakePrincipal struct {
	userID int64
	admin  bool
}

func (p fakePrincipal) Kind() string           { return "User" }
func (p fakePrincipal) Ident() string          { return "tester" }
func (p fakePrincipal) EffectiveUserID() int64 { return p.userID }
func (p fakePrincipal) IsAdmin() bool          { return p.admin }

// testDoc is a minimal Record: documents owned by a user
type testDoc struct {
	id      int64
	ownerID int64
}

func (d *testDoc) EntityName() string       { return "document" }
func (d *testDoc) PrimaryKey() interface{}  { return d.id }
func (d *testDoc) HasPrimaryKey() bool      { return d.id != 0 }
func (d *testDoc) Insert(ctx context.Context, tx *sql.Tx) error {
	return tx.QueryRowContext(ctx,
		`INSERT INTO documents (owner_id) VALUES ($1) RETURNING id`, d.ownerID).Scan(&d.id)
}
func (d *testDoc) Update(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `UPDATE documents SET owner_id = $1 WHERE id = $2`, d.ownerID, d.id)
	return err
}
func (d *testDoc) Delete(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, d.id)
	return err
}

func testRegistry(t *testing.T) *access.Registry {
	t.Helper()
	reg := access.NewRegistry()
	reg.MustRegister(access.EntitySpec{Name: "user", Table: "users"})
	reg.MustRegister(access.EntitySpec{
		Name: "document", Table: "documents",
		Create: access.AccessibleByOwner(),
		Read:   access.AccessibleByOwner(),
		Update: access.AccessibleByOwner(),
		Delete: access.AccessibleByOwner(),
		Relationships: []access.Relationship{
			{Name: "owner", Target: "user", Kind: access.BelongsTo, LocalColumn: "owner_id"},
		},
	})
	if err := reg.Validate(); err != nil {
		t.Fatalf("registry validation failed: %v", err)
	}
	return reg
}

func testManager(t *testing.T, opts ...ManagerOption) (*Manager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewManager(db, testRegistry(t), logger, opts...), mock
}

const verifyQueryPattern = `SELECT cand\.id FROM unnest\(\$2::bigint\[\]\) AS cand\(id\) LEFT JOIN`

func noInaccessibleRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id"})
}

func TestCommitVerifiesReads(t *testing.T) {
	mgr, mock := testManager(t)

	mock.ExpectBegin()
	mock.ExpectQuery(verifyQueryPattern).
		WithArgs(int64(42), sqlmock.AnyArg()).
		WillReturnRows(noInaccessibleRows())
	mock.ExpectCommit()

	sess, err := mgr.Begin(context.Background(), fakePrincipal{userID: 42})
	if err != nil {
		t.Fatalf("failed to begin session: %v", err)
	}
	defer sess.Close()

	sess.Read(&testDoc{id: 1, ownerID: 42})
	if err := sess.Commit(context.Background()); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCommitDeniesInaccessibleRead(t *testing.T) {
	mgr, mock := testManager(t)

	mock.ExpectBegin()
	mock.ExpectQuery(verifyQueryPattern).
		WithArgs(int64(42), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(2)))
	mock.ExpectRollback()

	sess, err := mgr.Begin(context.Background(), fakePrincipal{userID: 42})
	if err != nil {
		t.Fatalf("failed to begin session: %v", err)
	}
	defer sess.Close()

	sess.Read(&testDoc{id: 2, ownerID: 7})
	err = sess.Commit(context.Background())

	var accessErr *AccessError
	if !errors.As(err, &accessErr) {
		t.Fatalf("expected AccessError, got %v", err)
	}
	if accessErr.Mode != access.ModeRead || accessErr.Entity != "document" {
		t.Errorf("unexpected violation detail: %+v", accessErr)
	}
	if !strings.Contains(accessErr.Error(), "read document") {
		t.Errorf("error message should name mode and entity, got %q", accessErr.Error())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCommitVerifiesCreatesAfterFlush(t *testing.T) {
	mgr, mock := testManager(t)

	mock.ExpectBegin()
	// Flush first: the insert assigns the primary key...
	mock.ExpectQuery(`INSERT INTO documents`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))
	// ...then create verification runs over the assigned key
	mock.ExpectQuery(verifyQueryPattern).
		WithArgs(int64(42), sqlmock.AnyArg()).
		WillReturnRows(noInaccessibleRows())
	mock.ExpectCommit()

	sess, err := mgr.Begin(context.Background(), fakePrincipal{userID: 42})
	if err != nil {
		t.Fatalf("failed to begin session: %v", err)
	}
	defer sess.Close()

	doc := &testDoc{ownerID: 42}
	sess.Create(doc)
	if err := sess.Commit(context.Background()); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if doc.id != 5 {
		t.Errorf("insert should populate the primary key, got %d", doc.id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCommitAtomicityAcrossCreates(t *testing.T) {
	mgr, mock := testManager(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO documents`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(10)))
	mock.ExpectQuery(`INSERT INTO documents`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))
	// The second row is not create-accessible; both inserts roll back
	mock.ExpectQuery(verifyQueryPattern).
		WithArgs(int64(42), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectRollback()

	sess, err := mgr.Begin(context.Background(), fakePrincipal{userID: 42})
	if err != nil {
		t.Fatalf("failed to begin session: %v", err)
	}
	defer sess.Close()

	sess.Create(&testDoc{ownerID: 42})
	sess.Create(&testDoc{ownerID: 7})

	err = sess.Commit(context.Background())
	if !IsAccessError(err) {
		t.Fatalf("expected AccessError, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

type recordingNotifier struct {
	reports []LeakReport
}

func (n *recordingNotifier) NotifyLeak(ctx context.Context, report LeakReport) error {
	n.reports = append(n.reports, report)
	return nil
}

func TestPermissiveLeakPolicyWarnsAndRollsBack(t *testing.T) {
	notifier := &recordingNotifier{}
	mgr, mock := testManager(t, WithStrict(false), WithLeakNotifier(notifier))

	mock.ExpectBegin()
	mock.ExpectQuery(verifyQueryPattern).
		WithArgs(int64(42), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(2)))
	mock.ExpectRollback()

	sess, err := mgr.Begin(context.Background(), fakePrincipal{userID: 42})
	if err != nil {
		t.Fatalf("failed to begin session: %v", err)
	}
	defer sess.Close()

	sess.Read(&testDoc{id: 2, ownerID: 7})
	err = sess.Commit(context.Background())

	if IsAccessError(err) {
		t.Errorf("permissive mode must not raise AccessError, got %v", err)
	}
	if !errors.Is(err, ErrLeakDetected) {
		t.Errorf("expected leak error, got %v", err)
	}
	if len(notifier.reports) != 1 {
		t.Fatalf("expected one leak report, got %d", len(notifier.reports))
	}
	if len(notifier.reports[0].Violations) != 1 {
		t.Errorf("expected one violation in report, got %+v", notifier.reports[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUpdatedRowsLeaveReadBucket(t *testing.T) {
	mgr, _ := testManager(t)
	sess := &Session{
		mgr:       mgr,
		principal: fakePrincipal{userID: 1},
		seen:      make(map[recordKey]Record),
		updated:   make(map[recordKey]Record),
		deleted:   make(map[recordKey]Record),
	}

	readOnly := &testDoc{id: 1, ownerID: 1}
	mutated := &testDoc{id: 2, ownerID: 1}
	removed := &testDoc{id: 3, ownerID: 1}
	sess.Read(readOnly)
	sess.Read(mutated)
	sess.Update(mutated)
	sess.Read(removed)
	sess.Delete(removed)

	read, update, del := sess.buckets()
	if len(read) != 1 || read[0].PrimaryKey() != int64(1) {
		t.Errorf("read bucket should hold only untouched rows, got %v", read)
	}
	if len(update) != 1 || update[0].PrimaryKey() != int64(2) {
		t.Errorf("update bucket mismatch: %v", update)
	}
	if len(del) != 1 || del[0].PrimaryKey() != int64(3) {
		t.Errorf("delete bucket mismatch: %v", del)
	}
}

func TestDeleteSupersedesUpdate(t *testing.T) {
	mgr, _ := testManager(t)
	sess := &Session{
		mgr:       mgr,
		principal: fakePrincipal{userID: 1},
		seen:      make(map[recordKey]Record),
		updated:   make(map[recordKey]Record),
		deleted:   make(map[recordKey]Record),
	}

	doc := &testDoc{id: 4, ownerID: 1}
	sess.Update(doc)
	sess.Delete(doc)

	_, update, del := sess.buckets()
	if len(update) != 0 {
		t.Errorf("deleted row must leave the update bucket, got %v", update)
	}
	if len(del) != 1 {
		t.Errorf("expected one deletion, got %v", del)
	}
}

func TestCommitAfterCloseFails(t *testing.T) {
	mgr, mock := testManager(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	sess, err := mgr.Begin(context.Background(), fakePrincipal{userID: 1})
	if err != nil {
		t.Fatalf("failed to begin session: %v", err)
	}
	sess.Rollback()

	if err := sess.Commit(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
}
