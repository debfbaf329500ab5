// Package session provides the verified transactional session: a
// request-scoped unit of work that tracks every row touched and proves, at
// commit time, that the principal may access each one in the mode it was
// touched. Verification failures roll the transaction back atomically.
package session

import (
	"context"
	"database/sql"
	"fmt"
	"runtime/debug"
	"sort"

	"github.com/platinummonkey/baselayer/pkg/access"
	"github.com/platinummonkey/baselayer/pkg/observability"
)

// LeakReport describes inaccessible rows found during commit verification
type LeakReport struct {
	RequestID  string
	Principal  string
	Violations []Violation
	Stack      string
}

// Violation is one group of inaccessible rows of a single entity
type Violation struct {
	Entity      string
	Mode        access.Mode
	PrimaryKeys []interface{}
}

// LeakNotifier receives leak reports in permissive mode. Implementations
// must not block the request path for long; delivery is best-effort.
type LeakNotifier interface {
	NotifyLeak(ctx context.Context, report LeakReport) error
}

// Manager opens verified sessions over a shared connection pool
type Manager struct {
	db       *sql.DB
	reg      *access.Registry
	logger   *observability.Logger
	metrics  *observability.Metrics
	strict   bool
	notifier LeakNotifier
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithStrict sets the leak policy: strict raises AccessError, permissive
// warns and still rolls back
func WithStrict(strict bool) ManagerOption {
	return func(m *Manager) { m.strict = strict }
}

// WithLeakNotifier installs a webhook notifier for permissive-mode leaks
func WithLeakNotifier(n LeakNotifier) ManagerOption {
	return func(m *Manager) { m.notifier = n }
}

// WithMetrics installs verification and commit metrics
func WithMetrics(metrics *observability.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = metrics }
}

// NewManager creates a session manager. Strict leak policy is the default.
func NewManager(db *sql.DB, reg *access.Registry, logger *observability.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		db:     db,
		reg:    reg,
		logger: logger,
		strict: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DB exposes the underlying pool for operations outside any session
func (m *Manager) DB() *sql.DB { return m.db }

// Registry returns the entity registry sessions verify against
func (m *Manager) Registry() *access.Registry { return m.reg }

// recordKey identifies a tracked row inside one session
type recordKey struct {
	entity string
	pk     string
}

func keyOf(r Record) recordKey {
	return recordKey{entity: r.EntityName(), pk: fmt.Sprint(r.PrimaryKey())}
}

// Session is one request's unit of work: an open transaction, an identity
// map of rows read, and change buckets of rows created, updated, and
// deleted. It is not safe for concurrent use; each request owns exactly one.
type Session struct {
	mgr       *Manager
	requestID string
	tx        *sql.Tx
	principal access.Principal

	created []Record
	seen    map[recordKey]Record
	updated map[recordKey]Record
	deleted map[recordKey]Record

	closed bool
}

// Begin opens a verified session for a principal. The request scope
// identifier is taken from the context when present.
func (m *Manager) Begin(ctx context.Context, principal access.Principal) (*Session, error) {
	if principal == nil {
		return nil, fmt.Errorf("verified session requires a principal")
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Session{
		mgr:       m,
		requestID: observability.GetRequestID(ctx),
		tx:        tx,
		principal: principal,
		seen:      make(map[recordKey]Record),
		updated:   make(map[recordKey]Record),
		deleted:   make(map[recordKey]Record),
	}, nil
}

// Tx exposes the session's transaction for queries. Rows loaded through it
// must be registered with Read so commit-time verification covers them.
func (s *Session) Tx() *sql.Tx { return s.tx }

// Principal returns the principal the session verifies against
func (s *Session) Principal() access.Principal { return s.principal }

// Create stages a new row for insertion. Its create-access is verified
// after flush, once the generated primary key exists.
func (s *Session) Create(r Record) {
	s.created = append(s.created, r)
}

// Read registers a loaded row in the identity map. Rows that are neither
// updated nor deleted by commit time are verified for read access.
func (s *Session) Read(r Record) {
	s.seen[keyOf(r)] = r
}

// Update stages a loaded row for update
func (s *Session) Update(r Record) {
	k := keyOf(r)
	s.seen[k] = r
	s.updated[k] = r
}

// Delete stages a loaded row for deletion. A row staged for both update
// and delete is deleted.
func (s *Session) Delete(r Record) {
	k := keyOf(r)
	s.seen[k] = r
	delete(s.updated, k)
	s.deleted[k] = r
}

// buckets partitions tracked rows for verification. Reads are the identity
// map minus rows that were mutated.
func (s *Session) buckets() (read, update, del []Record) {
	for k, r := range s.seen {
		if _, ok := s.updated[k]; ok {
			continue
		}
		if _, ok := s.deleted[k]; ok {
			continue
		}
		read = append(read, r)
	}
	for _, r := range s.updated {
		update = append(update, r)
	}
	for _, r := range s.deleted {
		del = append(del, r)
	}
	// Map order is random; sort for deterministic verification queries
	for _, bucket := range [][]Record{read, update, del} {
		sort.Slice(bucket, func(i, j int) bool {
			a, b := bucket[i], bucket[j]
			if a.EntityName() != b.EntityName() {
				return a.EntityName() < b.EntityName()
			}
			return fmt.Sprint(a.PrimaryKey()) < fmt.Sprint(b.PrimaryKey())
		})
	}
	return read, update, del
}

// Commit runs the verification protocol and commits the transaction.
//
// Deletes are verified before flush because deleted rows lose the
// relationships their policies join through. Creates are verified after
// flush because their primary keys are assigned there.
func (s *Session) Commit(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}

	err := s.commit(ctx)
	if s.mgr.metrics != nil {
		result := "committed"
		switch {
		case IsAccessError(err):
			result = "denied"
		case err != nil:
			result = "error"
		}
		s.mgr.metrics.SessionCommitsTotal.WithLabelValues(result).Inc()
	}
	return err
}

func (s *Session) commit(ctx context.Context) error {
	read, update, del := s.buckets()

	var violations []Violation
	for _, bucket := range []struct {
		mode    access.Mode
		records []Record
	}{
		{access.ModeRead, read},
		{access.ModeUpdate, update},
		{access.ModeDelete, del},
	} {
		found, err := s.verifyBucket(ctx, bucket.mode, bucket.records)
		if err != nil {
			return s.fail(fmt.Errorf("failed to verify %s access: %w", bucket.mode, err))
		}
		violations = append(violations, found...)
	}
	if len(violations) > 0 {
		return s.deny(ctx, violations)
	}

	if err := s.flush(ctx); err != nil {
		return s.fail(err)
	}

	found, err := s.verifyBucket(ctx, access.ModeCreate, s.created)
	if err != nil {
		return s.fail(fmt.Errorf("failed to verify create access: %w", err))
	}
	if len(found) > 0 {
		return s.deny(ctx, found)
	}

	if err := s.tx.Commit(); err != nil {
		s.closed = true
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.closed = true
	return nil
}

// flush issues the SQL for every staged mutation without committing.
// Updates and deletes go first; inserts run last and populate generated
// primary keys so create verification can join against them.
func (s *Session) flush(ctx context.Context) error {
	_, update, del := s.buckets()
	for _, r := range update {
		if err := r.Update(ctx, s.tx); err != nil {
			return fmt.Errorf("failed to update %s %v: %w", r.EntityName(), r.PrimaryKey(), err)
		}
	}
	for _, r := range del {
		if err := r.Delete(ctx, s.tx); err != nil {
			return fmt.Errorf("failed to delete %s %v: %w", r.EntityName(), r.PrimaryKey(), err)
		}
	}
	for _, r := range s.created {
		if err := r.Insert(ctx, s.tx); err != nil {
			return fmt.Errorf("failed to insert %s: %w", r.EntityName(), err)
		}
	}
	return nil
}

// deny applies the leak policy. The transaction rolls back either way.
func (s *Session) deny(ctx context.Context, violations []Violation) error {
	s.rollback()

	if s.mgr.metrics != nil {
		for _, v := range violations {
			s.mgr.metrics.AccessLeaksTotal.WithLabelValues(string(v.Mode)).Inc()
		}
	}

	first := violations[0]
	if s.mgr.strict {
		return &AccessError{
			PrincipalKind:  s.principal.Kind(),
			PrincipalIdent: s.principal.Ident(),
			Mode:           first.Mode,
			Entity:         first.Entity,
			PrimaryKey:     first.PrimaryKeys[0],
		}
	}

	report := LeakReport{
		RequestID:  s.requestID,
		Principal:  fmt.Sprintf("%s %s", s.principal.Kind(), s.principal.Ident()),
		Violations: violations,
		Stack:      string(debug.Stack()),
	}
	s.mgr.logger.WithFields(map[string]interface{}{
		"request_id": s.requestID,
		"principal":  report.Principal,
		"entity":     first.Entity,
		"mode":       string(first.Mode),
		"rows":       first.PrimaryKeys,
	}).Warn("access leak detected; transaction rolled back")

	if s.mgr.notifier != nil {
		if err := s.mgr.notifier.NotifyLeak(ctx, report); err != nil {
			s.mgr.logger.WithError(err).Error("failed to deliver leak report")
		}
	}
	return ErrLeakDetected
}

func (s *Session) fail(err error) error {
	s.rollback()
	return err
}

func (s *Session) rollback() {
	if s.closed {
		return
	}
	if err := s.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		s.mgr.logger.WithError(err).Error("failed to roll back session transaction")
	}
	s.closed = true
}

// Rollback aborts the session without verification
func (s *Session) Rollback() {
	s.rollback()
}

// Close rolls back the session if it is still open. Safe to defer
// alongside an explicit Commit.
func (s *Session) Close() {
	s.rollback()
}
