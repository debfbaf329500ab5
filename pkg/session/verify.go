package session

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/lib/pq"

	"github.com/platinummonkey/baselayer/pkg/access"
)

// verifyBucket checks one access mode over a heterogeneous set of records.
// Records are grouped by entity; each group is checked with a single query
// that LEFT JOINs the candidate ids against the compiled accessible-id
// subquery. Candidates with no match are inaccessible.
func (s *Session) verifyBucket(ctx context.Context, mode access.Mode, records []Record) ([]Violation, error) {
	if len(records) == 0 {
		return nil, nil
	}

	byEntity := make(map[string][]Record)
	for _, r := range records {
		byEntity[r.EntityName()] = append(byEntity[r.EntityName()], r)
	}
	names := make([]string, 0, len(byEntity))
	for name := range byEntity {
		names = append(names, name)
	}
	sort.Strings(names)

	var violations []Violation
	for _, name := range names {
		inaccessible, err := s.inaccessibleIDs(ctx, mode, name, byEntity[name])
		if err != nil {
			return nil, err
		}
		if s.mgr.metrics != nil {
			result := "allowed"
			if len(inaccessible) > 0 {
				result = "denied"
			}
			s.mgr.metrics.VerificationChecksTotal.WithLabelValues(string(mode), result).Inc()
		}
		if len(inaccessible) > 0 {
			violations = append(violations, Violation{
				Entity:      name,
				Mode:        mode,
				PrimaryKeys: inaccessible,
			})
		}
	}
	return violations, nil
}

// inaccessibleIDs returns the primary keys in the group that the session's
// principal may not access in the given mode
func (s *Session) inaccessibleIDs(ctx context.Context, mode access.Mode, entityName string, records []Record) ([]interface{}, error) {
	e, ok := s.mgr.reg.Entity(entityName)
	if !ok {
		return nil, fmt.Errorf("record entity %q is not registered", entityName)
	}

	sub, err := access.AccessibleIDs(s.mgr.reg, e, s.principal, mode)
	if err != nil {
		return nil, err
	}

	candidates, castType, err := candidateArray(records)
	if err != nil {
		return nil, fmt.Errorf("entity %q: %w", entityName, err)
	}

	placeholder := "$" + strconv.Itoa(len(sub.Args)+1)
	stmt := fmt.Sprintf(
		"SELECT cand.id FROM unnest(%s::%s) AS cand(id) LEFT JOIN (%s) AS acc ON acc.id = cand.id WHERE acc.id IS NULL",
		placeholder, castType, sub.SQL)
	args := append(sub.Args, candidates)

	rows, err := s.tx.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run bulk verification for %s (%s): %w", entityName, mode, err)
	}
	defer rows.Close()

	var inaccessible []interface{}
	for rows.Next() {
		var id interface{}
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan bulk verification result: %w", err)
		}
		inaccessible = append(inaccessible, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read bulk verification results: %w", err)
	}
	return inaccessible, nil
}

// candidateArray collects the group's primary keys into a driver array and
// names the matching SQL array type
func candidateArray(records []Record) (interface{}, string, error) {
	for _, r := range records {
		if !r.HasPrimaryKey() {
			return nil, "", fmt.Errorf("record of %s has no primary key; verify after flush", r.EntityName())
		}
	}
	switch records[0].PrimaryKey().(type) {
	case int64:
		ids := make([]int64, 0, len(records))
		for _, r := range records {
			id, ok := r.PrimaryKey().(int64)
			if !ok {
				return nil, "", fmt.Errorf("mixed primary key types in one entity group")
			}
			ids = append(ids, id)
		}
		return pq.Array(ids), "bigint[]", nil
	case string:
		ids := make([]string, 0, len(records))
		for _, r := range records {
			id, ok := r.PrimaryKey().(string)
			if !ok {
				return nil, "", fmt.Errorf("mixed primary key types in one entity group")
			}
			ids = append(ids, id)
		}
		return pq.Array(ids), "text[]", nil
	default:
		return nil, "", fmt.Errorf("unsupported primary key type %T", records[0].PrimaryKey())
	}
}
