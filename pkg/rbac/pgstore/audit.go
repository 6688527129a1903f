package pgstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/phillgates2/panel-sub002/pkg/audit"
)

// AuditStorage persists audit events in rbac_audit_log.
type AuditStorage struct {
	pool *pgxpool.Pool
}

var _ audit.Storage = (*AuditStorage)(nil)

// NewAuditStorage constructs an AuditStorage using the provided pool.
func NewAuditStorage(pool *pgxpool.Pool) *AuditStorage {
	if pool == nil {
		panic("pgstore: pool cannot be nil")
	}
	return &AuditStorage{pool: pool}
}

// Audit returns audit storage sharing the store's pool.
func (s *Store) Audit() *AuditStorage {
	return NewAuditStorage(s.pool)
}

const auditColumns = `id, actor_id, action, resource, resource_id, subject, result, error, metadata, created_at`

// Store writes all events in one batch.
func (a *AuditStorage) Store(ctx context.Context, events ...audit.Event) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(`
			INSERT INTO rbac_audit_log (`+auditColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			e.ID, e.ActorID, e.Action, e.Resource, e.ResourceID, e.Subject,
			string(e.Result), e.Error, e.Metadata, e.CreatedAt,
		)
	}
	if err := a.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("store audit events: %w", err)
	}
	return nil
}

// Query returns matching events newest first.
func (a *AuditStorage) Query(ctx context.Context, c audit.Criteria) ([]audit.Event, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if c.ActorID != "" {
		add("actor_id = $%d", c.ActorID)
	}
	if c.Subject != "" {
		add("subject = $%d", c.Subject)
	}
	if c.Action != "" {
		add("action = $%d", c.Action)
	}
	if c.Resource != "" {
		add("resource = $%d", c.Resource)
	}
	if c.ResourceID != "" {
		add("resource_id = $%d", c.ResourceID)
	}
	if c.Result != "" {
		add("result = $%d", string(c.Result))
	}
	if !c.StartTime.IsZero() {
		add("created_at >= $%d", c.StartTime)
	}
	if !c.EndTime.IsZero() {
		add("created_at < $%d", c.EndTime)
	}

	var q strings.Builder
	q.WriteString("SELECT " + auditColumns + " FROM rbac_audit_log")
	if len(where) > 0 {
		q.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	q.WriteString(" ORDER BY created_at DESC, id")
	if c.Limit > 0 {
		args = append(args, c.Limit)
		fmt.Fprintf(&q, " LIMIT $%d", len(args))
	}
	if c.Offset > 0 {
		args = append(args, c.Offset)
		fmt.Fprintf(&q, " OFFSET $%d", len(args))
	}

	rows, err := a.pool.Query(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (audit.Event, error) {
		var (
			e      audit.Event
			result string
		)
		err := row.Scan(&e.ID, &e.ActorID, &e.Action, &e.Resource, &e.ResourceID, &e.Subject,
			&result, &e.Error, &e.Metadata, &e.CreatedAt)
		e.Result = audit.Result(result)
		return e, err
	})
}
