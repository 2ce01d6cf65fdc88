// Package pgstore provides a PostgreSQL implementation of incident.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/beacon/internal/incident"
)

var tracer = otel.Tracer("github.com/linnemanlabs/beacon/internal/incident/pgstore")

//go:embed schema.sql
var schema string

// Store persists incidents in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on pool and returns a ready Store. The caller owns
// the pool and closes it.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, errors.New("pgstore: nil pool")
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const incidentColumns = `id, monitor_name, status, first_occurrence_ts, resolved_ts,
	last_notification_sent_ts, alerts`

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Apply runs fn inside a transaction holding a per-monitor advisory lock, so
// concurrent cycles for one monitor serialize across every process sharing
// the database.
func (s *Store) Apply(ctx context.Context, monitor string, fn incident.MutateFunc) (*incident.Incident, error) {
	ctx, span := startSpan(ctx, "pgstore.Apply", "UPSERT")
	defer span.End()
	span.SetAttributes(attribute.String("monitor", monitor))

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fail(span, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, monitor); err != nil {
		return nil, fail(span, fmt.Errorf("advisory lock: %w", err))
	}

	firing, err := scanIncident(tx.QueryRow(ctx,
		`SELECT `+incidentColumns+` FROM incidents
		 WHERE monitor_name = $1 AND status = 'firing'
		 FOR UPDATE`, monitor))
	if err != nil {
		return nil, fail(span, err)
	}

	next := fn(firing)
	if next == nil {
		span.SetAttributes(attribute.Bool("changed", false))
		return nil, nil
	}
	next = next.Clone()
	next.MonitorName = monitor

	if err := s.write(ctx, tx, next); err != nil {
		return nil, fail(span, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fail(span, fmt.Errorf("commit: %w", err))
	}
	span.SetAttributes(
		attribute.Bool("changed", true),
		attribute.Int64("incident.id", next.ID),
	)
	return next, nil
}

// write inserts next when its ID is 0 (assigning the ID) and updates it otherwise.
func (s *Store) write(ctx context.Context, tx pgx.Tx, next *incident.Incident) error {
	alerts := next.Alerts
	if alerts == nil {
		alerts = []incident.Record{}
	}
	alertsJSON, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("marshal alerts: %w", err)
	}

	if next.ID == 0 {
		err = tx.QueryRow(ctx,
			`INSERT INTO incidents (monitor_name, status, first_occurrence_ts, resolved_ts,
				last_notification_sent_ts, alerts)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING id`,
			next.MonitorName, string(next.Status), next.FirstOccurrenceTS, next.ResolvedTS,
			next.LastNotificationSentTS, string(alertsJSON),
		).Scan(&next.ID)
		if err != nil {
			return fmt.Errorf("insert incident: %w", err)
		}
		return nil
	}

	tag, err := tx.Exec(ctx,
		`UPDATE incidents SET
			status                    = $2,
			first_occurrence_ts       = $3,
			resolved_ts               = $4,
			last_notification_sent_ts = $5,
			alerts                    = $6
		 WHERE id = $1`,
		next.ID, string(next.Status), next.FirstOccurrenceTS, next.ResolvedTS,
		next.LastNotificationSentTS, string(alertsJSON),
	)
	if err != nil {
		return fmt.Errorf("update incident %d: %w", next.ID, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("update incident %d: not found", next.ID)
	}
	return nil
}

// List returns every incident ordered by ID.
func (s *Store) List(ctx context.Context) ([]incident.Incident, error) {
	ctx, span := startSpan(ctx, "pgstore.List", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx, `SELECT `+incidentColumns+` FROM incidents ORDER BY id`)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query incidents: %w", err))
	}
	defer rows.Close()

	var out []incident.Incident
	for rows.Next() {
		in, err := scanIncident(rows)
		if err != nil {
			return nil, fail(span, err)
		}
		out = append(out, *in)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, fmt.Errorf("iterate incidents: %w", err))
	}
	span.SetAttributes(attribute.Int("incidents", len(out)))
	return out, nil
}

// Get retrieves an incident by ID.
func (s *Store) Get(ctx context.Context, id int64) (*incident.Incident, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.Get", "SELECT")
	defer span.End()

	in, err := scanIncident(s.pool.QueryRow(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE id = $1`, id))
	if err != nil {
		return nil, false, fail(span, err)
	}
	if in == nil {
		return nil, false, nil
	}
	return in, true, nil
}

// scanIncident scans a single row into an Incident.
// Returns (nil, nil) when no row is found.
func scanIncident(row pgx.Row) (*incident.Incident, error) {
	var (
		in         incident.Incident
		status     string
		alertsJSON []byte
	)
	err := row.Scan(
		&in.ID, &in.MonitorName, &status, &in.FirstOccurrenceTS, &in.ResolvedTS,
		&in.LastNotificationSentTS, &alertsJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan: %w", err)
	}
	in.Status = incident.Status(status)

	if err := json.Unmarshal(alertsJSON, &in.Alerts); err != nil {
		return nil, fmt.Errorf("unmarshal alerts for incident %d: %w", in.ID, err)
	}
	return &in, nil
}
