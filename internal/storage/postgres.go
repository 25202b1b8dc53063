package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/crowdwatch/internal/config"
	"github.com/your-org/crowdwatch/internal/models"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// ReportChannel is the LISTEN channel the sos_reports trigger notifies on.
const ReportChannel = "sos_reports"

//go:embed migrations/*.sql
var migrationFS embed.FS

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate applies the embedded schema files in name order. Every file is
// written to be re-runnable.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	names, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		sql, err := migrationFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		slog.Info("applied migration", "name", name)
	}
	return nil
}

// --- SOS reports ---

const reportColumns = `id, user_id, video_key, message, location, status,
	review_decision, review_notes, reviewed_at, notified_count, created_at`

func scanReport(row pgx.Row) (*models.SOSReport, error) {
	var (
		r          models.SOSReport
		status     string
		decision   *string
		notes      *string
		reviewedAt *time.Time
	)
	err := row.Scan(&r.ID, &r.ReporterRef, &r.VideoRef, &r.Message, &r.Location, &status,
		&decision, &notes, &reviewedAt, &r.NotifiedCount, &r.SubmittedAt)
	if err != nil {
		return nil, err
	}
	r.Status = models.ReportStatus(status)
	if decision != nil && reviewedAt != nil {
		r.Review = &models.Review{
			Decision:   models.ReportStatus(*decision),
			ReviewedAt: *reviewedAt,
		}
		if notes != nil {
			r.Review.Notes = *notes
		}
	}
	return &r, nil
}

func (s *PostgresStore) InsertReport(ctx context.Context, r *models.SOSReport) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.SubmittedAt.IsZero() {
		r.SubmittedAt = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = models.ReportPending
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sos_reports (id, user_id, video_key, message, location, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.ReporterRef, r.VideoRef, r.Message, r.Location, string(r.Status), r.SubmittedAt)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetReport(ctx context.Context, id uuid.UUID) (*models.SOSReport, error) {
	r, err := scanReport(s.pool.QueryRow(ctx,
		`SELECT `+reportColumns+` FROM sos_reports WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return r, nil
}

// maxListLimit caps paged listings. A limit of zero or less lists every
// matching row, which the pending snapshot relies on.
const maxListLimit = 500

func listReportsQuery(status models.ReportStatus, limit int) (string, []any) {
	query := `SELECT ` + reportColumns + ` FROM sos_reports`
	var args []any
	if status != "" {
		args = append(args, string(status))
		query += fmt.Sprintf(` WHERE status = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		if limit > maxListLimit {
			limit = maxListLimit
		}
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	return query, args
}

// ListReports returns reports newest first, optionally filtered by status.
func (s *PostgresStore) ListReports(ctx context.Context, status models.ReportStatus, limit int) ([]models.SOSReport, error) {
	query, args := listReportsQuery(status, limit)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []models.SOSReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

// ReviewReport moves a pending report to decision. The update only applies
// while the report is pending; applied is false when another review got
// there first, in which case the current row is returned unchanged.
func (s *PostgresStore) ReviewReport(ctx context.Context, id uuid.UUID, decision models.ReportStatus, notes string, at time.Time) (*models.SOSReport, bool, error) {
	r, err := scanReport(s.pool.QueryRow(ctx,
		`UPDATE sos_reports
		    SET status = $2, review_decision = $2, review_notes = $3, reviewed_at = $4
		  WHERE id = $1 AND status = 'pending'
		  RETURNING `+reportColumns,
		id, string(decision), notes, at))
	if err == nil {
		return r, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("review report: %w", err)
	}

	current, err := s.GetReport(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

func (s *PostgresStore) SetNotifiedCount(ctx context.Context, id uuid.UUID, n int) error {
	_, err := s.pool.Exec(ctx, `UPDATE sos_reports SET notified_count = $2 WHERE id = $1`, id, n)
	if err != nil {
		return fmt.Errorf("set notified count: %w", err)
	}
	return nil
}

// ListenReports blocks delivering the id of every inserted or updated report
// until ctx ends or the connection fails. ready runs once LISTEN is active.
// The caller re-subscribes.
func (s *PostgresStore) ListenReports(ctx context.Context, ready func(), onChange func(id uuid.UUID)) error {
	pooled, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	// A LISTENing session must not go back to the pool.
	conn := pooled.Hijack()
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+ReportChannel); err != nil {
		return fmt.Errorf("listen %s: %w", ReportChannel, err)
	}
	ready()

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		id, err := uuid.Parse(n.Payload)
		if err != nil {
			slog.Warn("ignoring malformed report notification", "payload", n.Payload)
			continue
		}
		onChange(id)
	}
}
