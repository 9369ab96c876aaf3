package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amishk599/jobalert/internal/model"
)

// Ensure PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS job_alerts (
		id         UUID PRIMARY KEY,
		frequency  TEXT NOT NULL,
		email      TEXT NOT NULL,
		active     BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS alert_companies (
		id       UUID PRIMARY KEY,
		alert_id UUID NOT NULL REFERENCES job_alerts(id) ON DELETE CASCADE,
		name     TEXT NOT NULL,
		position INT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS alert_keywords (
		id       UUID PRIMARY KEY,
		alert_id UUID NOT NULL REFERENCES job_alerts(id) ON DELETE CASCADE,
		word     TEXT NOT NULL,
		position INT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id          UUID PRIMARY KEY,
		alert_id    UUID NOT NULL REFERENCES job_alerts(id) ON DELETE CASCADE,
		title       TEXT NOT NULL,
		company     TEXT NOT NULL,
		description TEXT,
		url         TEXT NOT NULL,
		location    TEXT,
		posted_at   TIMESTAMPTZ,
		notified    BOOLEAN NOT NULL DEFAULT FALSE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (alert_id, url)
	)`,
}

// PostgresStore keeps alerts and postings in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn, verifies the connection and ensures the schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateAlert(ctx context.Context, in model.AlertInput) (*model.JobAlert, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	id := uuid.NewString()
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			"INSERT INTO job_alerts (id, frequency, email, active) VALUES ($1, $2, $3, $4)",
			id, string(in.Frequency), in.Email, in.Active,
		)
		if err != nil {
			return fmt.Errorf("inserting alert: %w", err)
		}
		return pgInsertChildren(ctx, tx, id, in)
	})
	if err != nil {
		return nil, err
	}
	return s.GetAlert(ctx, id)
}

func (s *PostgresStore) UpdateAlert(ctx context.Context, id string, in model.AlertInput) (*model.JobAlert, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			"UPDATE job_alerts SET frequency = $1, email = $2, active = $3 WHERE id = $4",
			string(in.Frequency), in.Email, in.Active, id,
		)
		if err != nil {
			return fmt.Errorf("updating alert %s: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return model.ErrAlertNotFound
		}
		if _, err := tx.Exec(ctx, "DELETE FROM alert_companies WHERE alert_id = $1", id); err != nil {
			return fmt.Errorf("clearing companies for %s: %w", id, err)
		}
		if _, err := tx.Exec(ctx, "DELETE FROM alert_keywords WHERE alert_id = $1", id); err != nil {
			return fmt.Errorf("clearing keywords for %s: %w", id, err)
		}
		return pgInsertChildren(ctx, tx, id, in)
	})
	if err != nil {
		return nil, err
	}
	return s.GetAlert(ctx, id)
}

func pgInsertChildren(ctx context.Context, tx pgx.Tx, alertID string, in model.AlertInput) error {
	batch := &pgx.Batch{}
	for i, name := range nonBlank(in.Companies) {
		batch.Queue("INSERT INTO alert_companies (id, alert_id, name, position) VALUES ($1, $2, $3, $4)",
			uuid.NewString(), alertID, name, i)
	}
	for i, word := range nonBlank(in.Keywords) {
		batch.Queue("INSERT INTO alert_keywords (id, alert_id, word, position) VALUES ($1, $2, $3, $4)",
			uuid.NewString(), alertID, word, i)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting companies and keywords: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetAlertActive(ctx context.Context, id string, active bool) error {
	tag, err := s.pool.Exec(ctx, "UPDATE job_alerts SET active = $1 WHERE id = $2", active, id)
	if err != nil {
		return fmt.Errorf("setting active=%v on alert %s: %w", active, id, err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrAlertNotFound
	}
	return nil
}

// DeleteAlert removes the alert; companies, keywords and jobs cascade.
func (s *PostgresStore) DeleteAlert(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM job_alerts WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting alert %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrAlertNotFound
	}
	return nil
}

func (s *PostgresStore) GetAlert(ctx context.Context, id string) (*model.JobAlert, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.ErrAlertNotFound
	}
	alerts, err := s.queryAlerts(ctx, "WHERE id = $1", id)
	if err != nil {
		return nil, err
	}
	if len(alerts) == 0 {
		return nil, model.ErrAlertNotFound
	}
	return &alerts[0], nil
}

func (s *PostgresStore) ListActiveAlerts(ctx context.Context, freq model.Frequency) ([]model.JobAlert, error) {
	if freq == "" {
		return s.queryAlerts(ctx, "WHERE active")
	}
	return s.queryAlerts(ctx, "WHERE active AND frequency = $1", string(freq))
}

func (s *PostgresStore) ListAlerts(ctx context.Context) ([]model.JobAlert, error) {
	return s.queryAlerts(ctx, "")
}

func (s *PostgresStore) queryAlerts(ctx context.Context, where string, args ...any) ([]model.JobAlert, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT id::text, frequency, email, active, created_at FROM job_alerts "+where+" ORDER BY created_at DESC",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	alerts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.JobAlert, error) {
		var a model.JobAlert
		var freq string
		err := row.Scan(&a.ID, &freq, &a.Email, &a.Active, &a.CreatedAt)
		a.Frequency = model.Frequency(freq)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning alerts: %w", err)
	}

	for i := range alerts {
		a := &alerts[i]
		rows, err := s.pool.Query(ctx,
			"SELECT id::text, name FROM alert_companies WHERE alert_id = $1 ORDER BY position", a.ID)
		if err != nil {
			return nil, fmt.Errorf("querying companies for %s: %w", a.ID, err)
		}
		a.Companies, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Company, error) {
			c := model.Company{AlertID: a.ID}
			err := row.Scan(&c.ID, &c.Name)
			return c, err
		})
		if err != nil {
			return nil, fmt.Errorf("scanning companies for %s: %w", a.ID, err)
		}

		rows, err = s.pool.Query(ctx,
			"SELECT id::text, word FROM alert_keywords WHERE alert_id = $1 ORDER BY position", a.ID)
		if err != nil {
			return nil, fmt.Errorf("querying keywords for %s: %w", a.ID, err)
		}
		a.Keywords, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Keyword, error) {
			k := model.Keyword{AlertID: a.ID}
			err := row.Scan(&k.ID, &k.Word)
			return k, err
		})
		if err != nil {
			return nil, fmt.Errorf("scanning keywords for %s: %w", a.ID, err)
		}
	}
	return alerts, nil
}

func (s *PostgresStore) ListKnownJobURLs(ctx context.Context, alertID string) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx, "SELECT url FROM jobs WHERE alert_id = $1", alertID)
	if err != nil {
		return nil, fmt.Errorf("querying known urls for %s: %w", alertID, err)
	}
	urls, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning urls for %s: %w", alertID, err)
	}
	known := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		known[u] = struct{}{}
	}
	return known, nil
}

// InsertJobs inserts with ON CONFLICT DO NOTHING so a concurrent writer that
// already stored the same URL wins without an error.
func (s *PostgresStore) InsertJobs(ctx context.Context, alertID string, postings []model.RawPosting) ([]model.JobPosting, error) {
	var saved []model.JobPosting
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		now := time.Now().UTC()
		for _, p := range postings {
			job := newJobPosting(alertID, p, now)
			tag, err := tx.Exec(ctx,
				`INSERT INTO jobs (id, alert_id, title, company, description, url, location, posted_at, created_at)
				VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''), $8, $9)
				ON CONFLICT (alert_id, url) DO NOTHING`,
				job.ID, alertID, job.Title, job.Company, job.Description, job.URL, job.Location, job.PostedAt, now,
			)
			if err != nil {
				return fmt.Errorf("inserting job %s: %w", p.URL, err)
			}
			if tag.RowsAffected() == 0 {
				continue
			}
			saved = append(saved, job)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *PostgresStore) ListUnnotifiedJobs(ctx context.Context, alertID string) ([]model.JobPosting, error) {
	return s.queryJobs(ctx, "WHERE alert_id = $1 AND NOT notified", alertID)
}

func (s *PostgresStore) ListJobs(ctx context.Context, alertID string) ([]model.JobPosting, error) {
	return s.queryJobs(ctx, "WHERE alert_id = $1", alertID)
}

func (s *PostgresStore) queryJobs(ctx context.Context, where string, args ...any) ([]model.JobPosting, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, alert_id::text, title, company, COALESCE(description, ''), url,
			COALESCE(location, ''), posted_at, notified, created_at
		FROM jobs `+where+` ORDER BY created_at DESC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying jobs: %w", err)
	}
	jobs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.JobPosting, error) {
		var j model.JobPosting
		err := row.Scan(&j.ID, &j.AlertID, &j.Title, &j.Company, &j.Description, &j.URL,
			&j.Location, &j.PostedAt, &j.Notified, &j.CreatedAt)
		return j, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning jobs: %w", err)
	}
	return jobs, nil
}

func (s *PostgresStore) MarkNotified(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, "UPDATE jobs SET notified = TRUE WHERE id = ANY($1::uuid[])", ids); err != nil {
		return fmt.Errorf("marking %d jobs notified: %w", len(ids), err)
	}
	return nil
}
