package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/amishk599/jobalert/internal/model"
)

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS job_alerts (
	id         TEXT PRIMARY KEY,
	frequency  TEXT NOT NULL,
	email      TEXT NOT NULL,
	active     INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS alert_companies (
	id       TEXT PRIMARY KEY,
	alert_id TEXT NOT NULL REFERENCES job_alerts(id),
	name     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS alert_keywords (
	id       TEXT PRIMARY KEY,
	alert_id TEXT NOT NULL REFERENCES job_alerts(id),
	word     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS jobs (
	id          TEXT PRIMARY KEY,
	alert_id    TEXT NOT NULL REFERENCES job_alerts(id),
	title       TEXT NOT NULL,
	company     TEXT NOT NULL,
	description TEXT,
	url         TEXT NOT NULL,
	location    TEXT,
	posted_at   TEXT,
	notified    INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL,
	UNIQUE (alert_id, url)
);
CREATE INDEX IF NOT EXISTS idx_alert_companies_alert ON alert_companies(alert_id);
CREATE INDEX IF NOT EXISTS idx_alert_keywords_alert ON alert_keywords(alert_id);
`

// SQLiteStore keeps alerts and postings in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures the
// schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// One connection serializes writers; concurrent checks would otherwise
	// trip over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	for _, stmt := range strings.Split(sqliteSchema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateAlert inserts an active-or-not alert with its companies and keywords.
func (s *SQLiteStore) CreateAlert(ctx context.Context, in model.AlertInput) (*model.JobAlert, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	id := uuid.NewString()
	now := time.Now().UTC()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO job_alerts (id, frequency, email, active, created_at) VALUES (?, ?, ?, ?, ?)",
			id, string(in.Frequency), in.Email, in.Active, formatTime(now),
		)
		if err != nil {
			return fmt.Errorf("inserting alert: %w", err)
		}
		return insertChildren(ctx, tx, id, in)
	})
	if err != nil {
		return nil, err
	}
	return s.GetAlert(ctx, id)
}

// UpdateAlert overwrites the alert's fields and replaces its companies and
// keywords wholesale.
func (s *SQLiteStore) UpdateAlert(ctx context.Context, id string, in model.AlertInput) (*model.JobAlert, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE job_alerts SET frequency = ?, email = ?, active = ? WHERE id = ?",
			string(in.Frequency), in.Email, in.Active, id,
		)
		if err != nil {
			return fmt.Errorf("updating alert %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return model.ErrAlertNotFound
		}
		for _, table := range []string{"alert_companies", "alert_keywords"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE alert_id = ?", id); err != nil {
				return fmt.Errorf("clearing %s for %s: %w", table, id, err)
			}
		}
		return insertChildren(ctx, tx, id, in)
	})
	if err != nil {
		return nil, err
	}
	return s.GetAlert(ctx, id)
}

func insertChildren(ctx context.Context, tx *sql.Tx, alertID string, in model.AlertInput) error {
	for _, name := range nonBlank(in.Companies) {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO alert_companies (id, alert_id, name) VALUES (?, ?, ?)",
			uuid.NewString(), alertID, name,
		); err != nil {
			return fmt.Errorf("inserting company %q: %w", name, err)
		}
	}
	for _, word := range nonBlank(in.Keywords) {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO alert_keywords (id, alert_id, word) VALUES (?, ?, ?)",
			uuid.NewString(), alertID, word,
		); err != nil {
			return fmt.Errorf("inserting keyword %q: %w", word, err)
		}
	}
	return nil
}

// SetAlertActive activates or deactivates an alert.
func (s *SQLiteStore) SetAlertActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, "UPDATE job_alerts SET active = ? WHERE id = ?", active, id)
	if err != nil {
		return fmt.Errorf("setting active=%v on alert %s: %w", active, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrAlertNotFound
	}
	return nil
}

// DeleteAlert removes an alert together with its companies, keywords and jobs.
func (s *SQLiteStore) DeleteAlert(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"jobs", "alert_companies", "alert_keywords"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE alert_id = ?", id); err != nil {
				return fmt.Errorf("deleting %s for %s: %w", table, id, err)
			}
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM job_alerts WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("deleting alert %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return model.ErrAlertNotFound
		}
		return nil
	})
}

// GetAlert loads one alert with its companies and keywords.
func (s *SQLiteStore) GetAlert(ctx context.Context, id string) (*model.JobAlert, error) {
	alerts, err := s.queryAlerts(ctx, "WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(alerts) == 0 {
		return nil, model.ErrAlertNotFound
	}
	return &alerts[0], nil
}

// ListActiveAlerts returns active alerts, optionally restricted to one frequency.
func (s *SQLiteStore) ListActiveAlerts(ctx context.Context, freq model.Frequency) ([]model.JobAlert, error) {
	if freq == "" {
		return s.queryAlerts(ctx, "WHERE active = 1")
	}
	return s.queryAlerts(ctx, "WHERE active = 1 AND frequency = ?", string(freq))
}

// ListAlerts returns every alert, newest first.
func (s *SQLiteStore) ListAlerts(ctx context.Context) ([]model.JobAlert, error) {
	return s.queryAlerts(ctx, "")
}

func (s *SQLiteStore) queryAlerts(ctx context.Context, where string, args ...any) ([]model.JobAlert, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, frequency, email, active, created_at FROM job_alerts "+where+" ORDER BY created_at DESC, rowid DESC",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	var alerts []model.JobAlert
	for rows.Next() {
		var a model.JobAlert
		var freq, created string
		if err := rows.Scan(&a.ID, &freq, &a.Email, &a.Active, &created); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning alert: %w", err)
		}
		a.Frequency = model.Frequency(freq)
		a.CreatedAt = parseTime(created)
		alerts = append(alerts, a)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("iterating alerts: %w", err)
	}

	// Children are loaded after the alert cursor is closed: the pool holds a
	// single connection.
	for i := range alerts {
		if err := s.loadChildren(ctx, &alerts[i]); err != nil {
			return nil, err
		}
	}
	return alerts, nil
}

func (s *SQLiteStore) loadChildren(ctx context.Context, a *model.JobAlert) error {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM alert_companies WHERE alert_id = ? ORDER BY rowid", a.ID)
	if err != nil {
		return fmt.Errorf("querying companies for %s: %w", a.ID, err)
	}
	for rows.Next() {
		c := model.Company{AlertID: a.ID}
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			rows.Close()
			return fmt.Errorf("scanning company: %w", err)
		}
		a.Companies = append(a.Companies, c)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, "SELECT id, word FROM alert_keywords WHERE alert_id = ? ORDER BY rowid", a.ID)
	if err != nil {
		return fmt.Errorf("querying keywords for %s: %w", a.ID, err)
	}
	defer rows.Close()
	for rows.Next() {
		k := model.Keyword{AlertID: a.ID}
		if err := rows.Scan(&k.ID, &k.Word); err != nil {
			return fmt.Errorf("scanning keyword: %w", err)
		}
		a.Keywords = append(a.Keywords, k)
	}
	return rows.Err()
}

// ListKnownJobURLs returns the URLs already recorded for the alert in one read.
func (s *SQLiteStore) ListKnownJobURLs(ctx context.Context, alertID string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT url FROM jobs WHERE alert_id = ?", alertID)
	if err != nil {
		return nil, fmt.Errorf("querying known urls for %s: %w", alertID, err)
	}
	defer rows.Close()

	known := make(map[string]struct{})
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scanning url: %w", err)
		}
		known[u] = struct{}{}
	}
	return known, rows.Err()
}

// InsertJobs records postings with notified=false. A URL already stored for
// the alert loses the race quietly (INSERT OR IGNORE) and is left out of the
// result.
func (s *SQLiteStore) InsertJobs(ctx context.Context, alertID string, postings []model.RawPosting) ([]model.JobPosting, error) {
	var saved []model.JobPosting
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		for _, p := range postings {
			job := newJobPosting(alertID, p, now)
			res, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO jobs
					(id, alert_id, title, company, description, url, location, posted_at, notified, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
				job.ID, alertID, job.Title, job.Company, nullString(job.Description), job.URL,
				nullString(job.Location), nullTime(job.PostedAt), formatTime(now),
			)
			if err != nil {
				return fmt.Errorf("inserting job %s: %w", p.URL, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
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

// ListUnnotifiedJobs returns the alert's postings still waiting for delivery.
func (s *SQLiteStore) ListUnnotifiedJobs(ctx context.Context, alertID string) ([]model.JobPosting, error) {
	return s.queryJobs(ctx, "WHERE alert_id = ? AND notified = 0", alertID)
}

// ListJobs returns every persisted posting of the alert, newest first.
func (s *SQLiteStore) ListJobs(ctx context.Context, alertID string) ([]model.JobPosting, error) {
	return s.queryJobs(ctx, "WHERE alert_id = ?", alertID)
}

func (s *SQLiteStore) queryJobs(ctx context.Context, where string, args ...any) ([]model.JobPosting, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, alert_id, title, company, description, url, location, posted_at, notified, created_at
		FROM jobs `+where+` ORDER BY created_at DESC, rowid DESC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.JobPosting
	for rows.Next() {
		var j model.JobPosting
		var desc, loc, posted sql.NullString
		var created string
		if err := rows.Scan(&j.ID, &j.AlertID, &j.Title, &j.Company, &desc, &j.URL, &loc, &posted, &j.Notified, &created); err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		j.Description = desc.String
		j.Location = loc.String
		if posted.Valid {
			t := parseTime(posted.String)
			j.PostedAt = &t
		}
		j.CreatedAt = parseTime(created)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// MarkNotified flags every listed posting as delivered in one statement.
func (s *SQLiteStore) MarkNotified(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.ExecContext(ctx, "UPDATE jobs SET notified = 1 WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return fmt.Errorf("marking %d jobs notified: %w", len(ids), err)
	}
	return nil
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func newJobPosting(alertID string, p model.RawPosting, now time.Time) model.JobPosting {
	return model.JobPosting{
		ID:          uuid.NewString(),
		AlertID:     alertID,
		Title:       p.Title,
		Company:     p.Company,
		Description: p.Description,
		URL:         p.URL,
		Location:    p.Location,
		PostedAt:    p.PostedAt,
		CreatedAt:   now,
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}
