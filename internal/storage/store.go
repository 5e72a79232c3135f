package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/t77yq/conflictwatch/internal/model"
)

// CriticalEventRecord is an alert joined with its source event, as
// returned by the recent-alert read path
type CriticalEventRecord struct {
	Alert model.CriticalEvent `json:"alert"`
	Event model.ConflictEvent `json:"event"`
}

// Store persists reconciled events, critical alerts, and run records
type Store interface {
	// Load upserts reconciled events by event_id inside one
	// transaction. Re-running Load with the same events creates no
	// duplicates and leaves derived scores unchanged.
	Load(ctx context.Context, events []model.ConflictEvent) (int, error)

	// SaveAlerts upserts alerts by event_id. A notified flag that is
	// already true is never reset.
	SaveAlerts(ctx context.Context, alerts []model.CriticalEvent) error

	// MarkNotified flips an alert's notified flag, false to true only
	MarkNotified(ctx context.Context, eventID string) error

	// Stats aggregates events over the trailing window
	Stats(ctx context.Context, windowDays int) (*model.EventStats, error)

	// RecentCriticalEvents returns alerts joined to their events,
	// newest first, optionally filtered by severity
	RecentCriticalEvents(ctx context.Context, limit int, severity model.AlertSeverity) ([]CriticalEventRecord, error)

	// SaveRun persists a run record snapshot
	SaveRun(ctx context.Context, run *model.ETLRun) error

	// GetRun retrieves a persisted run record, nil when absent
	GetRun(ctx context.Context, runID string) (*model.ETLRun, error)

	// DeleteRunsBefore removes run records started before the cutoff
	DeleteRunsBefore(ctx context.Context, before time.Time) error

	// Close releases the underlying database
	Close() error
}

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath. Existing
// data is kept; the pipeline's writes are idempotent upserts.
func NewSQLiteStore(logger *zap.Logger, dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{
		logger: logger.Named("store"),
		db:     db,
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initialize creates the tables if they don't exist
func (s *SQLiteStore) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS conflict_events (
			event_id TEXT PRIMARY KEY,
			event_date DATE NOT NULL,
			country TEXT NOT NULL,
			region TEXT,
			latitude REAL NOT NULL DEFAULT 0,
			longitude REAL NOT NULL DEFAULT 0,
			event_type TEXT NOT NULL,
			sub_event_type TEXT,
			actor1 TEXT,
			actor2 TEXT,
			fatalities INTEGER NOT NULL DEFAULT 0 CHECK (fatalities >= 0),
			data_source TEXT NOT NULL,
			source_url TEXT,
			raw_text TEXT,
			tone REAL NOT NULL DEFAULT 0,
			severity_score REAL NOT NULL,
			confidence_score REAL NOT NULL,
			data_quality_score REAL NOT NULL,
			is_critical INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_events_date ON conflict_events(event_date);
		CREATE INDEX IF NOT EXISTS idx_events_country ON conflict_events(country);
		CREATE INDEX IF NOT EXISTS idx_events_source ON conflict_events(data_source);
		CREATE INDEX IF NOT EXISTS idx_events_critical ON conflict_events(is_critical);

		CREATE TABLE IF NOT EXISTS critical_alerts (
			event_id TEXT PRIMARY KEY REFERENCES conflict_events(event_id),
			alert_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			fatalities INTEGER NOT NULL DEFAULT 0,
			description TEXT,
			location TEXT,
			detected_at DATETIME NOT NULL,
			notified INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_alerts_detected ON critical_alerts(detected_at);
		CREATE INDEX IF NOT EXISTS idx_alerts_severity ON critical_alerts(severity);

		CREATE TABLE IF NOT EXISTS etl_runs (
			run_id TEXT PRIMARY KEY,
			config TEXT NOT NULL,
			status TEXT NOT NULL,
			extracted INTEGER NOT NULL DEFAULT 0,
			transformed INTEGER NOT NULL DEFAULT 0,
			loaded INTEGER NOT NULL DEFAULT 0,
			critical_count INTEGER NOT NULL DEFAULT 0,
			error_count INTEGER NOT NULL DEFAULT 0,
			errors TEXT,
			started_at DATETIME NOT NULL,
			completed_at DATETIME,
			error_message TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_runs_started ON etl_runs(started_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Load implements Store.Load
func (s *SQLiteStore) Load(ctx context.Context, events []model.ConflictEvent) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO conflict_events (
			event_id, event_date, country, region, latitude, longitude,
			event_type, sub_event_type, actor1, actor2, fatalities,
			data_source, source_url, raw_text, tone,
			severity_score, confidence_score, data_quality_score,
			is_critical, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET updated_at = excluded.updated_at`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i := range events {
		ev := &events[i]
		_, err := stmt.ExecContext(ctx,
			ev.EventID,
			ev.EventDate.Format("2006-01-02"),
			ev.Country,
			ev.Region,
			ev.Latitude,
			ev.Longitude,
			ev.EventType,
			ev.SubEventType,
			ev.Actor1,
			ev.Actor2,
			ev.Fatalities,
			string(ev.DataSource),
			ev.SourceURL,
			ev.RawText,
			ev.Tone,
			ev.SeverityScore,
			ev.ConfidenceScore,
			ev.DataQualityScore,
			ev.IsCritical,
			ev.CreatedAt,
			ev.UpdatedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert event %s: %w", ev.EventID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit load: %w", err)
	}

	s.logger.Info("Events loaded", zap.Int("count", len(events)))
	return len(events), nil
}

// SaveAlerts implements Store.SaveAlerts
func (s *SQLiteStore) SaveAlerts(ctx context.Context, alerts []model.CriticalEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO critical_alerts (
			event_id, alert_type, severity, fatalities,
			description, location, detected_at, notified
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET
			alert_type = excluded.alert_type,
			severity = excluded.severity,
			fatalities = excluded.fatalities,
			description = excluded.description,
			location = excluded.location,
			detected_at = excluded.detected_at,
			notified = critical_alerts.notified OR excluded.notified`)
	if err != nil {
		return fmt.Errorf("failed to prepare alert upsert: %w", err)
	}
	defer stmt.Close()

	for i := range alerts {
		a := &alerts[i]
		_, err := stmt.ExecContext(ctx,
			a.EventID,
			string(a.AlertType),
			string(a.Severity),
			a.Fatalities,
			a.Description,
			a.Location,
			a.DetectedAt,
			a.Notified,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert alert %s: %w", a.EventID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit alerts: %w", err)
	}

	s.logger.Info("Alerts saved", zap.Int("count", len(alerts)))
	return nil
}

// MarkNotified implements Store.MarkNotified
func (s *SQLiteStore) MarkNotified(ctx context.Context, eventID string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE critical_alerts SET notified = 1 WHERE event_id = ?", eventID)
	if err != nil {
		return fmt.Errorf("failed to mark alert notified: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("alert not found: %s", eventID)
	}
	return nil
}

// Stats implements Store.Stats
func (s *SQLiteStore) Stats(ctx context.Context, windowDays int) (*model.EventStats, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -windowDays).Format("2006-01-02")

	stats := &model.EventStats{
		WindowDays: windowDays,
		ByCountry:  make(map[string]int),
		BySeverity: make(map[model.AlertSeverity]int),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(fatalities), 0),
		       COALESCE(SUM(is_critical), 0)
		FROM conflict_events
		WHERE event_date >= ?`, cutoff).
		Scan(&stats.TotalEvents, &stats.TotalFatalities, &stats.CriticalEvents)
	if err != nil {
		return nil, fmt.Errorf("failed to query totals: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT country, COUNT(*)
		FROM conflict_events
		WHERE event_date >= ?
		GROUP BY country`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query country counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var country string
		var count int
		if err := rows.Scan(&country, &count); err != nil {
			return nil, fmt.Errorf("failed to scan country count: %w", err)
		}
		stats.ByCountry[country] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	sevRows, err := s.db.QueryContext(ctx, `
		SELECT
			CASE
				WHEN severity_score >= 0.9 THEN 'critical'
				WHEN severity_score >= 0.7 THEN 'high'
				WHEN severity_score >= 0.4 THEN 'medium'
				ELSE 'low'
			END AS bucket,
			COUNT(*)
		FROM conflict_events
		WHERE event_date >= ?
		GROUP BY bucket`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query severity counts: %w", err)
	}
	defer sevRows.Close()

	for sevRows.Next() {
		var bucket string
		var count int
		if err := sevRows.Scan(&bucket, &count); err != nil {
			return nil, fmt.Errorf("failed to scan severity count: %w", err)
		}
		stats.BySeverity[model.AlertSeverity(bucket)] = count
	}
	if err := sevRows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return stats, nil
}

// RecentCriticalEvents implements Store.RecentCriticalEvents
func (s *SQLiteStore) RecentCriticalEvents(ctx context.Context, limit int, severity model.AlertSeverity) ([]CriticalEventRecord, error) {
	query := `
		SELECT a.event_id, a.alert_type, a.severity, a.fatalities,
		       a.description, a.location, a.detected_at, a.notified,
		       e.event_date, e.country, e.region, e.latitude, e.longitude,
		       e.event_type, e.sub_event_type, e.actor1, e.actor2,
		       e.fatalities, e.data_source, e.source_url, e.raw_text, e.tone,
		       e.severity_score, e.confidence_score, e.data_quality_score,
		       e.is_critical, e.created_at, e.updated_at
		FROM critical_alerts a
		JOIN conflict_events e ON e.event_id = a.event_id`
	args := make([]interface{}, 0, 2)

	if severity != "" {
		query += " WHERE a.severity = ?"
		args = append(args, string(severity))
	}
	query += " ORDER BY a.detected_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query critical events: %w", err)
	}
	defer rows.Close()

	var records []CriticalEventRecord
	for rows.Next() {
		var rec CriticalEventRecord
		var dateStr string
		var alertType, sev, source string

		err := rows.Scan(
			&rec.Alert.EventID,
			&alertType,
			&sev,
			&rec.Alert.Fatalities,
			&rec.Alert.Description,
			&rec.Alert.Location,
			&rec.Alert.DetectedAt,
			&rec.Alert.Notified,
			&dateStr,
			&rec.Event.Country,
			&rec.Event.Region,
			&rec.Event.Latitude,
			&rec.Event.Longitude,
			&rec.Event.EventType,
			&rec.Event.SubEventType,
			&rec.Event.Actor1,
			&rec.Event.Actor2,
			&rec.Event.Fatalities,
			&source,
			&rec.Event.SourceURL,
			&rec.Event.RawText,
			&rec.Event.Tone,
			&rec.Event.SeverityScore,
			&rec.Event.ConfidenceScore,
			&rec.Event.DataQualityScore,
			&rec.Event.IsCritical,
			&rec.Event.CreatedAt,
			&rec.Event.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan critical event: %w", err)
		}

		rec.Alert.AlertType = model.AlertType(alertType)
		rec.Alert.Severity = model.AlertSeverity(sev)
		rec.Event.EventID = rec.Alert.EventID
		rec.Event.DataSource = model.DataSource(source)
		if date, err := time.Parse("2006-01-02", dateStr); err == nil {
			rec.Event.EventDate = date
		}

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return records, nil
}

// SaveRun implements Store.SaveRun
func (s *SQLiteStore) SaveRun(ctx context.Context, run *model.ETLRun) error {
	configJSON, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal run config: %w", err)
	}

	var errorsJSON []byte
	if len(run.Errors) > 0 {
		errorsJSON, err = json.Marshal(run.Errors)
		if err != nil {
			return fmt.Errorf("failed to marshal run errors: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO etl_runs (
			run_id, config, status, extracted, transformed, loaded,
			critical_count, error_count, errors, started_at,
			completed_at, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			status = excluded.status,
			extracted = excluded.extracted,
			transformed = excluded.transformed,
			loaded = excluded.loaded,
			critical_count = excluded.critical_count,
			error_count = excluded.error_count,
			errors = excluded.errors,
			completed_at = excluded.completed_at,
			error_message = excluded.error_message`,
		run.RunID,
		string(configJSON),
		string(run.Status),
		run.Counters.Extracted,
		run.Counters.Transformed,
		run.Counters.Loaded,
		run.Counters.CriticalCount,
		run.Counters.ErrorCount,
		sql.NullString{String: string(errorsJSON), Valid: len(errorsJSON) > 0},
		run.StartedAt,
		sql.NullTime{Time: derefTime(run.CompletedAt), Valid: run.CompletedAt != nil},
		sql.NullString{String: run.ErrorMessage, Valid: run.ErrorMessage != ""},
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRun implements Store.GetRun
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.ETLRun, error) {
	var run model.ETLRun
	var configJSON string
	var errorsJSON, errorMessage sql.NullString
	var completedAt sql.NullTime
	var status string

	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, config, status, extracted, transformed, loaded,
		       critical_count, error_count, errors, started_at,
		       completed_at, error_message
		FROM etl_runs WHERE run_id = ?`, runID).Scan(
		&run.RunID,
		&configJSON,
		&status,
		&run.Counters.Extracted,
		&run.Counters.Transformed,
		&run.Counters.Loaded,
		&run.Counters.CriticalCount,
		&run.Counters.ErrorCount,
		&errorsJSON,
		&run.StartedAt,
		&completedAt,
		&errorMessage,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.Status = model.RunStatus(status)
	if err := json.Unmarshal([]byte(configJSON), &run.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run config: %w", err)
	}
	if errorsJSON.Valid && errorsJSON.String != "" {
		if err := json.Unmarshal([]byte(errorsJSON.String), &run.Errors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run errors: %w", err)
		}
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	if errorMessage.Valid {
		run.ErrorMessage = errorMessage.String
	}

	return &run, nil
}

// DeleteRunsBefore implements Store.DeleteRunsBefore
func (s *SQLiteStore) DeleteRunsBefore(ctx context.Context, before time.Time) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM etl_runs WHERE started_at < ?", before)
	if err != nil {
		return fmt.Errorf("failed to delete runs: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	s.logger.Info("Deleted old run records",
		zap.Time("before", before),
		zap.Int64("deleted", affected))

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
