package recordings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/raaihank/snapvault/internal/logger"
	"github.com/raaihank/snapvault/internal/privacy"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS snaps (
	id BIGSERIAL PRIMARY KEY,
	user_id TEXT NOT NULL,
	filename TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS recordings (
	id BIGSERIAL PRIMARY KEY,
	user_id TEXT NOT NULL,
	original_name TEXT NOT NULL,
	generated_name TEXT NOT NULL,
	processed_url TEXT NOT NULL,
	detections INTEGER NOT NULL DEFAULT 0,
	blurred INTEGER NOT NULL DEFAULT 0,
	duration DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS recordings_user_created_idx ON recordings (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS security_events (
	id BIGSERIAL PRIMARY KEY,
	user_id TEXT NOT NULL,
	recording_id BIGINT REFERENCES recordings (id) ON DELETE CASCADE,
	item_type TEXT NOT NULL,
	status TEXT NOT NULL,
	count INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// Store keeps recordings metadata in PostgreSQL
type Store struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewStore connects to the database and ensures the schema exists
func NewStore(config Config, log *logger.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	store := newStore(db, log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	store.logger.Info("Recordings store initialized",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Int("max_idle_conns", config.MaxIdleConns))

	return store, nil
}

func newStore(db *sqlx.DB, log *logger.Logger) *Store {
	return &Store{db: db, logger: log.WithComponent("recordings")}
}

// EnsureSchema creates the tables when missing
func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Insert stores a recording and its security events in one transaction
func (s *Store) Insert(ctx context.Context, rec Recording, findings []privacy.Finding) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO recordings (user_id, original_name, generated_name, processed_url, detections, blurred, duration)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	var id int64
	err = tx.QueryRowxContext(ctx, query,
		rec.UserID,
		rec.OriginalName,
		rec.GeneratedName,
		rec.ProcessedURL,
		rec.Detections,
		rec.Blurred,
		rec.Duration,
	).Scan(&id)
	if err != nil {
		s.logger.Error("Failed to insert recording",
			zap.Error(err),
			zap.String("user_id", rec.UserID),
			zap.String("original_name", rec.OriginalName))
		return 0, fmt.Errorf("failed to insert recording: %w", err)
	}

	events := buildEvents(rec, id, findings)
	if len(events) > 0 {
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO security_events (user_id, recording_id, item_type, status, count)
			VALUES (:user_id, :recording_id, :item_type, :status, :count)`, events)
		if err != nil {
			return 0, fmt.Errorf("failed to insert security events: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit recording: %w", err)
	}

	s.logger.Debug("Recording inserted",
		zap.Int64("id", id),
		zap.Int("detections", rec.Detections),
		zap.Int("events", len(events)))

	return id, nil
}

// InsertSnap stores an uploaded screenshot
func (s *Store) InsertSnap(ctx context.Context, snap Snap) (int64, error) {
	var id int64
	err := s.db.QueryRowxContext(ctx,
		`INSERT INTO snaps (user_id, filename) VALUES ($1, $2) RETURNING id`,
		snap.UserID, snap.Filename,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert snap: %w", err)
	}
	return id, nil
}

// ListByUser returns a user's recordings, newest first
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Recording, error) {
	var list []Recording
	err := s.db.SelectContext(ctx, &list,
		`SELECT * FROM recordings WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}
	return list, nil
}

// All returns every recording in insertion order
func (s *Store) All(ctx context.Context) ([]Recording, error) {
	var list []Recording
	if err := s.db.SelectContext(ctx, &list, `SELECT * FROM recordings ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to read recordings: %w", err)
	}
	return list, nil
}

// Stats returns the dashboard totals of a user
func (s *Store) Stats(ctx context.Context, userID string) (Stats, error) {
	var stats Stats

	if err := s.db.GetContext(ctx, &stats.Snaps,
		`SELECT COUNT(*) FROM snaps WHERE user_id = $1`, userID); err != nil {
		return stats, fmt.Errorf("failed to count snaps: %w", err)
	}

	var totals struct {
		Recordings int64   `db:"recordings"`
		Detections int64   `db:"detections"`
		Blurred    int64   `db:"blurred"`
		Duration   float64 `db:"duration"`
	}
	err := s.db.GetContext(ctx, &totals, `
		SELECT
			COUNT(*) AS recordings,
			COALESCE(SUM(detections), 0) AS detections,
			COALESCE(SUM(blurred), 0) AS blurred,
			COALESCE(SUM(duration), 0) AS duration
		FROM recordings WHERE user_id = $1`, userID)
	if err != nil {
		return stats, fmt.Errorf("failed to sum recordings: %w", err)
	}
	stats.Recordings = totals.Recordings
	stats.Detections = totals.Detections
	stats.Blurred = totals.Blurred
	stats.Duration = totals.Duration

	var rows []struct {
		ItemType string `db:"item_type"`
		Total    int64  `db:"total"`
	}
	err = s.db.SelectContext(ctx, &rows, `
		SELECT item_type, COALESCE(SUM(count), 0) AS total
		FROM security_events
		WHERE user_id = $1 AND status = $2
		GROUP BY item_type`, userID, StatusDetected)
	if err != nil {
		return stats, fmt.Errorf("failed to aggregate security events: %w", err)
	}

	totalsByType := make(map[string]int64, len(rows))
	for _, r := range rows {
		totalsByType[r.ItemType] = r.Total
	}
	stats.PrivacyMix = buildMix(totalsByType)

	return stats, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// maskDatabaseURL hides the password of a postgres URL for logging
func maskDatabaseURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	creds := url[:at]
	scheme := strings.Index(creds, "://")
	colon := strings.LastIndex(creds, ":")
	if colon <= scheme+2 {
		return url
	}
	return creds[:colon+1] + "***" + url[at:]
}
