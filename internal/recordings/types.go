package recordings

import (
	"context"
	"time"

	"github.com/raaihank/snapvault/internal/privacy"
)

// Recording is one processed video
type Recording struct {
	ID            int64     `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"user_id"`
	OriginalName  string    `db:"original_name" json:"original_name"`
	GeneratedName string    `db:"generated_name" json:"generated_name"`
	ProcessedURL  string    `db:"processed_url" json:"processed_url"`
	Detections    int       `db:"detections" json:"detections"`
	Blurred       int       `db:"blurred" json:"blurred"`
	Duration      float64   `db:"duration" json:"duration"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Snap is an uploaded screenshot
type Snap struct {
	ID        int64     `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Filename  string    `db:"filename" json:"filename"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Event status values stored in security_events
const (
	StatusDetected = "detected"
	StatusBlurred  = "blurred"
)

// ManualItemType is the item_type of the event recorded for manual zones
const ManualItemType = "manual_zone"

// SecurityEvent is one row of security_events
type SecurityEvent struct {
	UserID      string `db:"user_id"`
	RecordingID int64  `db:"recording_id"`
	ItemType    string `db:"item_type"`
	Status      string `db:"status"`
	Count       int    `db:"count"`
}

// MixEntry is one slice of the dashboard privacy chart
type MixEntry struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
	Fill  string `json:"fill"`
}

// Stats are the dashboard totals of one user
type Stats struct {
	Snaps      int64      `json:"snaps"`
	Recordings int64      `json:"recordings"`
	Detections int64      `json:"detections"`
	Blurred    int64      `json:"blurred"`
	Duration   float64    `json:"duration"`
	PrivacyMix []MixEntry `json:"privacyMix"`
}

// Repository persists recordings, snaps and their security events
type Repository interface {
	Insert(ctx context.Context, rec Recording, findings []privacy.Finding) (int64, error)
	InsertSnap(ctx context.Context, snap Snap) (int64, error)
	ListByUser(ctx context.Context, userID string) ([]Recording, error)
	Stats(ctx context.Context, userID string) (Stats, error)
	All(ctx context.Context) ([]Recording, error)
	Close() error
}

// Config contains database configuration
type Config struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

type mixStyle struct {
	name string
	fill string
}

var mixStyles = map[string]mixStyle{
	string(privacy.CategoryAPIKey):     {"API Keys", "#06b6d4"},
	string(privacy.CategoryEmail):      {"Emails", "#10b981"},
	string(privacy.CategoryPhone):      {"Phone Numbers", "#f59e0b"},
	string(privacy.CategoryIPAddress):  {"IP Addresses", "#ef4444"},
	string(privacy.CategoryCreditCard): {"Credit Cards", "#4f46e5"},
}

// buildEvents expands a recording's findings into security_events rows
func buildEvents(rec Recording, recordingID int64, findings []privacy.Finding) []SecurityEvent {
	events := make([]SecurityEvent, 0, len(findings)+1)
	for _, f := range findings {
		if f.Count <= 0 {
			continue
		}
		events = append(events, SecurityEvent{
			UserID:      rec.UserID,
			RecordingID: recordingID,
			ItemType:    string(f.Category),
			Status:      StatusDetected,
			Count:       f.Count,
		})
	}
	if rec.Blurred > 0 {
		events = append(events, SecurityEvent{
			UserID:      rec.UserID,
			RecordingID: recordingID,
			ItemType:    ManualItemType,
			Status:      StatusBlurred,
			Count:       rec.Blurred,
		})
	}
	return events
}

// buildMix turns per-category totals into chart entries. Every known category
// is listed, in a stable order, even when its total is zero.
func buildMix(totals map[string]int64) []MixEntry {
	order := []privacy.Category{
		privacy.CategoryAPIKey,
		privacy.CategoryEmail,
		privacy.CategoryPhone,
		privacy.CategoryIPAddress,
		privacy.CategoryCreditCard,
	}
	mix := make([]MixEntry, 0, len(order))
	for _, c := range order {
		style := mixStyles[string(c)]
		mix = append(mix, MixEntry{Name: style.name, Value: totals[string(c)], Fill: style.fill})
	}
	return mix
}

var (
	_ Repository = (*Store)(nil)
	_ Repository = (*MemoryStore)(nil)
)
