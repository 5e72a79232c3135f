package model

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"
)

// DataSource identifies the provider a record was extracted from
type DataSource string

const (
	DataSourceACLED DataSource = "acled"
	DataSourceGDELT DataSource = "gdelt"
	DataSourceUCDP  DataSource = "ucdp"
)

// MaxRawTextLength bounds the descriptive text carried on an event
const MaxRawTextLength = 500

// ConflictEvent represents one observed conflict incident in the
// unified schema shared by all sources
type ConflictEvent struct {
	EventID      string     `json:"event_id"`
	EventDate    time.Time  `json:"event_date"`
	Country      string     `json:"country"`
	Region       string     `json:"region,omitempty"`
	Latitude     float64    `json:"latitude"`
	Longitude    float64    `json:"longitude"`
	EventType    string     `json:"event_type"`
	SubEventType string     `json:"sub_event_type,omitempty"`
	Actor1       string     `json:"actor1,omitempty"`
	Actor2       string     `json:"actor2,omitempty"`
	Fatalities   int        `json:"fatalities"`
	DataSource   DataSource `json:"data_source"`
	SourceURL    string     `json:"source_url,omitempty"`
	RawText      string     `json:"raw_text,omitempty"`

	// Tone is the provider's document tone metric. Only text-mined
	// sources populate it; curated sources leave it zero.
	Tone float64 `json:"tone,omitempty"`

	// Derived during reconciliation
	SeverityScore    float64 `json:"severity_score"`
	ConfidenceScore  float64 `json:"confidence_score"`
	DataQualityScore float64 `json:"data_quality_score"`
	IsCritical       bool    `json:"is_critical"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasCoordinates reports whether the event carries a usable location.
// (0,0) is the "unknown location" marker, not a real coordinate.
func (e *ConflictEvent) HasCoordinates() bool {
	return e.Latitude != 0 || e.Longitude != 0
}

// ValidCoordinates reports whether present coordinates are in range
func (e *ConflictEvent) ValidCoordinates() bool {
	if !e.HasCoordinates() {
		return true
	}
	return e.Latitude >= -90 && e.Latitude <= 90 &&
		e.Longitude >= -180 && e.Longitude <= 180
}

// Location renders a human-readable location for alerts
func (e *ConflictEvent) Location() string {
	if e.Region != "" {
		return fmt.Sprintf("%s, %s", e.Region, e.Country)
	}
	return e.Country
}

// DeriveEventID builds a source-qualified hash identity for records
// whose provider has no stable ID of its own
func DeriveEventID(source DataSource, date time.Time, country, eventType, actor1, actor2 string, lat, lon float64) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s|%.4f|%.4f",
		source,
		date.Format("2006-01-02"),
		strings.ToLower(country),
		strings.ToLower(eventType),
		strings.ToLower(actor1),
		strings.ToLower(actor2),
		lat, lon)
	return fmt.Sprintf("%s_%016x", source, h.Sum64())
}
