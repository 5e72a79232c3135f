package transform

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/conflictwatch/internal/connector"
	"github.com/t77yq/conflictwatch/internal/model"
)

// Normalizer maps provider-native records onto the unified
// ConflictEvent schema. Records missing a required field
// (event_date, country, event_type) are dropped and counted but never
// fail the run.
type Normalizer struct {
	logger *zap.Logger
}

// NewNormalizer creates a new normalizer
func NewNormalizer(logger *zap.Logger) *Normalizer {
	return &Normalizer{logger: logger.Named("normalizer")}
}

// Normalize converts raw records to conflict events, returning the
// events and the number of records dropped for failed validation
func (n *Normalizer) Normalize(records []connector.RawRecord) ([]model.ConflictEvent, int) {
	events := make([]model.ConflictEvent, 0, len(records))
	dropped := 0

	for _, rec := range records {
		var ev model.ConflictEvent
		var ok bool

		switch rec.Source {
		case model.DataSourceACLED:
			ev, ok = n.normalizeACLED(rec.Fields)
		case model.DataSourceGDELT:
			ev, ok = n.normalizeGDELT(rec.Fields)
		case model.DataSourceUCDP:
			ev, ok = n.normalizeUCDP(rec.Fields)
		default:
			n.logger.Warn("Unknown data source", zap.String("source", string(rec.Source)))
			ok = false
		}

		if !ok {
			dropped++
			continue
		}
		events = append(events, ev)
	}

	if dropped > 0 {
		n.logger.Info("Dropped invalid records",
			zap.Int("dropped", dropped),
			zap.Int("kept", len(events)))
	}

	return events, dropped
}

func (n *Normalizer) normalizeACLED(f map[string]string) (model.ConflictEvent, bool) {
	date, err := parseDate(f["event_date"])
	if err != nil {
		return model.ConflictEvent{}, false
	}

	country := CanonicalCountry(f["country"])
	eventType := strings.TrimSpace(f["event_type"])
	if country == "" || eventType == "" {
		return model.ConflictEvent{}, false
	}

	ev := model.ConflictEvent{
		EventID:      "acled_" + strings.TrimSpace(f["data_id"]),
		EventDate:    date,
		Country:      country,
		Region:       strings.TrimSpace(f["region"]),
		Latitude:     parseCoord(f["latitude"]),
		Longitude:    parseCoord(f["longitude"]),
		EventType:    eventType,
		SubEventType: strings.TrimSpace(f["sub_event_type"]),
		Actor1:       strings.TrimSpace(f["actor1"]),
		Actor2:       strings.TrimSpace(f["actor2"]),
		Fatalities:   parseCount(f["fatalities"]),
		DataSource:   model.DataSourceACLED,
		SourceURL:    strings.TrimSpace(f["source"]),
		RawText:      CleanText(f["notes"], model.MaxRawTextLength),
	}

	if strings.TrimSpace(f["data_id"]) == "" {
		ev.EventID = model.DeriveEventID(ev.DataSource, ev.EventDate, ev.Country,
			ev.EventType, ev.Actor1, ev.Actor2, ev.Latitude, ev.Longitude)
	}
	return ev, true
}

func (n *Normalizer) normalizeGDELT(f map[string]string) (model.ConflictEvent, bool) {
	date, err := parseDate(f["seendate"])
	if err != nil {
		return model.ConflictEvent{}, false
	}

	country := CanonicalCountry(f["sourcecountry"])
	title := CleanText(f["title"], model.MaxRawTextLength)
	if country == "" || title == "" {
		return model.ConflictEvent{}, false
	}

	tone, _ := strconv.ParseFloat(f["tone"], 64)
	if math.IsNaN(tone) || math.IsInf(tone, 0) {
		tone = 0
	}

	ev := model.ConflictEvent{
		EventDate:  date,
		Country:    country,
		EventType:  classifyHeadline(title),
		DataSource: model.DataSourceGDELT,
		SourceURL:  strings.TrimSpace(f["url"]),
		RawText:    title,
		Tone:       tone,
	}
	ev.EventID = model.DeriveEventID(ev.DataSource, ev.EventDate, ev.Country,
		ev.EventType, ev.SourceURL, "", 0, 0)
	return ev, true
}

func (n *Normalizer) normalizeUCDP(f map[string]string) (model.ConflictEvent, bool) {
	date, err := parseDate(f["date_start"])
	if err != nil {
		return model.ConflictEvent{}, false
	}

	country := CanonicalCountry(f["country"])
	eventType := ucdpViolenceType(f["type_of_violence"])
	if country == "" || eventType == "" {
		return model.ConflictEvent{}, false
	}

	ev := model.ConflictEvent{
		EventID:    "ucdp_" + strings.TrimSpace(f["id"]),
		EventDate:  date,
		Country:    country,
		Region:     strings.TrimSpace(f["region"]),
		Latitude:   parseCoord(f["latitude"]),
		Longitude:  parseCoord(f["longitude"]),
		EventType:  eventType,
		Actor1:     strings.TrimSpace(f["side_a"]),
		Actor2:     strings.TrimSpace(f["side_b"]),
		Fatalities: parseCount(f["best"]),
		DataSource: model.DataSourceUCDP,
		SourceURL:  strings.TrimSpace(f["source_article"]),
		RawText:    CleanText(f["where_description"], model.MaxRawTextLength),
	}

	if strings.TrimSpace(f["id"]) == "" {
		ev.EventID = model.DeriveEventID(ev.DataSource, ev.EventDate, ev.Country,
			ev.EventType, ev.Actor1, ev.Actor2, ev.Latitude, ev.Longitude)
	}
	return ev, true
}

// ucdpViolenceType maps UCDP's numeric type_of_violence codes
func ucdpViolenceType(code string) string {
	switch strings.TrimSpace(code) {
	case "1":
		return "State-based conflict"
	case "2":
		return "Non-state conflict"
	case "3":
		return "One-sided violence"
	default:
		return ""
	}
}

// classifyHeadline assigns a coarse event type from article text.
// Text-mined records carry no structured classification, so this is a
// keyword heuristic, deliberately conservative.
func classifyHeadline(title string) string {
	lower := strings.ToLower(title)
	switch {
	case containsAny(lower, "airstrike", "air strike", "shelling", "missile", "bombing", "drone strike"):
		return "Explosions/Remote violence"
	case containsAny(lower, "battle", "clash", "offensive", "fighting", "combat"):
		return "Battles"
	case containsAny(lower, "massacre", "killing", "attack on civilians", "abduction", "execution"):
		return "Violence against civilians"
	case containsAny(lower, "riot", "looting", "mob"):
		return "Riots"
	case containsAny(lower, "protest", "demonstration", "march", "strike action"):
		return "Protests"
	default:
		return "Unrest"
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

var (
	htmlTagPattern    = regexp.MustCompile(`<[^>]*>`)
	htmlEntityPattern = regexp.MustCompile(`&[a-zA-Z#0-9]+;`)
)

// CleanText strips HTML, collapses whitespace, and truncates to the
// given rune limit
func CleanText(s string, maxLen int) string {
	s = htmlTagPattern.ReplaceAllString(s, " ")
	s = htmlEntityPattern.ReplaceAllString(s, " ")
	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		s = strings.TrimSpace(string(runes[:maxLen]))
	}
	return s
}

// parseDate accepts the date layouts seen across providers and
// truncates to a UTC calendar date
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	layouts := []string{
		"2006-01-02",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"20060102T150405Z",
		"20060102150405",
	}

	var t time.Time
	var err error
	for _, layout := range layouts {
		t, err = time.Parse(layout, s)
		if err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, err
}

// parseCoord coerces a string coordinate, treating anything
// unparseable or non-finite as the unknown marker 0
func parseCoord(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// parseCount coerces a string count, clamping at zero
func parseCount(s string) int {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || v < 0 {
		return 0
	}
	return int(v)
}
