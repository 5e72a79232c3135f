package detector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/conflictwatch/internal/model"
)

func detectorEvent(id string, fatalities int, severity float64, critical bool) model.ConflictEvent {
	return model.ConflictEvent{
		EventID:       id,
		EventDate:     time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Country:       "Sudan",
		Region:        "Eastern Africa",
		EventType:     "Battles",
		Fatalities:    fatalities,
		DataSource:    model.DataSourceACLED,
		SeverityScore: severity,
		IsCritical:    critical,
	}
}

func TestDetect_SelectsOnlyThresholdCrossings(t *testing.T) {
	d := NewDetector(zap.NewNop(), 50)

	events := []model.ConflictEvent{
		detectorEvent("quiet", 2, 0.15, false),
		detectorEvent("fatal", 60, 0.65, true),
		detectorEvent("severe", 0, 0.82, true),
	}

	alerts := d.Detect(events)
	require.Len(t, alerts, 2)
	require.Equal(t, "fatal", alerts[0].EventID)
	require.Equal(t, "severe", alerts[1].EventID)
}

func TestDetect_AlertTypeAndSeverityBuckets(t *testing.T) {
	d := NewDetector(zap.NewNop(), 50)

	tests := []struct {
		name       string
		fatalities int
		score      float64
		alertType  model.AlertType
		severity   model.AlertSeverity
	}{
		{"mass casualty", 150, 0.95, model.AlertTypeHighFatality, model.AlertSeverityCritical},
		{"above threshold", 60, 0.60, model.AlertTypeHighFatality, model.AlertSeverityHigh},
		{"at threshold", 50, 0.55, model.AlertTypeHighFatality, model.AlertSeverityHigh},
		{"severity only", 0, 0.75, model.AlertTypeHighSeverity, model.AlertSeverityMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := detectorEvent("e", tt.fatalities, tt.score, true)
			alerts := d.Detect([]model.ConflictEvent{ev})
			require.Len(t, alerts, 1)
			require.Equal(t, tt.alertType, alerts[0].AlertType)
			require.Equal(t, tt.severity, alerts[0].Severity)
			require.Equal(t, tt.fatalities, alerts[0].Fatalities)
		})
	}
}

func TestDetect_DescriptionFallback(t *testing.T) {
	d := NewDetector(zap.NewNop(), 50)

	withText := detectorEvent("e1", 80, 0.8, true)
	withText.RawText = "Heavy fighting around the airport"

	bare := detectorEvent("e2", 80, 0.8, true)

	alerts := d.Detect([]model.ConflictEvent{withText, bare})
	require.Len(t, alerts, 2)
	require.Equal(t, "Heavy fighting around the airport", alerts[0].Description)
	require.Equal(t, "Battles in Eastern Africa, Sudan on 2024-03-15", alerts[1].Description)
	require.Equal(t, "Eastern Africa, Sudan", alerts[1].Location)
}

func TestDetect_DoesNotMutateEvents(t *testing.T) {
	d := NewDetector(zap.NewNop(), 50)

	events := []model.ConflictEvent{detectorEvent("e1", 120, 0.9, true)}
	before := events[0]

	d.Detect(events)
	require.Equal(t, before, events[0])
}

func TestDetect_NoEvents(t *testing.T) {
	d := NewDetector(zap.NewNop(), 50)
	require.Empty(t, d.Detect(nil))
}
