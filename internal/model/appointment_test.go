package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAppointmentOverlaps(t *testing.T) {
	base := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	appt := &Appointment{
		StartTime: base,
		EndTime:   base.Add(30 * time.Minute),
	}

	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		want  bool
	}{
		{"identical", base, base.Add(30 * time.Minute), true},
		{"contained", base.Add(10 * time.Minute), base.Add(20 * time.Minute), true},
		{"straddles start", base.Add(-15 * time.Minute), base.Add(15 * time.Minute), true},
		{"straddles end", base.Add(15 * time.Minute), base.Add(45 * time.Minute), true},
		{"ends at start", base.Add(-30 * time.Minute), base, false},
		{"starts at end", base.Add(30 * time.Minute), base.Add(time.Hour), false},
		{"well before", base.Add(-2 * time.Hour), base.Add(-time.Hour), false},
		{"well after", base.Add(2 * time.Hour), base.Add(3 * time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, appt.Overlaps(tt.start, tt.end))
		})
	}
}
