package report

import (
	"bytes"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/occupancy.report/internal/occupancy"
)

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func visit(id string, exit time.Time, dwell int64) occupancy.CompletedVisit {
	return occupancy.CompletedVisit{
		TrackID:      occupancy.TrackID(id),
		EntryTime:    exit.Add(-time.Duration(dwell) * time.Second),
		ExitTime:     exit,
		DwellSeconds: dwell,
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, DwellSummary{}, Summarize(nil))
	})

	t.Run("ten visits", func(t *testing.T) {
		var visits []occupancy.CompletedVisit
		for i := int64(10); i >= 1; i-- {
			visits = append(visits, visit("v", base, i*10))
		}
		s := Summarize(visits)
		assert.Equal(t, 10, s.Visits)
		assert.InDelta(t, 55.0, s.Mean, 1e-9)
		assert.InDelta(t, 50.0, s.Median, 1e-9)
		assert.InDelta(t, 90.0, s.P85, 1e-9)
		assert.InDelta(t, 100.0, s.Max, 1e-9)
	})

	t.Run("does not reorder input", func(t *testing.T) {
		visits := []occupancy.CompletedVisit{visit("a", base, 30), visit("b", base, 10)}
		Summarize(visits)
		assert.Equal(t, int64(30), visits[0].DwellSeconds)
	})
}

func TestHourlyTrend(t *testing.T) {
	t.Parallel()

	visits := []occupancy.CompletedVisit{
		visit("0", base.Add(-3*time.Hour), 500), // before the window
		visit("1", base.Add(5*time.Minute), 20),
		visit("2", base.Add(50*time.Minute), 40),
		visit("3", base.Add(2*time.Hour+time.Minute), 90),
	}
	trend := HourlyTrend(visits, base, base.Add(3*time.Hour+30*time.Minute))
	require.Len(t, trend, 4)

	assert.Equal(t, base, trend[0].Hour)
	assert.Equal(t, 2, trend[0].Visits)
	assert.InDelta(t, 30.0, trend[0].MeanDwell, 1e-9)

	assert.Equal(t, base.Add(time.Hour), trend[1].Hour)
	assert.Zero(t, trend[1].Visits)

	assert.Equal(t, 1, trend[2].Visits)
	assert.InDelta(t, 90.0, trend[2].MeanDwell, 1e-9)
	assert.Zero(t, trend[3].Visits)

	assert.Nil(t, HourlyTrend(visits, base, base.Add(-2*time.Hour)))
	assert.Len(t, HourlyTrend(nil, base, base.Add(7*time.Hour)), 8)
}

func TestHourlyTrendAcrossDSTFallBack(t *testing.T) {
	t.Parallel()
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 1 Nov 2026: 01:00-02:00 local happens twice, EDT then EST.
	start := time.Date(2026, 11, 1, 4, 0, 0, 0, time.UTC).In(ny)
	end := time.Date(2026, 11, 1, 8, 30, 0, 0, time.UTC)
	visits := []occupancy.CompletedVisit{
		visit("edt", time.Date(2026, 11, 1, 5, 10, 0, 0, time.UTC), 10),
		visit("est", time.Date(2026, 11, 1, 6, 20, 0, 0, time.UTC), 30),
	}

	trend := HourlyTrend(visits, start, end)
	require.Len(t, trend, 5)
	for i, b := range trend {
		assert.True(t, b.Hour.Equal(start.Add(time.Duration(i)*time.Hour)), "bucket %d starts at %s", i, b.Hour)
	}
	assert.Equal(t, 1, trend[1].Hour.Hour())
	assert.Equal(t, 1, trend[2].Hour.Hour())
	assert.Equal(t, 1, trend[1].Visits)
	assert.InDelta(t, 10.0, trend[1].MeanDwell, 1e-9)
	assert.Equal(t, 1, trend[2].Visits)
	assert.InDelta(t, 30.0, trend[2].MeanDwell, 1e-9)
	assert.Zero(t, trend[0].Visits+trend[3].Visits+trend[4].Visits)
}

func TestDwellHistogramPNG(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := DwellHistogramPNG(&buf, nil, 10)
	assert.True(t, errors.Is(err, ErrNoVisits))

	visits := []occupancy.CompletedVisit{
		visit("1", base, 5), visit("2", base, 12), visit("3", base, 40), visit("4", base, 41),
	}
	require.NoError(t, DwellHistogramPNG(&buf, visits, 4))
	require.Greater(t, buf.Len(), 8)
	assert.Equal(t, []byte("\x89PNG"), buf.Bytes()[:4])
}

func TestOccupancyPage(t *testing.T) {
	t.Parallel()

	visits := []occupancy.CompletedVisit{visit("1", base, 20), visit("2", base.Add(time.Hour), 40)}
	trend := HourlyTrend(visits, base, base.Add(time.Hour))

	var buf bytes.Buffer
	err := OccupancyPage(&buf, occupancy.NewCounters(4, 1), trend, Summarize(visits))
	require.NoError(t, err)

	html := buf.String()
	assert.Contains(t, html, "Live counters")
	assert.Contains(t, html, "Visits per hour")
	assert.Contains(t, html, "03-02 10:00")
}
