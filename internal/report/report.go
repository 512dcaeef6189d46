// Package report turns stored visits into summary statistics and charts.
package report

import (
	"errors"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/occupancy.report/internal/occupancy"
)

// ErrNoVisits is returned by renderers that need at least one visit.
var ErrNoVisits = errors.New("no visits to report")

// DwellSummary describes the dwell distribution of a set of visits.
type DwellSummary struct {
	Visits int     `json:"visits"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P85    float64 `json:"p85"`
	Max    float64 `json:"max"`
}

// Summarize computes dwell statistics. An empty input yields zeros.
func Summarize(visits []occupancy.CompletedVisit) DwellSummary {
	if len(visits) == 0 {
		return DwellSummary{}
	}
	dwell := dwellValues(visits)
	sort.Float64s(dwell)
	return DwellSummary{
		Visits: len(dwell),
		Mean:   stat.Mean(dwell, nil),
		Median: stat.Quantile(0.5, stat.Empirical, dwell, nil),
		P85:    stat.Quantile(0.85, stat.Empirical, dwell, nil),
		Max:    floats.Max(dwell),
	}
}

// HourBucket is one hour of completed visits, keyed by exit time.
type HourBucket struct {
	Hour      time.Time `json:"hour"`
	Visits    int       `json:"visits"`
	MeanDwell float64   `json:"mean_dwell"`
}

// HourlyTrend buckets visits by the hour they ended, covering every hour
// from start to end inclusive in start's location. Visits outside the
// window are ignored; empty hours have zero counts. Buckets are
// consecutive elapsed hours, so a repeated wall-clock hour at a DST
// change gets two buckets.
func HourlyTrend(visits []occupancy.CompletedVisit, start, end time.Time) []HourBucket {
	first, last := truncateHour(start), truncateHour(end.In(start.Location()))
	if last.Before(first) {
		return nil
	}

	n := int(last.Sub(first)/time.Hour) + 1
	dwell := make([][]float64, n)
	for _, v := range visits {
		if v.ExitTime.Before(first) {
			continue
		}
		i := int(v.ExitTime.Sub(first) / time.Hour)
		if i >= n {
			continue
		}
		dwell[i] = append(dwell[i], float64(v.DwellSeconds))
	}

	out := make([]HourBucket, n)
	for i := range out {
		out[i].Hour = first.Add(time.Duration(i) * time.Hour)
		if d := dwell[i]; len(d) > 0 {
			out[i].Visits = len(d)
			out[i].MeanDwell = stat.Mean(d, nil)
		}
	}
	return out
}

// truncateHour drops the minutes and seconds of t's wall clock without
// resolving the hour again, which would be ambiguous in a repeated DST
// hour.
func truncateHour(t time.Time) time.Time {
	return t.Add(-time.Duration(t.Minute())*time.Minute -
		time.Duration(t.Second())*time.Second -
		time.Duration(t.Nanosecond()))
}

func dwellValues(visits []occupancy.CompletedVisit) []float64 {
	out := make([]float64, len(visits))
	for i, v := range visits {
		out[i] = float64(v.DwellSeconds)
	}
	return out
}
