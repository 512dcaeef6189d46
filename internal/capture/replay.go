package capture

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/banshee-data/occupancy.report/internal/timeutil"
)

// FixtureRecord is one line of a replay fixture: the tracker output for a
// single frame.
type FixtureRecord struct {
	Seq      uint64  `json:"seq"`
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
	Entities []Label `json:"entities"`
}

// WriteFixture writes records as JSON lines.
func WriteFixture(w io.Writer, records []FixtureRecord) error {
	enc := json.NewEncoder(w)
	for i, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode fixture record %d: %w", i, err)
		}
	}
	return nil
}

// ReadFixture parses JSON-lines fixture data. Blank lines are skipped.
func ReadFixture(r io.Reader) ([]FixtureRecord, error) {
	var records []FixtureRecord
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var rec FixtureRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			return nil, fmt.Errorf("fixture line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return records, nil
}

// ReplaySource plays a recorded fixture back as frames, one every
// Interval. With Loop set it starts again from the top when it runs out.
type ReplaySource struct {
	Path     string
	Interval time.Duration
	Loop     bool
	Width    int
	Height   int

	clock   timeutil.Clock
	records []FixtureRecord
	next    int
	round   uint64
}

// NewReplaySource returns a source reading the fixture at path on Open.
func NewReplaySource(path string, interval time.Duration, clock timeutil.Clock) *ReplaySource {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &ReplaySource{Path: path, Interval: interval, clock: clock}
}

// NewReplayRecords returns a source over records already in memory.
func NewReplayRecords(records []FixtureRecord, interval time.Duration, clock timeutil.Clock) *ReplaySource {
	s := NewReplaySource("", interval, clock)
	s.records = records
	return s
}

// Open loads the fixture file. A missing or malformed fixture fails here.
func (s *ReplaySource) Open(ctx context.Context) error {
	if s.Path == "" {
		if len(s.records) == 0 {
			return fmt.Errorf("replay: no fixture records")
		}
		return nil
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	defer f.Close()

	records, err := ReadFixture(f)
	if err != nil {
		return fmt.Errorf("replay %s: %w", s.Path, err)
	}
	if len(records) == 0 {
		return fmt.Errorf("replay %s: fixture is empty", s.Path)
	}
	s.records = records
	s.next = 0
	return nil
}

// Read waits one interval and returns the next recorded frame.
func (s *ReplaySource) Read(ctx context.Context) (Frame, error) {
	if s.next >= len(s.records) {
		if !s.Loop || len(s.records) == 0 {
			return Frame{}, io.EOF
		}
		s.next = 0
		s.round++
	}
	if s.Interval > 0 {
		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-s.clock.After(s.Interval):
		}
	}

	rec := s.records[s.next]
	s.next++

	f := Frame{
		Seq:      rec.Seq + s.round*uint64(len(s.records)),
		Captured: s.clock.Now(),
		Width:    rec.Width,
		Height:   rec.Height,
		Labels:   append([]Label(nil), rec.Entities...),
	}
	if f.Width == 0 {
		f.Width = s.Width
	}
	if f.Height == 0 {
		f.Height = s.Height
	}
	return f, nil
}

// Close releases nothing; it exists to satisfy Source.
func (s *ReplaySource) Close() error { return nil }
