package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	"github.com/banshee-data/occupancy.report/internal/httputil"
	"github.com/banshee-data/occupancy.report/internal/timeutil"
)

// maxSnapshotBytes bounds a single snapshot download.
const maxSnapshotBytes = 16 << 20

// SnapshotSource polls an HTTP still-image endpoint, as exposed by most IP
// cameras, once per Interval.
type SnapshotSource struct {
	URL      string
	Interval time.Duration

	client httputil.HTTPClient
	clock  timeutil.Clock
	last   time.Time
}

// NewSnapshotSource returns a source polling url. A nil client uses
// http.DefaultClient.
func NewSnapshotSource(url string, interval time.Duration, client httputil.HTTPClient, clock timeutil.Clock) *SnapshotSource {
	if client == nil {
		client = httputil.NewStandardClient(nil)
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &SnapshotSource{URL: url, Interval: interval, client: client, clock: clock}
}

// Open fetches one snapshot to prove the camera is reachable.
func (s *SnapshotSource) Open(ctx context.Context) error {
	if _, err := s.grab(ctx); err != nil {
		return fmt.Errorf("snapshot source %s: %w", s.URL, err)
	}
	return nil
}

// Read waits out the remainder of the poll interval and fetches the next
// snapshot. Any HTTP or decode failure is reported as ErrFrameUnavailable.
func (s *SnapshotSource) Read(ctx context.Context) (Frame, error) {
	if wait := s.Interval - s.clock.Since(s.last); wait > 0 {
		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-s.clock.After(wait):
		}
	}
	f, err := s.grab(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Frame{}, ctx.Err()
		}
		return Frame{}, fmt.Errorf("%w: %v", ErrFrameUnavailable, err)
	}
	return f, nil
}

// Close releases nothing; the HTTP client is shared.
func (s *SnapshotSource) Close() error { return nil }

func (s *SnapshotSource) grab(ctx context.Context) (Frame, error) {
	s.last = s.clock.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return Frame{}, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return Frame{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Frame{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return Frame{}, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Frame{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return Frame{
		Captured:    s.last,
		Width:       cfg.Width,
		Height:      cfg.Height,
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
