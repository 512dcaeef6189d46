package perception

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/occupancy.report/internal/capture"
	"github.com/banshee-data/occupancy.report/internal/httputil"
)

// ErrEmptyFrame is returned when a frame carries no image data.
var ErrEmptyFrame = errors.New("perception: frame has no image data")

// Remote posts each frame to an external detect-and-track service and
// reads back its tracks. The service is expected to keep track identity
// across calls.
type Remote struct {
	URL     string
	Timeout time.Duration
	// MinConfidence is sent as X-Confidence-Threshold so the detector
	// discards weak detections before tracking. Zero sends nothing.
	MinConfidence float64
	client        httputil.HTTPClient
}

type remoteResponse struct {
	Tracks []capture.Label `json:"tracks"`
}

// NewRemote returns a client for the tracker at url.
func NewRemote(url string, timeout time.Duration, minConfidence float64, client httputil.HTTPClient) *Remote {
	if client == nil {
		client = httputil.NewStandardClient(nil)
	}
	return &Remote{URL: url, Timeout: timeout, MinConfidence: minConfidence, client: client}
}

// Process sends the frame and returns the tracker's entities.
func (r *Remote) Process(ctx context.Context, frame capture.Frame) ([]TrackedEntity, error) {
	if len(frame.Data) == 0 {
		return nil, ErrEmptyFrame
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(frame.Data))
	if err != nil {
		return nil, fmt.Errorf("build tracker request: %w", err)
	}
	ct := frame.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	req.Header.Set("Content-Type", ct)
	req.Header.Set("X-Frame-Seq", fmt.Sprint(frame.Seq))
	if r.MinConfidence > 0 {
		req.Header.Set("X-Confidence-Threshold", strconv.FormatFloat(r.MinConfidence, 'f', -1, 64))
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tracker request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tracker returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode tracker response: %w", err)
	}
	entities := make([]TrackedEntity, 0, len(out.Tracks))
	for _, l := range out.Tracks {
		entities = append(entities, fromLabel(l))
	}
	return entities, nil
}
