// Package perception is the boundary to the detector and tracker. It turns
// a frame into tracked entities and those into occupancy observations;
// the detection models themselves live outside this process.
package perception

import (
	"context"
	"time"

	"github.com/banshee-data/occupancy.report/internal/capture"
	"github.com/banshee-data/occupancy.report/internal/occupancy"
)

// BBox is an axis-aligned box in image pixels.
type BBox struct {
	Left, Top, Right, Bottom float64
}

// CenterY is the vertical midpoint of the box.
func (b BBox) CenterY() float64 {
	return (b.Top + b.Bottom) / 2
}

// TrackedEntity is one tracker output for one frame.
type TrackedEntity struct {
	ID         occupancy.TrackID
	Box        BBox
	Confirmed  bool
	Confidence float64
}

// Pipeline runs detection and tracking on a frame.
type Pipeline interface {
	Process(ctx context.Context, frame capture.Frame) ([]TrackedEntity, error)
}

// Confirmed keeps entities the tracker has confirmed. Detection
// confidence is applied by the detector before tracking, so a confirmed
// track is kept whatever confidence it reports for this frame.
func Confirmed(entities []TrackedEntity) []TrackedEntity {
	out := entities[:0:0]
	for _, e := range entities {
		if e.Confirmed {
			out = append(out, e)
		}
	}
	return out
}

// Observations converts entities into observations at time at. When the
// frame height differs from targetHeight the centres are rescaled so the
// counting line stays in configured coordinates.
func Observations(entities []TrackedEntity, at time.Time, frameHeight, targetHeight int) []occupancy.Observation {
	scale := 1.0
	if frameHeight > 0 && targetHeight > 0 && frameHeight != targetHeight {
		scale = float64(targetHeight) / float64(frameHeight)
	}
	obs := make([]occupancy.Observation, 0, len(entities))
	for _, e := range entities {
		obs = append(obs, occupancy.Observation{
			TrackID: e.ID,
			CenterY: e.Box.CenterY() * scale,
			Time:    at,
		})
	}
	return obs
}

func fromLabel(l capture.Label) TrackedEntity {
	return TrackedEntity{
		ID:         occupancy.TrackID(l.ID),
		Box:        BBox{Left: l.BBox[0], Top: l.BBox[1], Right: l.BBox[2], Bottom: l.BBox[3]},
		Confirmed:  l.Confirmed,
		Confidence: l.Confidence,
	}
}

// Replay returns the tracker output recorded with the frame. It is the
// pipeline used with fixture sources.
type Replay struct{}

// Process converts the frame's labels.
func (Replay) Process(_ context.Context, frame capture.Frame) ([]TrackedEntity, error) {
	out := make([]TrackedEntity, 0, len(frame.Labels))
	for _, l := range frame.Labels {
		out = append(out, fromLabel(l))
	}
	return out, nil
}
