// Command gen-fixture writes a synthetic replay fixture: people walking in
// across the counting line, lingering, and walking back out.
package main

import (
	"flag"
	"log"
	"math/rand"
	"os"
	"strconv"

	"github.com/banshee-data/occupancy.report/internal/capture"
)

type genOptions struct {
	Frames    int
	Walkers   int
	Spacing   int // frames between walker arrivals
	Travel    int // frames to cross the view one way
	DwellMin  int // frames spent inside
	DwellMax  int
	Tentative int // leading frames a new track stays unconfirmed
	Width     int
	Height    int
	Jitter    float64 // vertical noise, pixels
	BoxHeight float64
	Seed      int64
}

type walker struct {
	id    string
	start int
	dwell int
	x     float64
}

// generate lays out walkers and renders one record per frame.
func generate(o genOptions) []capture.FixtureRecord {
	rng := rand.New(rand.NewSource(o.Seed))
	walkers := make([]walker, o.Walkers)
	for i := range walkers {
		dwell := o.DwellMin
		if o.DwellMax > o.DwellMin {
			dwell += rng.Intn(o.DwellMax - o.DwellMin + 1)
		}
		walkers[i] = walker{
			id:    strconv.Itoa(i + 1),
			start: i * o.Spacing,
			dwell: dwell,
			x:     40 + rng.Float64()*float64(o.Width-120),
		}
	}

	top, bottom := o.BoxHeight/2+5, float64(o.Height)-o.BoxHeight/2-5
	records := make([]capture.FixtureRecord, o.Frames)
	for f := range records {
		rec := capture.FixtureRecord{Seq: uint64(f + 1), Width: o.Width, Height: o.Height}
		for _, w := range walkers {
			y, ok := w.position(f, o.Travel, top, bottom)
			if !ok {
				continue
			}
			if o.Jitter > 0 {
				y += (rng.Float64()*2 - 1) * o.Jitter
			}
			rec.Entities = append(rec.Entities, capture.Label{
				ID:         w.id,
				BBox:       [4]float64{w.x, y - o.BoxHeight/2, w.x + 60, y + o.BoxHeight/2},
				Confirmed:  f-w.start >= o.Tentative,
				Confidence: 0.6 + rng.Float64()*0.4,
			})
		}
		records[f] = rec
	}
	return records
}

// position returns the walker's vertical centre at frame f: moving down
// from top to bottom, holding, then moving back up.
func (w walker) position(f, travel int, top, bottom float64) (float64, bool) {
	t := f - w.start
	step := (bottom - top) / float64(travel)
	switch {
	case t < 0:
		return 0, false
	case t <= travel:
		return top + step*float64(t), true
	case t <= travel+w.dwell:
		return bottom, true
	case t <= 2*travel+w.dwell:
		return bottom - step*float64(t-travel-w.dwell), true
	}
	return 0, false
}

func main() {
	output := flag.String("o", "walk.jsonl", "output path")
	o := genOptions{}
	flag.IntVar(&o.Frames, "n", 900, "number of frames")
	flag.IntVar(&o.Walkers, "walkers", 12, "number of people")
	flag.IntVar(&o.Spacing, "spacing", 60, "frames between arrivals")
	flag.IntVar(&o.Travel, "travel", 30, "frames to cross the view")
	flag.IntVar(&o.DwellMin, "dwell-min", 60, "minimum frames inside")
	flag.IntVar(&o.DwellMax, "dwell-max", 300, "maximum frames inside")
	flag.IntVar(&o.Tentative, "tentative", 2, "frames before a track is confirmed")
	flag.IntVar(&o.Width, "width", 640, "frame width")
	flag.IntVar(&o.Height, "height", 480, "frame height")
	flag.Float64Var(&o.Jitter, "jitter", 3, "vertical noise in pixels")
	flag.Float64Var(&o.BoxHeight, "box", 120, "person box height in pixels")
	flag.Int64Var(&o.Seed, "seed", 1, "random seed")
	flag.Parse()

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("create %s: %v", *output, err)
	}
	defer f.Close()

	records := generate(o)
	if err := capture.WriteFixture(f, records); err != nil {
		log.Fatalf("write fixture: %v", err)
	}
	log.Printf("wrote %d frames with %d walkers to %s", len(records), o.Walkers, *output)
}
