package perception

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/occupancy.report/internal/capture"
	"github.com/banshee-data/occupancy.report/internal/httputil"
	"github.com/banshee-data/occupancy.report/internal/occupancy"
)

func TestBBox_CenterY(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 200.0, BBox{Top: 180, Bottom: 220}.CenterY())
}

func TestConfirmed(t *testing.T) {
	t.Parallel()
	in := []TrackedEntity{
		{ID: "1", Confirmed: true, Confidence: 0.9},
		{ID: "2", Confirmed: false, Confidence: 0.9},
		{ID: "3", Confirmed: true, Confidence: 0.2},
		{ID: "4", Confirmed: true},
	}
	var ids []occupancy.TrackID
	for _, e := range Confirmed(in) {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []occupancy.TrackID{"1", "3", "4"}, ids, "low confidence on a confirmed track is kept")
	assert.Len(t, in, 4, "input must not be modified")
}

func TestObservations_Rescales(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	entities := []TrackedEntity{{ID: "7", Box: BBox{Top: 400, Bottom: 600}}}

	obs := Observations(entities, at, 960, 480)
	require.Len(t, obs, 1)
	assert.Equal(t, occupancy.Observation{TrackID: "7", CenterY: 250, Time: at}, obs[0])

	obs = Observations(entities, at, 0, 480)
	assert.Equal(t, 500.0, obs[0].CenterY)
}

func TestReplay_Process(t *testing.T) {
	t.Parallel()
	frame := capture.Frame{Labels: []capture.Label{{ID: "7", BBox: [4]float64{1, 2, 3, 4}, Confirmed: true}}}
	got, err := Replay{}.Process(context.Background(), frame)
	require.NoError(t, err)
	assert.Equal(t, []TrackedEntity{{ID: "7", Box: BBox{1, 2, 3, 4}, Confirmed: true}}, got)
}

func TestRemote_Process(t *testing.T) {
	t.Parallel()
	client := httputil.NewMockHTTPClient().AddResponse(http.StatusOK,
		`{"tracks":[{"id":"12","bbox":[10,100,50,300],"confirmed":true,"confidence":0.8}]}`)
	r := NewRemote("http://tracker:9000/track", time.Second, 0.4, client)

	got, err := r.Process(context.Background(), capture.Frame{Seq: 5, Data: []byte{0xff, 0xd8}, ContentType: "image/jpeg"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, occupancy.TrackID("12"), got[0].ID)
	assert.Equal(t, 200.0, got[0].Box.CenterY())

	req := client.Requests[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "image/jpeg", req.Header.Get("Content-Type"))
	assert.Equal(t, "5", req.Header.Get("X-Frame-Seq"))
	assert.Equal(t, "0.4", req.Header.Get("X-Confidence-Threshold"))
	assert.Equal(t, []byte{0xff, 0xd8}, client.Bodies[0])
}

func TestRemote_Errors(t *testing.T) {
	t.Parallel()
	client := httputil.NewMockHTTPClient().
		AddResponse(http.StatusInternalServerError, "model not loaded").
		AddErrorResponse(errors.New("connection reset")).
		AddResponse(http.StatusOK, "{")
	r := NewRemote("http://tracker:9000/track", 0, 0, client)
	frame := capture.Frame{Data: []byte{1}}

	_, err := r.Process(context.Background(), frame)
	assert.ErrorContains(t, err, "model not loaded")
	_, err = r.Process(context.Background(), frame)
	assert.ErrorContains(t, err, "connection reset")
	_, err = r.Process(context.Background(), frame)
	assert.ErrorContains(t, err, "decode")

	_, err = r.Process(context.Background(), capture.Frame{})
	assert.ErrorIs(t, err, ErrEmptyFrame)

	for _, req := range client.Requests {
		assert.Empty(t, req.Header.Get("X-Confidence-Threshold"), "zero threshold is not forwarded")
	}
}
