package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/occupancy.report/internal/httputil"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestSnapshotSource_OpenAndRead(t *testing.T) {
	t.Parallel()
	img := pngBytes(t, 64, 48)
	client := httputil.NewMockHTTPClient().
		AddBytesResponse(http.StatusOK, img, "image/png").
		AddBytesResponse(http.StatusOK, img, "image/png")

	src := NewSnapshotSource("http://cam.local/snapshot.png", 0, client, nil)
	require.NoError(t, src.Open(context.Background()))

	f, err := src.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 64, f.Width)
	assert.Equal(t, 48, f.Height)
	assert.Equal(t, "image/png", f.ContentType)
	assert.Equal(t, img, f.Data)
	assert.Equal(t, 2, client.RequestCount())
}

func TestSnapshotSource_OpenFailsWhenUnreachable(t *testing.T) {
	t.Parallel()
	client := httputil.NewMockHTTPClient().AddErrorResponse(errors.New("dial tcp: connection refused"))
	src := NewSnapshotSource("http://cam.local/snapshot.jpg", 0, client, nil)
	assert.Error(t, src.Open(context.Background()))
}

func TestSnapshotSource_TransientFailure(t *testing.T) {
	t.Parallel()
	client := httputil.NewMockHTTPClient().
		AddResponse(http.StatusServiceUnavailable, "busy").
		AddResponse(http.StatusOK, "not an image")

	src := NewSnapshotSource("http://cam.local/snapshot.jpg", 0, client, nil)
	_, err := src.Read(context.Background())
	assert.ErrorIs(t, err, ErrFrameUnavailable)
	_, err = src.Read(context.Background())
	assert.ErrorIs(t, err, ErrFrameUnavailable)
}
