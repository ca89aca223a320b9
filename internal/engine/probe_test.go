package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surge-downloader/ferry/internal/engine/types"
	"github.com/surge-downloader/ferry/internal/testutil"
)

func TestProbeServer_RangeSupported(t *testing.T) {
	server := testutil.NewMockServer(testutil.WithFileSize(5000), testutil.WithFilename("report.pdf"))
	defer server.Close()

	result, err := ProbeServer(context.Background(), http.DefaultClient, server.URL, nil)
	require.NoError(t, err)

	assert.True(t, result.SupportsRange)
	size, ok := result.FileSize.Get()
	require.True(t, ok)
	assert.Equal(t, uint64(5000), size)
	assert.Equal(t, "report.pdf", result.Filename)
	assert.Equal(t, []string{"bytes=0-511"}, server.RangeHeaders())
}

func TestProbeServer_NoRangeSupport(t *testing.T) {
	server := testutil.NewMockServer(testutil.WithFileSize(2000), testutil.WithRangeSupport(false))
	defer server.Close()

	result, err := ProbeServer(context.Background(), http.DefaultClient, server.URL+"/data.bin", nil)
	require.NoError(t, err)

	assert.False(t, result.SupportsRange)
	size, ok := result.FileSize.Get()
	require.True(t, ok)
	assert.Equal(t, uint64(2000), size)
	assert.Equal(t, "data.bin", result.Filename)
}

func TestProbeServer_UnknownSize(t *testing.T) {
	server := testutil.NewMockServer(testutil.WithRangeSupport(false), testutil.WithoutContentLength())
	defer server.Close()

	result, err := ProbeServer(context.Background(), http.DefaultClient, server.URL, nil)
	require.NoError(t, err)
	assert.False(t, result.FileSize.Known())
}

func TestProbeServer_HTTPError(t *testing.T) {
	server := testutil.NewMockServer(testutil.WithStatus(http.StatusForbidden))
	defer server.Close()

	_, err := ProbeServer(context.Background(), http.DefaultClient, server.URL, nil)
	require.Error(t, err)

	var te *types.TransferError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusForbidden, te.StatusCode)
	assert.True(t, types.IsProtocolError(err))
}

func TestProbeServer_EmptyResource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "bytes */0")
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
	}))
	defer server.Close()

	result, err := ProbeServer(context.Background(), http.DefaultClient, server.URL, nil)
	require.NoError(t, err)
	size, ok := result.FileSize.Get()
	assert.True(t, ok)
	assert.Zero(t, size)
}

func TestProbeServer_CancelledContext(t *testing.T) {
	server := testutil.NewMockServer()
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ProbeServer(ctx, http.DefaultClient, server.URL, nil)
	assert.True(t, types.IsCancelled(err))
}

func TestParseContentRangeTotal(t *testing.T) {
	tests := []struct {
		header string
		want   uint64
		ok     bool
	}{
		{"bytes 0-511/1000", 1000, true},
		{"bytes */0", 0, true},
		{"bytes 0-511/*", 0, false},
		{"garbage", 0, false},
		{"bytes 0-1/abc", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseContentRangeTotal(tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.want, got, tt.header)
	}
}
