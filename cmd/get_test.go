package cmd

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surge-downloader/ferry/internal/download"
	"github.com/surge-downloader/ferry/internal/engine/types"
	"github.com/surge-downloader/ferry/internal/state"
	"github.com/surge-downloader/ferry/internal/testutil"
)

func TestResolveDestination_NewFile(t *testing.T) {
	setupStore(t)
	src := testutil.NewMockServer(testutil.WithFilename("report.pdf"))
	defer src.Close()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.pdf"), []byte("old"), 0644))

	rec, err := resolveDestination(context.Background(), http.DefaultClient, src.URL, dir, "", &types.RuntimeConfig{})
	require.NoError(t, err)
	assert.Equal(t, "report(1).pdf", rec.Filename)
	assert.Equal(t, filepath.Join(dir, "report(1).pdf"), rec.DestPath)
	assert.Zero(t, rec.ResumeOffset)
	assert.Empty(t, rec.ID)
}

func TestResolveDestination_ResumesStoredSession(t *testing.T) {
	setupStore(t)
	dir := t.TempDir()
	dest := filepath.Join(dir, "data.bin")
	require.NoError(t, os.WriteFile(dest+types.IncompleteSuffix, make([]byte, 300), 0644))
	require.NoError(t, state.SaveSession(&state.Session{
		ID: "prev", URL: "http://x.test/data.bin", DestPath: dest, Filename: "data.bin",
		Status: state.StatusPaused, ResumeOffset: 300, TotalSize: 1000,
	}))

	rec, err := resolveDestination(context.Background(), http.DefaultClient, "http://x.test/data.bin", dir, "data.bin", &types.RuntimeConfig{})
	require.NoError(t, err)
	assert.Equal(t, "prev", rec.ID)
	assert.Equal(t, uint64(300), rec.ResumeOffset)

	// Without the partial file there is nothing to resume
	require.NoError(t, os.Remove(dest+types.IncompleteSuffix))
	rec, err = resolveDestination(context.Background(), http.DefaultClient, "http://x.test/data.bin", dir, "data.bin", &types.RuntimeConfig{})
	require.NoError(t, err)
	assert.Empty(t, rec.ID)
	assert.Zero(t, rec.ResumeOffset)
}

func TestForeground_PlainRunCompletes(t *testing.T) {
	setupStore(t)
	src := testutil.NewMockServer(testutil.WithFileSize(20000), testutil.WithFlushSize(2000))
	defer src.Close()

	runtime := &types.RuntimeConfig{ChunkSize: 1024}
	rec, err := resolveDestination(context.Background(), http.DefaultClient, src.URL, t.TempDir(), "out.bin", runtime)
	require.NoError(t, err)

	f := newForeground(http.DefaultClient, rec, runtime)
	require.NoError(t, runPlain(context.Background(), f, time.Hour))

	data, err := os.ReadFile(rec.DestPath)
	require.NoError(t, err)
	assert.Equal(t, src.Data(), data)

	stored, err := state.FindSession(src.URL, rec.DestPath)
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, stored.Status)
	assert.Equal(t, int64(20000), stored.TotalSize)
}

func TestForeground_StopKeepsResumeOffset(t *testing.T) {
	setupStore(t)
	release := make(chan struct{})
	src := testutil.NewMockServer(
		testutil.WithFileSize(8000),
		testutil.WithFlushSize(1000),
		testutil.WithGate(4000, release),
	)
	defer src.Close()
	defer close(release)

	runtime := &types.RuntimeConfig{ChunkSize: 500}
	rec, err := resolveDestination(context.Background(), http.DefaultClient, src.URL, t.TempDir(), "out.bin", runtime)
	require.NoError(t, err)

	f := newForeground(http.DefaultClient, rec, runtime)
	require.NoError(t, f.start())
	require.Eventually(t, func() bool {
		p, ok := f.ctrl.Observer().Current()
		return ok && p.Value == 4000
	}, 5*time.Second, 5*time.Millisecond)

	f.stop()
	assert.Equal(t, download.Paused, f.ctrl.State())
	require.NoError(t, f.summary())

	stored, err := state.FindSession(src.URL, rec.DestPath)
	require.NoError(t, err)
	assert.Equal(t, state.StatusPaused, stored.Status)
	assert.Equal(t, uint64(4000), stored.ResumeOffset)

	// A second run of the same command picks the session up again
	again, err := resolveDestination(context.Background(), http.DefaultClient, src.URL, filepath.Dir(rec.DestPath), "out.bin", runtime)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, again.ID)
	assert.Equal(t, uint64(4000), again.ResumeOffset)
}
