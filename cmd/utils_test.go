package cmd

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surge-downloader/ferry/internal/config"
	"github.com/surge-downloader/ferry/internal/state"
)

func TestPortFileLifecycle(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	require.NoError(t, config.EnsureDirs())

	assert.Zero(t, readActivePort())
	_, err := requirePort()
	assert.ErrorIs(t, err, errNoServer)

	require.NoError(t, saveActivePort(4321))
	assert.Equal(t, 4321, readActivePort())

	removeActivePort()
	assert.Zero(t, readActivePort())

	require.NoError(t, os.WriteFile(portFilePath(), []byte("garbage"), 0644))
	assert.Zero(t, readActivePort())
}

func TestFindAvailablePort_SkipsOccupiedPorts(t *testing.T) {
	port, ln := findAvailablePort(43000)
	require.NotNil(t, ln)
	defer ln.Close()

	next, ln2 := findAvailablePort(port)
	require.NotNil(t, ln2)
	defer ln2.Close()
	assert.Greater(t, next, port)
	assert.Equal(t, next, ln2.Addr().(*net.TCPAddr).Port)
}

func TestReadURLsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.txt")
	content := "# list\nhttp://a.test/1\n\n  http://a.test/2  \n#http://skipped\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	urls, err := readURLsFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a.test/1", "http://a.test/2"}, urls)

	empty := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("# nothing\n"), 0644))
	_, err = readURLsFromFile(empty)
	assert.Error(t, err)

	_, err = readURLsFromFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestResolveDownloadID(t *testing.T) {
	setupStore(t)
	for _, id := range []string{"abcd1111", "abcd2222", "ef003333"} {
		require.NoError(t, state.SaveSession(&state.Session{ID: id, URL: "http://x.test/" + id, DestPath: "/tmp/" + id}))
	}

	got, err := resolveDownloadID("ef")
	require.NoError(t, err)
	assert.Equal(t, "ef003333", got)

	got, err = resolveDownloadID("abcd1111")
	require.NoError(t, err)
	assert.Equal(t, "abcd1111", got)

	_, err = resolveDownloadID("abcd")
	assert.ErrorContains(t, err, "ambiguous")

	got, err = resolveDownloadID("zz")
	require.NoError(t, err)
	assert.Equal(t, "zz", got, "unknown prefixes pass through")
}

func portOf(t *testing.T, ts *httptest.Server) int {
	t.Helper()
	_, p, err := net.SplitHostPort(strings.TrimPrefix(ts.URL, "http://"))
	require.NoError(t, err)
	port, err := strconv.Atoi(p)
	require.NoError(t, err)
	return port
}

func TestSendToServer(t *testing.T) {
	var got DownloadRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, actionResponse{Status: "downloading", ID: "id-1"})
	}))
	defer ts.Close()

	id, err := sendToServer("http://x.test/a", "/out", portOf(t, ts))
	require.NoError(t, err)
	assert.Equal(t, "id-1", id)
	assert.Equal(t, DownloadRequest{URL: "http://x.test/a", Path: "/out"}, got)
}

func TestSendToServer_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "URL is already downloading", http.StatusConflict)
	}))
	defer ts.Close()

	_, err := sendToServer("http://x.test/a", "", portOf(t, ts))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already downloading")
}

func TestPostAction(t *testing.T) {
	var path, id string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, id = r.URL.Path, r.URL.Query().Get("id")
		writeJSON(w, http.StatusOK, actionResponse{Status: "paused", ID: id})
	}))
	defer ts.Close()

	require.NoError(t, postAction(portOf(t, ts), "pause", "a b"))
	assert.Equal(t, "/pause", path)
	assert.Equal(t, "a b", id)
}

func TestPrintSessions(t *testing.T) {
	setupStore(t)

	var buf bytes.Buffer
	require.NoError(t, printSessions(&buf, false))
	assert.Contains(t, buf.String(), "No downloads found.")

	buf.Reset()
	require.NoError(t, printSessions(&buf, true))
	assert.Equal(t, "[]\n", buf.String())

	require.NoError(t, state.SaveSession(&state.Session{
		ID: "0123456789abcdef", URL: "http://x.test/a", DestPath: "/tmp/a", Filename: "a.iso",
		Status: state.StatusPaused, TotalSize: 4 << 20, ResumeOffset: 1 << 20,
	}))

	buf.Reset()
	require.NoError(t, printSessions(&buf, false))
	out := buf.String()
	assert.Contains(t, out, "01234567")
	assert.NotContains(t, out, "0123456789abcdef")
	assert.Contains(t, out, "a.iso")
	assert.Contains(t, out, "25.0%")
	assert.Contains(t, out, "4.0 MiB")

	buf.Reset()
	require.NoError(t, printSessions(&buf, true))
	var recs []state.Session
	require.NoError(t, json.Unmarshal(buf.Bytes(), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, uint64(1<<20), recs[0].ResumeOffset)
}

func TestSessionProgress(t *testing.T) {
	assert.Equal(t, "100.0%", sessionProgress(state.Session{Status: state.StatusCompleted}))
	assert.Equal(t, "-", sessionProgress(state.Session{TotalSize: -1}))
	assert.Equal(t, "1.0 KiB", sessionProgress(state.Session{TotalSize: -1, ResumeOffset: 1024}))
	assert.Equal(t, "?", sessionSize(-1))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "short", truncate("short", 10))
}
