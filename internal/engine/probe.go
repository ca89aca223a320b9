package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/surge-downloader/ferry/internal/engine/types"
	"github.com/surge-downloader/ferry/internal/utils"
)

// ProbeResult contains what the server told us before the real request
type ProbeResult struct {
	FileSize      types.Size
	SupportsRange bool
	Filename      string
	ContentType   string
}

// ProbeServer sends GET with Range: bytes=0-511. A 206 answer means ranges
// work and the size comes from Content-Range; a 200 means they do not and
// the size, if any, comes from Content-Length. The returned bytes are also
// used to sniff a filename extension.
func ProbeServer(ctx context.Context, client *http.Client, rawurl string, runtime *types.RuntimeConfig) (*ProbeResult, error) {
	utils.Debug("Probing server: %s", rawurl)

	probeCtx, cancel := context.WithTimeout(ctx, runtime.GetProbeTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, rawurl, nil)
	if err != nil {
		return nil, types.NewProtocolError("probe", rawurl, fmt.Errorf("failed to create probe request: %w", err))
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", types.SniffSize-1))
	req.Header.Set("User-Agent", runtime.GetUserAgent())

	resp, err := client.Do(req)
	if err != nil {
		// Only the caller's cancellation counts as cancelled; our own probe
		// timeout is a network failure
		if ctx.Err() != nil {
			return nil, types.ErrCancelled
		}
		return nil, types.NewNetworkError("probe", rawurl, err)
	}
	defer func() {
		io.Copy(io.Discard, io.LimitReader(resp.Body, types.SniffSize))
		resp.Body.Close()
	}()

	utils.Debug("Probe response status: %d", resp.StatusCode)

	result := &ProbeResult{ContentType: resp.Header.Get("Content-Type")}

	switch resp.StatusCode {
	case http.StatusPartialContent:
		result.SupportsRange = true
		if total, ok := parseContentRangeTotal(resp.Header.Get("Content-Range")); ok {
			result.FileSize = types.KnownSize(total)
		}
	case http.StatusOK:
		if resp.ContentLength >= 0 {
			result.FileSize = types.KnownSize(uint64(resp.ContentLength))
		}
	case http.StatusRequestedRangeNotSatisfiable:
		// Zero-length resources can not satisfy bytes=0-511
		if total, ok := parseContentRangeTotal(resp.Header.Get("Content-Range")); ok && total == 0 {
			result.SupportsRange = true
			result.FileSize = types.KnownSize(0)
		} else {
			return nil, types.NewHTTPError("probe", rawurl, resp.StatusCode)
		}
	default:
		return nil, types.NewHTTPError("probe", rawurl, resp.StatusCode)
	}

	head := make([]byte, types.SniffSize)
	n, _ := io.ReadFull(resp.Body, head)
	result.Filename = utils.DetermineFilename(rawurl, resp.Header, head[:n])

	utils.Debug("Probe complete - filename: %s, size: %s, range: %v",
		result.Filename, result.FileSize, result.SupportsRange)

	return result, nil
}

// parseContentRangeTotal extracts TOTAL from "bytes a-b/TOTAL" or "bytes */TOTAL"
func parseContentRangeTotal(h string) (uint64, bool) {
	idx := strings.LastIndex(h, "/")
	if idx == -1 {
		return 0, false
	}
	sizeStr := strings.TrimSpace(h[idx+1:])
	if sizeStr == "*" {
		return 0, false
	}
	total, err := strconv.ParseUint(sizeStr, 10, 64)
	if err != nil {
		return 0, false
	}
	return total, true
}
