// Package single streams one resource over one connection, resuming from a
// byte offset with a range request.
package single

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/surge-downloader/ferry/internal/engine"
	"github.com/surge-downloader/ferry/internal/engine/progress"
	"github.com/surge-downloader/ferry/internal/engine/types"
	"github.com/surge-downloader/ferry/internal/utils"
)

// Phase labels reported through the progress sink
const (
	MsgConnecting  = "Connecting..."
	MsgDownloading = "Downloading..."
)

// Downloader performs one transfer attempt at a time. It holds no per-attempt
// state, so one value can serve many sessions.
type Downloader struct {
	client  *http.Client
	runtime *types.RuntimeConfig
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewDownloader creates a downloader. A nil client gets one with no overall
// timeout: cancellation is the only way an attempt is cut short.
func NewDownloader(client *http.Client, runtime *types.RuntimeConfig) *Downloader {
	if client == nil {
		client = &http.Client{}
	}
	d := &Downloader{
		client:  client,
		runtime: runtime,
		log:     utils.Logger("single"),
	}
	if limit := runtime.GetSpeedLimit(); limit > 0 {
		burst := runtime.GetChunkSize()
		if int64(burst) < limit {
			burst = int(limit)
		}
		d.limiter = rate.NewLimiter(rate.Limit(limit), burst)
	}
	return d
}

// Transfer fetches uri from resumeOffset onwards into dst, which the caller
// has already positioned at resumeOffset. Result.Bytes counts this attempt
// only. ctx is the cancellation scope: it is checked before every read.
func (d *Downloader) Transfer(ctx context.Context, uri string, dst io.Writer, sink progress.Sink, resumeOffset uint64) types.Result {
	log := d.log.With().Str("url", uri).Uint64("offset", resumeOffset).Logger()

	sink.ReportMessage(MsgConnecting)

	if ctx.Err() != nil {
		return types.Cancelled(0)
	}

	probe, err := engine.ProbeServer(ctx, d.client, uri, d.runtime)
	if err != nil {
		log.Debug().Err(err).Msg("probe failed")
		return types.Failure(0, err)
	}

	size, sizeKnown := probe.FileSize.Get()
	if resumeOffset > 0 {
		if !probe.SupportsRange {
			return types.Failure(0, types.NewProtocolError("resume", uri, types.ErrRangeNotSupported))
		}
		if sizeKnown && resumeOffset > size {
			return types.Failure(0, types.NewProtocolError("resume", uri,
				fmt.Errorf("%w: offset %d, size %d", types.ErrOffsetBeyondSize, resumeOffset, size)))
		}
	}

	// Nothing left to fetch; a range request would only earn a 416
	if sizeKnown && resumeOffset == size {
		sink.ReportAbsolute(resumeOffset, probe.FileSize, MsgDownloading)
		return types.Success(0)
	}

	resp, err := d.request(ctx, uri, resumeOffset, probe.FileSize)
	if err != nil {
		return types.Failure(0, err)
	}
	defer resp.Body.Close()

	target := probe.FileSize
	if !sizeKnown && resp.ContentLength >= 0 {
		target = types.KnownSize(resumeOffset + uint64(resp.ContentLength))
	}

	sink.ReportAbsolute(resumeOffset, target, MsgDownloading)

	written, err := d.stream(ctx, uri, resp.Body, dst, sink)
	if err != nil {
		log.Debug().Err(err).Uint64("written", written).Msg("transfer stopped")
		return types.Failure(written, err)
	}

	if total, ok := target.Get(); ok && resumeOffset+written < total {
		return types.Failure(written, types.NewProtocolError("read", uri,
			fmt.Errorf("%w: got %d of %d bytes", io.ErrUnexpectedEOF, resumeOffset+written, total)))
	}

	log.Debug().Uint64("written", written).Msg("transfer complete")
	return types.Success(written)
}

// request issues the body GET. A nonzero offset must be answered with 206.
func (d *Downloader) request(ctx context.Context, uri string, offset uint64, size types.Size) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, types.NewProtocolError("request", uri, err)
	}
	req.Header.Set("User-Agent", d.runtime.GetUserAgent())

	if offset > 0 {
		if total, ok := size.Get(); ok {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, total-1))
		} else {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
		}
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, types.ClassifyError("request", uri, err)
	}

	switch {
	case offset > 0 && resp.StatusCode == http.StatusOK:
		// The whole body again: appending it would corrupt the file
		resp.Body.Close()
		return nil, types.NewProtocolError("request", uri, types.ErrRangeNotSupported)
	case offset > 0 && resp.StatusCode != http.StatusPartialContent:
		resp.Body.Close()
		return nil, types.NewHTTPError("request", uri, resp.StatusCode)
	case offset == 0 && resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent:
		resp.Body.Close()
		return nil, types.NewHTTPError("request", uri, resp.StatusCode)
	}
	return resp, nil
}

// stream copies body to dst one chunk at a time, reporting each chunk after
// it is written. It returns the number of bytes written.
func (d *Downloader) stream(ctx context.Context, uri string, body io.Reader, dst io.Writer, sink progress.Sink) (uint64, error) {
	buf := make([]byte, d.runtime.GetChunkSize())
	var written uint64

	for {
		if ctx.Err() != nil {
			return written, types.ErrCancelled
		}
		if d.limiter != nil {
			if err := d.limiter.WaitN(ctx, len(buf)); err != nil {
				return written, types.ErrCancelled
			}
		}

		n, rerr := body.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			if w > 0 {
				written += uint64(w)
				sink.ReportDelta(uint64(w))
			}
			if werr == nil && w < n {
				werr = io.ErrShortWrite
			}
			if werr != nil {
				return written, types.NewIOError("write", werr)
			}
		}

		switch {
		case rerr == io.EOF:
			return written, nil
		case rerr != nil:
			if ctx.Err() != nil || errors.Is(rerr, context.Canceled) {
				return written, types.ErrCancelled
			}
			return written, types.ClassifyError("read", uri, rerr)
		case n == 0:
			// A zero-length read is end of stream
			return written, nil
		}
	}
}
