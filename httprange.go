package payloadextract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"golang.org/x/sync/errgroup"
)

// httpRangeChunk is the unit of work fetched per HTTP Range request and
// prefetched one chunk ahead of the reader's current position.
const httpRangeChunk = 4 << 20 // 4 MiB

// HTTPRangeSource is a Source (io.Reader + io.Seeker) over a remote
// payload.bin fetched with HTTP Range requests. Most of the operation
// engine's access pattern is a forward scan through the data region
// punctuated by small backward seeks (to the start of the next operation's
// declared offset), so it keeps one chunk in memory and, as soon as a read
// hands out the last byte of that chunk, starts fetching the following
// chunk in the background via errgroup. Reads that land anywhere other
// than the current chunk or the pending prefetch fetch synchronously.
type HTTPRangeSource struct {
	ctx    context.Context
	client *http.Client
	url    string
	size   int64

	pos int64

	cur      []byte
	curStart int64

	g         *errgroup.Group
	nextStart int64
	nextCh    chan chunkFetch
}

type chunkFetch struct {
	data []byte
	err  error
}

// NewHTTPRangeSource issues a HEAD request to discover the resource's
// size, then returns a Source ready to serve Range-backed reads over it.
func NewHTTPRangeSource(ctx context.Context, url string) (*HTTPRangeSource, error) {
	client := http.DefaultClient

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, &IOError{Op: "build HEAD request", Cause: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &IOError{Op: "HEAD request", Cause: err}
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &IOError{Op: "HEAD request", Cause: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	if resp.ContentLength < 0 {
		return nil, &IOError{Op: "HEAD request", Cause: fmt.Errorf("server did not report Content-Length")}
	}

	return &HTTPRangeSource{
		ctx:    ctx,
		client: client,
		url:    url,
		size:   resp.ContentLength,
	}, nil
}

// Size reports the remote resource's total length.
func (s *HTTPRangeSource) Size() int64 { return s.size }

func (s *HTTPRangeSource) Read(p []byte) (int, error) {
	if s.pos >= s.size {
		return 0, io.EOF
	}
	if !s.posInCurrent() {
		if err := s.loadChunkAt(s.pos); err != nil {
			return 0, err
		}
	}

	off := s.pos - s.curStart
	n := copy(p, s.cur[off:])
	s.pos += int64(n)

	if s.pos == s.curStart+int64(len(s.cur)) {
		s.startPrefetch(s.curStart + int64(len(s.cur)))
	}
	return n, nil
}

func (s *HTTPRangeSource) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = s.pos + offset
	case io.SeekEnd:
		target = s.size + offset
	default:
		return 0, &IOError{Op: "seek", Cause: errUnsupportedWhence}
	}
	if target < 0 {
		return 0, &IOError{Op: "seek", Cause: errNegativeSeek}
	}
	s.pos = target
	return s.pos, nil
}

func (s *HTTPRangeSource) posInCurrent() bool {
	return s.cur != nil && s.pos >= s.curStart && s.pos < s.curStart+int64(len(s.cur))
}

func (s *HTTPRangeSource) loadChunkAt(start int64) error {
	if s.nextCh != nil && s.nextStart == start {
		res := <-s.nextCh
		s.nextCh = nil
		if res.err != nil {
			return res.err
		}
		s.cur = res.data
		s.curStart = start
		return nil
	}

	data, err := s.fetchChunk(start)
	if err != nil {
		return err
	}
	s.cur = data
	s.curStart = start
	return nil
}

func (s *HTTPRangeSource) startPrefetch(start int64) {
	if start >= s.size || s.nextCh != nil {
		return
	}
	ch := make(chan chunkFetch, 1)
	s.nextCh = ch
	s.nextStart = start

	g, ctx := errgroup.WithContext(s.ctx)
	s.g = g
	g.Go(func() error {
		data, err := s.fetchChunkCtx(ctx, start)
		ch <- chunkFetch{data: data, err: err}
		return err
	})
}

func (s *HTTPRangeSource) fetchChunk(start int64) ([]byte, error) {
	return s.fetchChunkCtx(s.ctx, start)
}

func (s *HTTPRangeSource) fetchChunkCtx(ctx context.Context, start int64) ([]byte, error) {
	end := start + httpRangeChunk - 1
	if end >= s.size {
		end = s.size - 1
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, &IOError{Op: "build range request", Cause: err}
	}
	req.Header.Set("Range", "bytes="+strconv.FormatInt(start, 10)+"-"+strconv.FormatInt(end, 10))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &IOError{Op: "range request", Cause: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return nil, &IOError{Op: "range request", Cause: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &IOError{Op: "read range response body", Cause: err}
	}
	return data, nil
}
