package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/osome-iu/osome-bluesky-streamer/internal/source"
)

// ExportDialer opens paginated HTTP export feeds (PLC-style: each page
// is line-delimited JSON, the next page is requested with the last seen
// cursor). The stream polls for new pages when it catches up, so from
// the consumer's view it behaves like a subscription.
type ExportDialer struct {
	// Client defaults to a client with a 30s request timeout.
	Client *http.Client
	// PageSize is the count parameter sent per request. Zero means 1000,
	// the export API's maximum.
	PageSize int
	// PollInterval is the wait between requests once caught up. Zero
	// means 5s.
	PollInterval time.Duration
	// Insecure switches to http:// for tests against local fakes.
	Insecure bool
}

// Dial prepares an export stream for src resuming after cursor. No
// request is made until the first Next call.
func (d *ExportDialer) Dial(ctx context.Context, src source.Source, cursor uint64) (Stream, error) {
	client := d.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	pageSize := d.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	poll := d.PollInterval
	if poll <= 0 {
		poll = 5 * time.Second
	}
	scheme := "https"
	if d.Insecure {
		scheme = "http"
	}
	base, err := url.Parse(scheme + "://" + src.ID)
	if err != nil {
		return nil, Permanent(fmt.Errorf("export url for %s: %w", src.ID, err))
	}
	return &exportStream{
		client:   client,
		base:     base,
		cursor:   cursor,
		pageSize: pageSize,
		poll:     poll,
	}, nil
}

type exportStream struct {
	client   *http.Client
	base     *url.URL
	cursor   uint64
	pageSize int
	poll     time.Duration
	buf      []Frame
}

// Next returns the next buffered frame, fetching a page when the buffer
// is empty and polling when the feed is caught up.
func (s *exportStream) Next(ctx context.Context) (Frame, error) {
	for len(s.buf) == 0 {
		frames, err := s.fetchPage(ctx)
		if err != nil {
			return Frame{}, err
		}
		if len(frames) == 0 {
			// Caught up; poll instead of hammering the endpoint.
			t := time.NewTimer(s.poll)
			select {
			case <-ctx.Done():
				t.Stop()
				return Frame{}, ctx.Err()
			case <-t.C:
			}
			continue
		}
		s.buf = frames
	}
	fr := s.buf[0]
	s.buf = s.buf[1:]
	s.cursor = fr.Seq
	return fr, nil
}

func (s *exportStream) fetchPage(ctx context.Context) ([]Frame, error) {
	u := *s.base
	q := u.Query()
	q.Set("count", strconv.Itoa(s.pageSize))
	if s.cursor > 0 {
		q.Set("cursor", strconv.FormatUint(s.cursor, 10))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, Permanent(err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, Transient(fmt.Errorf("fetch %s: %w", u.Host, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return parsePage(resp.Body)
	case resp.StatusCode == http.StatusTooManyRequests:
		io.Copy(io.Discard, resp.Body)
		hint, ok := waitHint(resp.Header, time.Now())
		return nil, RateLimited(hint, ok, fmt.Errorf("rate limited by %s", u.Host))
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		io.Copy(io.Discard, resp.Body)
		return nil, Permanent(fmt.Errorf("export feed gone: %s", resp.Status))
	default:
		io.Copy(io.Discard, resp.Body)
		return nil, Transient(fmt.Errorf("export feed returned %s", resp.Status))
	}
}

// parsePage splits a line-delimited page into frames. Malformed lines
// are skipped so one bad record cannot wedge the feed; a page that
// yields nothing but garbage is treated as transient so the caller
// backs off instead of spinning on the same cursor.
func parsePage(body io.Reader) ([]Frame, error) {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	var frames []Frame
	lines, bad := 0, 0
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		lines++
		fr, err := decodeFrame([]byte(line))
		if err != nil {
			bad++
			continue
		}
		frames = append(frames, fr)
	}
	if err := sc.Err(); err != nil {
		if len(frames) > 0 {
			return frames, nil
		}
		return nil, Transient(fmt.Errorf("read page: %w", err))
	}
	if lines > 0 && len(frames) == 0 {
		return nil, Transient(fmt.Errorf("export page unparseable (%d lines)", bad))
	}
	return frames, nil
}

// Close is a no-op: the export stream holds no persistent connection.
func (s *exportStream) Close() error { return nil }
