package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/osome-iu/osome-bluesky-streamer/internal/source"
)

// SubscriptionDialer opens live websocket subscriptions (firehose commit
// streams and labeler label streams). The remote replays from the cursor
// query parameter, so reconnecting at the last durable checkpoint never
// loses frames.
type SubscriptionDialer struct {
	// HandshakeTimeout bounds the websocket upgrade. Zero means 30s.
	HandshakeTimeout time.Duration
	// Insecure switches to ws:// for tests against local fakes.
	Insecure bool
}

// Dial connects to src's subscription endpoint, resuming after cursor.
func (d *SubscriptionDialer) Dial(ctx context.Context, src source.Source, cursor uint64) (Stream, error) {
	u, err := subscriptionURL(src, cursor, d.Insecure)
	if err != nil {
		return nil, Permanent(err)
	}

	wd := websocket.Dialer{HandshakeTimeout: d.HandshakeTimeout}
	if wd.HandshakeTimeout == 0 {
		wd.HandshakeTimeout = 30 * time.Second
	}
	conn, resp, err := wd.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, classifyStatus(resp, err)
		}
		return nil, Transient(fmt.Errorf("dial %s: %w", u, err))
	}
	return &wsStream{conn: conn}, nil
}

func subscriptionURL(src source.Source, cursor uint64, insecure bool) (string, error) {
	scheme := "wss"
	if insecure {
		scheme = "ws"
	}
	u, err := url.Parse(scheme + "://" + src.ID)
	if err != nil {
		return "", fmt.Errorf("subscription url for %s: %w", src.ID, err)
	}
	if cursor > 0 {
		q := u.Query()
		q.Set("cursor", strconv.FormatUint(cursor, 10))
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// classifyStatus maps an HTTP response during dial to a failure class.
func classifyStatus(resp *http.Response, err error) *Error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		hint, ok := waitHint(resp.Header, time.Now())
		return RateLimited(hint, ok, err)
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return Permanent(fmt.Errorf("endpoint gone (%s): %w", resp.Status, err))
	default:
		return Transient(fmt.Errorf("handshake %s: %w", resp.Status, err))
	}
}

// wsStream adapts one websocket connection to the Stream interface.
type wsStream struct {
	conn *websocket.Conn
}

// Next reads and decodes the next frame.
func (s *wsStream) Next(ctx context.Context) (Frame, error) {
	// ReadMessage has no context form; a watcher closes the connection
	// on cancellation so the read returns promptly.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.conn.Close()
		case <-done:
		}
	}()

	_, data, err := s.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return Frame{}, ctx.Err()
		}
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) && closeErr.Code == websocket.ClosePolicyViolation {
			// The server refused the subscription itself (bad cursor or
			// removed stream), not a blip.
			return Frame{}, Permanent(err)
		}
		return Frame{}, Transient(err)
	}
	return decodeFrame(data)
}

// Close closes the websocket connection.
func (s *wsStream) Close() error {
	return s.conn.Close()
}
