package source

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Kind distinguishes how a source's stream is consumed.
type Kind string

const (
	// KindSubscription is a live websocket subscription (firehose or
	// labeler label stream) resumed via a cursor parameter.
	KindSubscription Kind = "subscription"
	// KindExport is a paginated HTTP export feed polled via a cursor.
	KindExport Kind = "export"
)

// Source is one remote endpoint producing an independent event stream.
// Immutable once discovered; equality is by ID.
type Source struct {
	// ID is the normalized address and the durable identity of the
	// source: it keys the event log and the checkpoint.
	ID string
	// Addr is the address as discovered, kept for dialing.
	Addr string
	Kind Kind
}

var (
	ErrEmptyAddress    = errors.New("source: empty address")
	ErrLoopbackAddress = errors.New("source: loopback address rejected")
)

// New validates and normalizes addr into a Source.
func New(addr string, kind Kind) (Source, error) {
	id, err := Normalize(addr)
	if err != nil {
		return Source{}, err
	}
	if kind == "" {
		kind = KindSubscription
	}
	return Source{ID: id, Addr: strings.TrimSpace(addr), Kind: kind}, nil
}

// Normalize converts an address into the canonical source identity:
// scheme stripped, trailing slash removed, host lowercased. Empty and
// loopback/localhost addresses are rejected.
func Normalize(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", ErrEmptyAddress
	}
	// Ensure the URL has a scheme so host/path parse correctly.
	if !strings.Contains(addr, "://") {
		addr = "https://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("source: parse address %q: %w", addr, err)
	}
	host := strings.ToLower(u.Host)
	if host == "" {
		return "", ErrEmptyAddress
	}
	if isLoopback(host) {
		return "", ErrLoopbackAddress
	}
	id := host + u.Path
	id = strings.TrimRight(id, "/")
	return id, nil
}

func isLoopback(host string) bool {
	h := host
	if hostOnly, _, err := net.SplitHostPort(h); err == nil {
		h = hostOnly
	}
	h = strings.Trim(h, "[]")
	if h == "localhost" || strings.HasSuffix(h, ".localhost") {
		return true
	}
	if ip := net.ParseIP(h); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// SafeName converts a source ID into a filesystem-safe artifact name,
// the same substitution the collectors have always used.
func SafeName(id string) string {
	return strings.NewReplacer("/", "_", ":", "_").Replace(id)
}
