// Package fetcher defines the stream metadata boundary: given a broadcast
// URL it returns a snapshot of title, channel, live flag and viewer count,
// or a typed failure. The production implementation shells out to yt-dlp.
package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Failure kinds. The tracking loop decides retry-vs-fatal on these rather
// than on a blanket catch.
var (
	// ErrTimeout means the fetch did not complete within the bound.
	ErrTimeout = errors.New("fetcher: timed out")
	// ErrUnavailable means the upstream call failed (transport error,
	// nonzero exit, stream gone).
	ErrUnavailable = errors.New("fetcher: stream info unavailable")
	// ErrDecode means the upstream responded with something unparseable.
	ErrDecode = errors.New("fetcher: malformed metadata")
)

// DefaultTimeout bounds a single fetch attempt.
const DefaultTimeout = 30 * time.Second

// Snapshot is a single fetch result describing current broadcast metadata
// and viewer count.
type Snapshot struct {
	Title               string `json:"title"`
	Channel             string `json:"channel"`
	Uploader            string `json:"uploader"`
	Thumbnail           string `json:"thumbnail"`
	IsLive              bool   `json:"is_live"`
	ConcurrentViewCount int    `json:"concurrent_view_count"`
	ViewCount           int    `json:"view_count"`
}

// ChannelName returns the channel, falling back to the uploader field.
func (s *Snapshot) ChannelName() string {
	if s.Channel != "" {
		return s.Channel
	}
	return s.Uploader
}

// Viewers returns the concurrent viewer count, falling back to the total
// view count, then zero.
func (s *Snapshot) Viewers() int {
	if s.ConcurrentViewCount > 0 {
		return s.ConcurrentViewCount
	}
	if s.ViewCount > 0 {
		return s.ViewCount
	}
	return 0
}

// Fetcher fetches a metadata snapshot for a stream URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Snapshot, error)
}

// CommandFetcher fetches stream metadata by running an external metadata
// dumper (yt-dlp by default) and decoding its JSON output.
type CommandFetcher struct {
	Binary  string
	Timeout time.Duration
}

// NewCommandFetcher creates a CommandFetcher. Empty binary and zero timeout
// select the defaults.
func NewCommandFetcher(binary string, timeout time.Duration) *CommandFetcher {
	if binary == "" {
		binary = "yt-dlp"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &CommandFetcher{Binary: binary, Timeout: timeout}
}

// Fetch runs the metadata dumper for url, bounded by the fetcher's timeout.
func (f *CommandFetcher) Fetch(ctx context.Context, url string) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.Binary, "--dump-json", "--no-download", url)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, f.Timeout)
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, detail)
	}

	return decodeSnapshot(stdout.Bytes())
}

// decodeSnapshot parses the dumper's JSON output into a Snapshot.
func decodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return &snap, nil
}
