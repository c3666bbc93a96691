package tracker

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/zulandar/peakwatch/internal/fetcher"
	"github.com/zulandar/peakwatch/internal/models"
	"github.com/zulandar/peakwatch/internal/store"
)

// ErrSessionNotActive is returned when an operation targets a session with
// no running tracker.
var ErrSessionNotActive = errors.New("tracker: session is not active")

// ErrInvalidURL is returned when a tracking request carries a malformed or
// missing stream URL.
var ErrInvalidURL = errors.New("tracker: invalid stream URL")

// GenerateSessionID creates a unique session ID in lv-xxxxxxxx format
// (8-char hex).
func GenerateSessionID() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("tracker: generate session ID: %w", err)
	}
	return "lv-" + hex.EncodeToString(b), nil
}

// defaultPollInterval is applied when neither the start request nor the
// configuration names a poll interval.
const defaultPollInterval = 30

// SupervisorOpts holds dependencies for a Supervisor.
type SupervisorOpts struct {
	Store      *store.Store
	Fetcher    fetcher.Fetcher
	Dispatcher ReportDispatcher
	// DefaultInterval is the poll interval in seconds applied when a start
	// request does not carry one; zero selects 30.
	DefaultInterval int
	// WaitBackoff is forwarded to every tracker; zero selects the default.
	WaitBackoff time.Duration
	// Out receives operator-facing progress lines; defaults to io.Discard.
	Out io.Writer
}

// Supervisor owns the registry of in-memory trackers, one per non-terminal
// session system-wide, and re-hydrates resumable sessions at startup.
type Supervisor struct {
	mu       sync.RWMutex
	trackers map[string]*Tracker

	store           *store.Store
	fetcher         fetcher.Fetcher
	dispatcher      ReportDispatcher
	defaultInterval int
	waitBackoff     time.Duration
	out             io.Writer
}

// NewSupervisor creates a Supervisor.
func NewSupervisor(opts SupervisorOpts) *Supervisor {
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	interval := opts.DefaultInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Supervisor{
		trackers:        make(map[string]*Tracker),
		store:           opts.Store,
		fetcher:         opts.Fetcher,
		dispatcher:      opts.Dispatcher,
		defaultInterval: interval,
		waitBackoff:     opts.WaitBackoff,
		out:             out,
	}
}

// StartOpts holds parameters for starting a new tracking session.
type StartOpts struct {
	URL          string
	NotifyTarget string
	PollInterval int // seconds; zero selects the configured default, then clamped to [MinPollInterval, MaxPollInterval]
}

// Start validates the request, creates the session record in the waiting
// state, and launches its polling loop.
func (s *Supervisor) Start(ctx context.Context, opts StartOpts) (*models.Session, error) {
	if err := validateStreamURL(opts.URL); err != nil {
		return nil, err
	}

	id, err := GenerateSessionID()
	if err != nil {
		return nil, err
	}

	interval := opts.PollInterval
	if interval <= 0 {
		interval = s.defaultInterval
	}

	sess := models.Session{
		ID:           id,
		URL:          opts.URL,
		NotifyTarget: opts.NotifyTarget,
		Status:       models.StatusWaiting,
		Message:      "Checking stream info...",
		PollInterval: ClampInterval(interval),
		CreatedAt:    time.Now(),
	}
	if err := s.store.UpsertSession(&sess); err != nil {
		return nil, err
	}

	if err := s.launch(ctx, sess, 0); err != nil {
		return nil, err
	}
	fmt.Fprintf(s.out, "Tracking session %s started for %s\n", sess.ID, sess.URL)
	return &sess, nil
}

// Resume re-hydrates every session left in a non-terminal state and
// restarts its polling loop, seeding the stored status, start time, running
// maximum and sample count. Already-collected history is preserved; there
// is a gap during the restart window. Returns the number of sessions
// resumed.
func (s *Supervisor) Resume(ctx context.Context) (int, error) {
	sessions, err := s.store.ListResumable()
	if err != nil {
		return 0, err
	}

	resumed := 0
	for _, sess := range sessions {
		if s.Active(sess.ID) {
			continue
		}
		count, err := s.store.CountSamples(sess.ID)
		if err != nil {
			return resumed, err
		}
		if err := s.launch(ctx, sess, count); err != nil {
			return resumed, err
		}
		fmt.Fprintf(s.out, "Resumed session %s (%s, status %s, %d samples)\n",
			sess.ID, sess.URL, sess.Status, count)
		resumed++
	}
	return resumed, nil
}

// launch registers a tracker under its session id and starts its loop.
func (s *Supervisor) launch(ctx context.Context, sess models.Session, sampleCount int) error {
	t := New(Opts{
		Session:     sess,
		SampleCount: sampleCount,
		Store:       s.store,
		Fetcher:     s.fetcher,
		Dispatcher:  s.dispatcher,
		WaitBackoff: s.waitBackoff,
		OnExit:      s.remove,
		Out:         s.out,
	})

	s.mu.Lock()
	if _, exists := s.trackers[sess.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("tracker: session %s is already being tracked", sess.ID)
	}
	s.trackers[sess.ID] = t
	s.mu.Unlock()

	go t.Run(ctx)
	return nil
}

// remove deregisters a tracker after its loop exits.
func (s *Supervisor) remove(id string) {
	s.mu.Lock()
	delete(s.trackers, id)
	s.mu.Unlock()
}

// Active reports whether a session has a running in-memory tracker.
func (s *Supervisor) Active(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.trackers[id]
	return ok
}

// ActiveCount returns the number of running trackers.
func (s *Supervisor) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trackers)
}

// Stop requests the named session's loop to exit at its next iteration
// boundary.
func (s *Supervisor) Stop(id string) error {
	s.mu.RLock()
	t, ok := s.trackers[id]
	s.mu.RUnlock()
	if !ok {
		return ErrSessionNotActive
	}
	t.Stop()
	return nil
}

// SessionState is the merged view of a session: the freshest record (from
// the in-memory tracker when one is running, otherwise the store), the full
// persisted history, and whether a tracker is live.
type SessionState struct {
	Session models.Session
	History []models.ViewerSample
	Live    bool
}

// Get returns the state of a session by id. History always comes from the
// store, the single source of truth; a running tracker only contributes the
// fresher record.
func (s *Supervisor) Get(id string) (*SessionState, error) {
	rec, history, err := s.store.GetSession(id)
	if err != nil {
		return nil, err
	}

	state := &SessionState{Session: *rec, History: history}

	s.mu.RLock()
	t, ok := s.trackers[id]
	s.mu.RUnlock()
	if ok {
		sess, _, _ := t.Snapshot()
		state.Session = sess
		state.Live = true
	}
	return state, nil
}

// validateStreamURL rejects malformed or missing URLs before a tracking
// session is ever constructed.
func validateStreamURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return nil
}
