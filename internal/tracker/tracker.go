// Package tracker owns the per-session tracking lifecycle: the polling
// loop, the waiting → live → ended|error state machine, trend analysis and
// the supervisor that registers and resumes sessions.
package tracker

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/zulandar/peakwatch/internal/fetcher"
	"github.com/zulandar/peakwatch/internal/models"
	"github.com/zulandar/peakwatch/internal/store"
)

const (
	// MinPollInterval and MaxPollInterval bound the per-session polling
	// cadence in seconds.
	MinPollInterval = 10
	MaxPollInterval = 600

	// defaultWaitBackoff is how long the loop sleeps after a fetch failure
	// or while waiting for the broadcast to go live.
	defaultWaitBackoff = 60 * time.Second

	// maxFetchFailures is the consecutive-failure count at which a session
	// is declared permanently errored.
	maxFetchFailures = 10

	// historyTail bounds the in-memory sample tail kept for live display.
	// The store holds the full history.
	historyTail = 720
)

// ClampInterval clamps a poll interval in seconds to the allowed range.
// Non-positive values clamp to the floor; "no interval specified" defaults
// are the supervisor's concern.
func ClampInterval(seconds int) int {
	if seconds < MinPollInterval {
		return MinPollInterval
	}
	if seconds > MaxPollInterval {
		return MaxPollInterval
	}
	return seconds
}

// ReportDispatcher delivers a completion report for a terminal session.
// Dispatch failures are logged by the tracker and never affect the
// session's terminal status.
type ReportDispatcher interface {
	Dispatch(ctx context.Context, sess *models.Session, history []models.ViewerSample, analysis Analysis) error
}

// Opts holds parameters for constructing a Tracker.
type Opts struct {
	// Session seeds the tracker state. For new sessions this is the
	// freshly created waiting record; for resumed sessions it is the
	// stored record, status included, so an ended-while-down broadcast
	// completes on the first fetch.
	Session models.Session
	// SampleCount is the number of samples already persisted (resume).
	SampleCount int

	Store      *store.Store
	Fetcher    fetcher.Fetcher
	Dispatcher ReportDispatcher

	// WaitBackoff overrides the failure/waiting backoff; zero selects the
	// default of 60s.
	WaitBackoff time.Duration
	// OnExit is invoked with the session id when the polling loop exits.
	OnExit func(id string)
	// Out receives operator-facing progress lines; defaults to io.Discard.
	Out io.Writer
}

// Tracker runs the polling loop for one tracked broadcast. All state
// mutations happen on the loop goroutine; Snapshot may be called
// concurrently.
type Tracker struct {
	mu          sync.Mutex
	sess        models.Session
	tail        []models.ViewerSample
	sampleCount int

	fetchFailures int // consecutive
	storeFailures int // cumulative, surfaced on the snapshot

	stopCh   chan struct{}
	stopOnce sync.Once

	store       *store.Store
	fetch       fetcher.Fetcher
	dispatcher  ReportDispatcher
	waitBackoff time.Duration
	onExit      func(id string)
	out         io.Writer

	// sleep is swappable so tests can run the loop without real delays.
	sleep func(ctx context.Context, d time.Duration)
}

// New constructs a Tracker. The poll interval on the session is expected to
// be clamped already (the supervisor clamps at creation).
func New(opts Opts) *Tracker {
	t := &Tracker{
		sess:        opts.Session,
		sampleCount: opts.SampleCount,
		stopCh:      make(chan struct{}),
		store:       opts.Store,
		fetch:       opts.Fetcher,
		dispatcher:  opts.Dispatcher,
		waitBackoff: opts.WaitBackoff,
		onExit:      opts.OnExit,
		out:         opts.Out,
	}
	if t.waitBackoff <= 0 {
		t.waitBackoff = defaultWaitBackoff
	}
	if t.out == nil {
		t.out = io.Discard
	}
	t.sleep = sleepWithContext
	return t
}

// ID returns the tracked session's id.
func (t *Tracker) ID() string {
	return t.sess.ID
}

// Stop requests the polling loop to exit at the next iteration boundary,
// ending a live session without a report. Because the loop may be mid-sleep,
// stop latency is bounded by the longest pending sleep.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

// Snapshot returns a copy of the current session record, the bounded
// in-memory sample tail, and the total persisted sample count.
func (t *Tracker) Snapshot() (models.Session, []models.ViewerSample, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tail := make([]models.ViewerSample, len(t.tail))
	copy(tail, t.tail)
	return t.sess, tail, t.sampleCount
}

// Run executes the polling loop until the session reaches a terminal
// status, the stop flag is raised, or ctx is cancelled. Cancellation is
// process shutdown, not completion: the loop exits with no terminal
// transition so the persisted session stays resumable on the next start.
// Only the per-session stop flag ends a live session without a report. Run
// never returns an error: all failures are absorbed into state transitions
// and messages.
func (t *Tracker) Run(ctx context.Context) {
	defer func() {
		if t.onExit != nil {
			t.onExit(t.sess.ID)
		}
	}()

	pollInterval := time.Duration(t.sess.PollInterval) * time.Second

	for {
		if ctx.Err() != nil {
			return
		}
		if t.stopRequested() {
			t.finishStopped()
			return
		}

		snap, err := t.fetch.Fetch(ctx, t.sess.URL)
		if err != nil {
			if t.recordFetchFailure(err) {
				return
			}
			t.sleep(ctx, t.waitBackoff)
			continue
		}

		t.applyMetadata(snap)

		switch {
		case !snap.IsLive && t.status() == models.StatusWaiting:
			t.setMessage("Waiting for the live stream to start...")
			t.persist()
			t.sleep(ctx, t.waitBackoff)
			continue

		case !snap.IsLive && t.status() == models.StatusLive:
			t.transition(models.StatusEnded, "Live stream ended.")
			t.persist()
			t.dispatchReport(ctx)
			return
		}

		// Live. Enter the live state once, then record a sample.
		if t.status() != models.StatusLive {
			t.enterLive()
		}
		t.recordSample(snap.Viewers(), pollInterval)
		t.persist()
		t.sleep(ctx, pollInterval)
	}
}

// stopRequested reports whether an operator stop has been raised.
func (t *Tracker) stopRequested() bool {
	select {
	case <-t.stopCh:
		return true
	default:
		return false
	}
}

// recordFetchFailure bumps the consecutive-failure counter and returns true
// when the session has been declared permanently errored. The error terminal
// only applies before the broadcast is seen live; a live session rides out
// fetch failures until the next success.
func (t *Tracker) recordFetchFailure(err error) (terminal bool) {
	t.mu.Lock()
	t.fetchFailures++
	failures := t.fetchFailures
	t.mu.Unlock()

	log.Printf("tracker %s: fetch failed (%d/%d): %v", t.sess.ID, failures, maxFetchFailures, err)

	if failures >= maxFetchFailures && t.status() == models.StatusWaiting {
		t.transition(models.StatusError, "Unable to fetch stream info. Check the URL.")
		t.persist()
		fmt.Fprintf(t.out, "Session %s errored after %d consecutive fetch failures\n", t.sess.ID, failures)
		return true
	}

	t.setMessage(fmt.Sprintf("Cannot fetch stream info (retry %d/%d)", failures, maxFetchFailures))
	return false
}

// applyMetadata resets the failure counter and overwrites descriptive
// metadata from a successful fetch.
func (t *Tracker) applyMetadata(snap *fetcher.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fetchFailures = 0
	t.sess.Title = snap.Title
	t.sess.Channel = snap.ChannelName()
	t.sess.Thumbnail = snap.Thumbnail
}

// enterLive transitions the session into the live state and records the
// start time, once.
func (t *Tracker) enterLive() {
	t.transition(models.StatusLive, "")
	t.mu.Lock()
	if t.sess.StartTime == nil {
		now := time.Now()
		t.sess.StartTime = &now
	}
	t.mu.Unlock()
	fmt.Fprintf(t.out, "Session %s is live: %s\n", t.sess.ID, t.sess.Title)
}

// recordSample appends one viewer observation: updates the current value,
// writes through to the store, and bumps the running maximum on a strict
// increase.
func (t *Tracker) recordSample(viewers int, pollInterval time.Duration) {
	now := time.Now()

	t.mu.Lock()
	t.sess.CurrentViewers = viewers
	t.tail = append(t.tail, models.ViewerSample{SessionID: t.sess.ID, Time: now, Viewers: viewers})
	if len(t.tail) > historyTail {
		t.tail = t.tail[len(t.tail)-historyTail:]
	}
	t.sampleCount++
	if viewers > t.sess.MaxViewers {
		t.sess.MaxViewers = viewers
		t.sess.MaxViewersTime = &now
	}
	t.sess.Message = fmt.Sprintf("Monitoring (every %ds)", int(pollInterval.Seconds()))
	t.mu.Unlock()

	if err := t.store.AppendSample(t.sess.ID, now, viewers); err != nil {
		log.Printf("tracker %s: %v", t.sess.ID, err)
		t.mu.Lock()
		t.storeFailures++
		t.mu.Unlock()
	}
}

// finishStopped handles an operator stop: a live session ends without a
// report; a non-live session exits with a message only.
func (t *Tracker) finishStopped() {
	if t.status() == models.StatusLive {
		t.transition(models.StatusEnded, "Tracking stopped.")
		t.persist()
		fmt.Fprintf(t.out, "Session %s stopped while live — marked ended, no report\n", t.sess.ID)
		return
	}
	t.setMessage("Tracking stopped.")
}

// dispatchReport analyzes the full persisted history and hands the terminal
// session to the report dispatcher. Failure here never rolls back
// completion.
func (t *Tracker) dispatchReport(ctx context.Context) {
	if t.dispatcher == nil {
		return
	}

	t.mu.Lock()
	target := t.sess.NotifyTarget
	t.mu.Unlock()
	if target == "" {
		return
	}

	rec, history, err := t.store.GetSession(t.sess.ID)
	if err != nil {
		log.Printf("tracker %s: load history for report: %v", t.sess.ID, err)
		t.mu.Lock()
		sess := t.sess
		history = append([]models.ViewerSample(nil), t.tail...)
		t.mu.Unlock()
		rec = &sess
	} else {
		// The in-memory record is fresher than the row just written.
		t.mu.Lock()
		sess := t.sess
		t.mu.Unlock()
		rec = &sess
	}

	analysis := AnalyzeTrends(history)
	if err := t.dispatcher.Dispatch(ctx, rec, history, analysis); err != nil {
		log.Printf("tracker %s: report dispatch: %v", t.sess.ID, err)
		return
	}

	t.mu.Lock()
	t.sess.NotificationSent = true
	t.mu.Unlock()
	if err := t.store.MarkNotified(t.sess.ID); err != nil {
		log.Printf("tracker %s: %v", t.sess.ID, err)
	}
	fmt.Fprintf(t.out, "Session %s report delivered to %s\n", t.sess.ID, target)
}

// status returns the current status under the lock.
func (t *Tracker) status() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sess.Status
}

// setMessage updates the human-readable status annotation.
func (t *Tracker) setMessage(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sess.Message = msg
}

// transition moves the session to a new status, enforcing the forward-only
// state machine. An invalid transition is logged and dropped; it indicates
// a bug, not an operational condition.
func (t *Tracker) transition(to, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !models.CanTransition(t.sess.Status, to) {
		log.Printf("tracker %s: invalid transition %s → %s dropped", t.sess.ID, t.sess.Status, to)
		return
	}
	t.sess.Status = to
	if msg != "" {
		t.sess.Message = msg
	}
}

// persist writes the full record through to the store. Write failures are
// logged and counted; they never abort the loop.
func (t *Tracker) persist() {
	t.mu.Lock()
	sess := t.sess
	t.mu.Unlock()

	if err := t.store.UpsertSession(&sess); err != nil {
		log.Printf("tracker %s: %v", t.sess.ID, err)
		t.mu.Lock()
		t.storeFailures++
		t.mu.Unlock()
	}
}

// sleepWithContext sleeps for duration d, returning early if ctx is
// cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
