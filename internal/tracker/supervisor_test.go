package tracker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/zulandar/peakwatch/internal/models"
)

func TestGenerateSessionID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id, err := GenerateSessionID()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if !strings.HasPrefix(id, "lv-") || len(id) != 11 {
			t.Fatalf("id %q: want lv- prefix and 8 hex chars", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestValidateStreamURL(t *testing.T) {
	valid := []string{
		"https://www.youtube.com/watch?v=abc123",
		"http://example.com/live",
	}
	for _, u := range valid {
		if err := validateStreamURL(u); err != nil {
			t.Errorf("%q rejected: %v", u, err)
		}
	}

	invalid := []string{
		"",
		"not a url at all\x7f",
		"ftp://example.com/live",
		"https://",
		"watch?v=abc123",
	}
	for _, u := range invalid {
		err := validateStreamURL(u)
		if err == nil {
			t.Errorf("%q accepted, want error", u)
			continue
		}
		if !errors.Is(err, ErrInvalidURL) {
			t.Errorf("%q: got %v, want ErrInvalidURL", u, err)
		}
	}
}

func TestSupervisorStart_RejectsInvalidURL(t *testing.T) {
	sup := NewSupervisor(SupervisorOpts{Store: testStore(t)})
	_, err := sup.Start(context.Background(), StartOpts{URL: "ftp://example.com"})
	if !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("got %v, want ErrInvalidURL", err)
	}
	if sup.ActiveCount() != 0 {
		t.Errorf("tracker registered for rejected URL")
	}
}

func TestSupervisorStart_ClampsIntervalAndPersists(t *testing.T) {
	st := testStore(t)
	// Offline forever; the loop parks in the waiting state.
	fetch := &scriptFetcher{steps: []fetchStep{{snap: offlineSnap()}}}
	sup := NewSupervisor(SupervisorOpts{Store: st, Fetcher: fetch, WaitBackoff: time.Hour})

	sess, err := sup.Start(context.Background(), StartOpts{
		URL:          "https://example.com/live",
		NotifyTarget: "slack:C012345",
		PollInterval: 5,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if sess.PollInterval != MinPollInterval {
		t.Errorf("poll interval = %d, want clamped to %d", sess.PollInterval, MinPollInterval)
	}
	if sess.Status != models.StatusWaiting {
		t.Errorf("status = %q, want waiting", sess.Status)
	}
	if !sup.Active(sess.ID) {
		t.Error("tracker not registered after start")
	}

	rec, _, err := st.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("record not persisted: %v", err)
	}
	if rec.NotifyTarget != "slack:C012345" {
		t.Errorf("notify target = %q", rec.NotifyTarget)
	}

	if err := sup.Stop(sess.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestSupervisorStart_DefaultInterval(t *testing.T) {
	st := testStore(t)
	fetch := &scriptFetcher{steps: []fetchStep{{snap: offlineSnap()}}}

	// Configured default applies when the request carries no interval.
	sup := NewSupervisor(SupervisorOpts{Store: st, Fetcher: fetch, DefaultInterval: 60, WaitBackoff: time.Hour})
	sess, err := sup.Start(context.Background(), StartOpts{URL: "https://example.com/live"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if sess.PollInterval != 60 {
		t.Errorf("poll interval = %d, want configured default 60", sess.PollInterval)
	}
	sup.Stop(sess.ID)

	// An explicit interval wins over the configured default.
	sess, err = sup.Start(context.Background(), StartOpts{URL: "https://example.com/live", PollInterval: 120})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if sess.PollInterval != 120 {
		t.Errorf("poll interval = %d, want explicit 120", sess.PollInterval)
	}
	sup.Stop(sess.ID)

	// No configured default falls back to 30.
	sup = NewSupervisor(SupervisorOpts{Store: st, Fetcher: fetch, WaitBackoff: time.Hour})
	sess, err = sup.Start(context.Background(), StartOpts{URL: "https://example.com/live"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if sess.PollInterval != 30 {
		t.Errorf("poll interval = %d, want 30", sess.PollInterval)
	}
	sup.Stop(sess.ID)
}

func TestSupervisorStop_UnknownSession(t *testing.T) {
	sup := NewSupervisor(SupervisorOpts{Store: testStore(t)})
	if err := sup.Stop("lv-missing1"); !errors.Is(err, ErrSessionNotActive) {
		t.Fatalf("got %v, want ErrSessionNotActive", err)
	}
}

func TestSupervisorResume_NonTerminalOnly(t *testing.T) {
	st := testStore(t)
	for id, status := range map[string]string{
		"lv-wait0003": models.StatusWaiting,
		"lv-live0004": models.StatusLive,
		"lv-ende0002": models.StatusEnded,
		"lv-erro0002": models.StatusError,
	} {
		sess := models.Session{ID: id, URL: "https://example.com/live", Status: status, PollInterval: 30}
		if err := st.UpsertSession(&sess); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}

	fetch := &scriptFetcher{steps: []fetchStep{{snap: offlineSnap()}}}
	sup := NewSupervisor(SupervisorOpts{Store: st, Fetcher: fetch, WaitBackoff: time.Hour})

	n, err := sup.Resume(context.Background())
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if n != 2 {
		t.Errorf("resumed %d sessions, want 2", n)
	}
	if !sup.Active("lv-wait0003") || !sup.Active("lv-live0004") {
		t.Error("non-terminal sessions not re-registered")
	}
	if sup.Active("lv-ende0002") || sup.Active("lv-erro0002") {
		t.Error("terminal session resumed")
	}

	// A second resume is a no-op while the trackers are still running.
	n, err = sup.Resume(context.Background())
	if err != nil {
		t.Fatalf("second resume: %v", err)
	}
	if n != 0 {
		t.Errorf("second resume restarted %d sessions, want 0", n)
	}
}

func TestSupervisorResume_SeededLiveSessionCompletes(t *testing.T) {
	st := testStore(t)
	start := time.Now().Add(-30 * time.Minute)
	sess := models.Session{
		ID: "lv-seed0001", URL: "https://example.com/live",
		Status: models.StatusLive, StartTime: &start,
		MaxViewers: 250, PollInterval: 10,
	}
	if err := st.UpsertSession(&sess); err != nil {
		t.Fatalf("seed: %v", err)
	}
	base := time.Now().Add(-20 * time.Minute)
	for i, v := range []int{100, 250, 200} {
		if err := st.AppendSample(sess.ID, base.Add(time.Duration(i)*30*time.Second), v); err != nil {
			t.Fatalf("seed sample: %v", err)
		}
	}

	// The broadcast ended while the process was down: first fetch reports
	// not-live, which must complete the session and dispatch its report.
	fetch := &scriptFetcher{steps: []fetchStep{{snap: offlineSnap()}}}
	disp := &recordingDispatcher{}

	done := make(chan struct{})
	sess.NotifyTarget = "slack:C012345"
	if err := st.UpsertSession(&sess); err != nil {
		t.Fatalf("seed target: %v", err)
	}

	count, err := st.CountSamples(sess.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	tr := New(Opts{
		Session: sess, SampleCount: count,
		Store: st, Fetcher: fetch, Dispatcher: disp,
		OnExit: func(string) { close(done) },
	})
	tr.sleep = func(context.Context, time.Duration) {}
	go tr.Run(context.Background())

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("resumed tracker did not exit")
	}

	rec, history, err := st.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != models.StatusEnded {
		t.Errorf("status = %q, want ended", rec.Status)
	}
	if rec.MaxViewers != 250 {
		t.Errorf("seeded max viewers lost: %d", rec.MaxViewers)
	}
	if len(history) != 3 {
		t.Errorf("history shrank to %d samples", len(history))
	}
	if disp.callCount() != 1 {
		t.Errorf("dispatcher invoked %d times, want 1", disp.callCount())
	}
}

func TestSupervisorGet_FallsBackToStore(t *testing.T) {
	st := testStore(t)
	sess := models.Session{ID: "lv-get00001", URL: "https://example.com/live", Status: models.StatusEnded, PollInterval: 30}
	if err := st.UpsertSession(&sess); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := st.AppendSample(sess.ID, time.Now(), 12); err != nil {
		t.Fatalf("append: %v", err)
	}

	sup := NewSupervisor(SupervisorOpts{Store: st})
	state, err := sup.Get(sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if state.Live {
		t.Error("no tracker is running, state must not be live")
	}
	if state.Session.Status != models.StatusEnded {
		t.Errorf("status = %q", state.Session.Status)
	}
	if len(state.History) != 1 {
		t.Errorf("history = %d samples, want 1", len(state.History))
	}
}
