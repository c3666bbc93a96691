package report

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/zulandar/peakwatch/internal/models"
	"github.com/zulandar/peakwatch/internal/tracker"
)

func TestSplitTarget(t *testing.T) {
	tests := []struct {
		in      string
		scheme  string
		dest    string
		wantErr bool
	}{
		{"slack:C0123456", "slack", "C0123456", false},
		{"discord:987654321", "discord", "987654321", false},
		{"mailto:ops@example.com", "mailto", "ops@example.com", false},
		{"ops@example.com", "mailto", "ops@example.com", false},
		{"  slack:C0123456  ", "slack", "C0123456", false},
		{"", "", "", true},
		{"slack:", "", "", true},
		{"pager:oncall", "", "", true},
		{"just-a-name", "", "", true},
	}
	for _, tt := range tests {
		scheme, dest, err := SplitTarget(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("SplitTarget(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("SplitTarget(%q): %v", tt.in, err)
			continue
		}
		if scheme != tt.scheme || dest != tt.dest {
			t.Errorf("SplitTarget(%q) = (%q, %q), want (%q, %q)", tt.in, scheme, dest, tt.scheme, tt.dest)
		}
	}
}

func TestRouterBackends(t *testing.T) {
	r := &Router{}
	if got := r.Backends(); len(got) != 0 {
		t.Errorf("bare router backends = %v, want none", got)
	}

	r = &Router{slack: &SlackNotifier{}, email: &EmailNotifier{}}
	got := r.Backends()
	want := []string{"slack", "mailto"}
	if len(got) != len(want) {
		t.Fatalf("backends = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("backends = %v, want %v", got, want)
		}
	}
}

func TestSendTo_UnconfiguredBackends(t *testing.T) {
	r := &Router{}
	for _, target := range []string{"slack:C0123456", "discord:987654321", "mailto:ops@example.com"} {
		if err := r.SendTo(context.Background(), target, "subject", "body"); err == nil {
			t.Errorf("target %q: expected error with no backend configured", target)
		}
	}
}

// fakeSlack records posted messages.
type fakeSlack struct {
	channel string
	options int
	err     error
}

func (f *fakeSlack) PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error) {
	f.channel = channelID
	f.options = len(options)
	return channelID, "123.456", f.err
}

func TestSlackNotifier_Send(t *testing.T) {
	fake := &fakeSlack{}
	n := &SlackNotifier{client: fake}
	if err := n.Send(context.Background(), "C0123456", "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if fake.channel != "C0123456" {
		t.Errorf("posted to %q", fake.channel)
	}
	if fake.options == 0 {
		t.Error("no message options passed")
	}

	fake.err = errors.New("channel_not_found")
	if err := n.Send(context.Background(), "C0123456", "hello"); err == nil {
		t.Error("expected error from client failure")
	}
}

func TestRouter_DispatchViaSlack(t *testing.T) {
	fake := &fakeSlack{}
	r := &Router{slack: &SlackNotifier{client: fake}}

	now := time.Date(2026, 8, 20, 21, 30, 0, 0, time.UTC)
	sess := &models.Session{
		ID: "lv-rep00001", Title: "Launch day", Channel: "Acme",
		NotifyTarget: "slack:C0123456",
		MaxViewers:   1234, MaxViewersTime: &now,
	}
	if err := r.Dispatch(context.Background(), sess, nil, tracker.Analysis{}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if fake.channel != "C0123456" {
		t.Errorf("dispatched to %q", fake.channel)
	}
}

func TestEmailNotifier_Send(t *testing.T) {
	var (
		gotAddr string
		gotFrom string
		gotTo   []string
		gotMsg  string
	)
	n := &EmailNotifier{
		host: "smtp.example.com", port: 587,
		sender: "bot@example.com", password: "secret",
		send: func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, string(msg)
			return nil
		},
	}

	if err := n.Send(context.Background(), "ops@example.com", "Stream ended", "peak 42"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotAddr != "smtp.example.com:587" {
		t.Errorf("addr = %q", gotAddr)
	}
	if gotFrom != "bot@example.com" || len(gotTo) != 1 || gotTo[0] != "ops@example.com" {
		t.Errorf("from %q to %v", gotFrom, gotTo)
	}
	for _, want := range []string{"Subject: Stream ended", "To: ops@example.com", "peak 42"} {
		if !strings.Contains(gotMsg, want) {
			t.Errorf("message missing %q:\n%s", want, gotMsg)
		}
	}
}

func TestEmailNotifier_CancelledContext(t *testing.T) {
	n := &EmailNotifier{send: func(string, smtp.Auth, string, []string, []byte) error {
		t.Error("send called despite cancelled context")
		return nil
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := n.Send(ctx, "ops@example.com", "s", "b"); err == nil {
		t.Error("expected context error")
	}
}

func TestFormatReport(t *testing.T) {
	start := time.Date(2026, 8, 20, 20, 0, 0, 0, time.UTC)
	peak := start.Add(90 * time.Second)
	sess := &models.Session{
		ID: "lv-fmt00001", Title: "Launch day", Channel: "Acme",
		MaxViewers: 1500, MaxViewersTime: &peak, StartTime: &start,
	}

	history := make([]models.ViewerSample, 6)
	for i, v := range []int{1000, 1200, 1500, 1400, 1100, 800} {
		history[i] = models.ViewerSample{Time: start.Add(time.Duration(i) * 30 * time.Second), Viewers: v}
	}
	analysis := tracker.AnalyzeTrends(history)

	got := FormatReport(sess, history, analysis)
	for _, want := range []string{
		"Launch day",
		"Acme",
		"Peak viewers: 1,500 at 20:01:30",
		"Average viewers: 1,166",
		"Minimum viewers: 800",
		"Phase averages:",
		"1st quarter",
		"4th quarter",
		"Trends:",
		"Total live time:",
		"Tracking started: 2026-08-20 20:00:00",
		"Data points: 6",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("report missing %q:\n%s", want, got)
		}
	}
}

func TestFormatReport_NoHistory(t *testing.T) {
	sess := &models.Session{ID: "lv-fmt00002", Title: "Quiet stream"}
	got := FormatReport(sess, nil, tracker.Analysis{})
	if !strings.Contains(got, "Peak viewers: 0") {
		t.Errorf("report missing zero peak:\n%s", got)
	}
	if strings.Contains(got, "Average viewers") {
		t.Errorf("average rendered with no history:\n%s", got)
	}
	if !strings.Contains(got, "Data points: 0") {
		t.Errorf("report missing data point count:\n%s", got)
	}
}

func TestFormatDigest(t *testing.T) {
	since := time.Date(2026, 8, 19, 9, 0, 0, 0, time.UTC)
	sessions := []models.Session{
		{ID: "lv-dig00001", Title: "Morning show", MaxViewers: 2500},
		{ID: "lv-dig00002", URL: "https://example.com/live"},
	}
	got := FormatDigest(sessions, since)
	for _, want := range []string{
		"2 session(s) completed since 2026-08-19 09:00",
		"Morning show — peak 2,500 viewers (lv-dig00001)",
		"https://example.com/live — peak 0 viewers (lv-dig00002)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("digest missing %q:\n%s", want, got)
		}
	}
}

func TestFormatCount(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{-5, "-5"},
	}
	for _, tt := range tests {
		if got := formatCount(tt.in); got != tt.want {
			t.Errorf("formatCount(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{2, "2m"},
		{59.9, "59m"},
		{60, "1h 0m"},
		{135, "2h 15m"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
