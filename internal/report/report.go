// Package report delivers completion reports and digests for tracked
// sessions. A session's notify target selects the backend by scheme:
// "slack:<channel>", "discord:<channelID>", or "mailto:<address>" (a bare
// address containing "@" is treated as mailto).
package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/peakwatch/internal/config"
	"github.com/zulandar/peakwatch/internal/models"
	"github.com/zulandar/peakwatch/internal/tracker"
)

// Router routes reports to the configured delivery backends. It implements
// tracker.ReportDispatcher.
type Router struct {
	slack   *SlackNotifier
	discord *DiscordNotifier
	email   *EmailNotifier
}

// NewRouter builds a Router with every backend whose credentials are
// configured. Backends left unconfigured reject targets addressed to them.
func NewRouter(cfg config.NotifyConfig) (*Router, error) {
	r := &Router{}
	if cfg.Slack.BotToken != "" {
		r.slack = NewSlackNotifier(cfg.Slack.BotToken)
	}
	if cfg.Discord.BotToken != "" {
		d, err := NewDiscordNotifier(cfg.Discord.BotToken)
		if err != nil {
			return nil, err
		}
		r.discord = d
	}
	if cfg.Email.Sender != "" {
		r.email = NewEmailNotifier(cfg.Email)
	}
	return r, nil
}

// Backends returns the notify target schemes with a configured backend.
func (r *Router) Backends() []string {
	var schemes []string
	if r.slack != nil {
		schemes = append(schemes, "slack")
	}
	if r.discord != nil {
		schemes = append(schemes, "discord")
	}
	if r.email != nil {
		schemes = append(schemes, "mailto")
	}
	return schemes
}

// Dispatch formats and delivers a completion report for a terminal session.
func (r *Router) Dispatch(ctx context.Context, sess *models.Session, history []models.ViewerSample, analysis tracker.Analysis) error {
	subject := fmt.Sprintf("[Peakwatch] %s — peak %s viewers", sess.Title, formatCount(sess.MaxViewers))
	body := FormatReport(sess, history, analysis)
	return r.SendTo(ctx, sess.NotifyTarget, subject, body)
}

// SendTo delivers a message to a notify target.
func (r *Router) SendTo(ctx context.Context, target, subject, body string) error {
	scheme, dest, err := SplitTarget(target)
	if err != nil {
		return err
	}

	switch scheme {
	case "slack":
		if r.slack == nil {
			return fmt.Errorf("report: no Slack notifier configured for target %q", target)
		}
		return r.slack.Send(ctx, dest, subject+"\n"+body)
	case "discord":
		if r.discord == nil {
			return fmt.Errorf("report: no Discord notifier configured for target %q", target)
		}
		return r.discord.Send(ctx, dest, subject+"\n"+body)
	case "mailto":
		if r.email == nil {
			return fmt.Errorf("report: no email notifier configured for target %q", target)
		}
		return r.email.Send(ctx, dest, subject, body)
	default:
		return fmt.Errorf("report: unrecognized notify target %q", target)
	}
}

// SplitTarget splits a notify target into scheme and destination. A bare
// email address is accepted as shorthand for mailto.
func SplitTarget(target string) (scheme, dest string, err error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", "", fmt.Errorf("report: empty notify target")
	}
	if i := strings.Index(target, ":"); i > 0 {
		scheme, dest = target[:i], target[i+1:]
		switch scheme {
		case "slack", "discord", "mailto":
			if dest == "" {
				return "", "", fmt.Errorf("report: notify target %q has no destination", target)
			}
			return scheme, dest, nil
		}
	}
	if strings.Contains(target, "@") {
		return "mailto", target, nil
	}
	return "", "", fmt.Errorf("report: unrecognized notify target %q", target)
}

// FormatReport renders the completion report as plain text, suitable for
// chat messages and email bodies alike.
func FormatReport(sess *models.Session, history []models.ViewerSample, analysis tracker.Analysis) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", sess.Title)
	if sess.Channel != "" {
		fmt.Fprintf(&b, "%s\n", sess.Channel)
	}
	b.WriteString("\n")

	peakAt := ""
	if sess.MaxViewersTime != nil {
		peakAt = " at " + sess.MaxViewersTime.Format("15:04:05")
	}
	fmt.Fprintf(&b, "Peak viewers: %s%s\n", formatCount(sess.MaxViewers), peakAt)

	if len(history) > 0 {
		sum, minV := 0, history[0].Viewers
		for _, h := range history {
			sum += h.Viewers
			if h.Viewers < minV {
				minV = h.Viewers
			}
		}
		fmt.Fprintf(&b, "Average viewers: %s\n", formatCount(sum/len(history)))
		fmt.Fprintf(&b, "Minimum viewers: %s\n", formatCount(minV))
	}

	if !analysis.Empty() {
		b.WriteString("\nPhase averages:\n")
		for _, p := range analysis.PhaseAverages {
			fmt.Fprintf(&b, "  %s: %s\n", p.Label, formatCount(p.Average))
		}

		b.WriteString("\nTrends:\n")
		fmt.Fprintf(&b, "  Total live time: %s\n", formatDuration(analysis.DurationMinutes))
		if analysis.DeclineStart != nil {
			fmt.Fprintf(&b, "  Viewers started declining at %s\n", analysis.DeclineStart.Format("15:04:05"))
		}
		for _, spike := range analysis.Spikes {
			fmt.Fprintf(&b, "  %s %s (%+.0f%%)\n", spike.Time.Format("15:04:05"), spike.Direction, spike.ChangePct)
		}
	}

	b.WriteString("\n")
	if sess.StartTime != nil {
		fmt.Fprintf(&b, "Tracking started: %s\n", sess.StartTime.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(&b, "Data points: %d\n", len(history))
	return b.String()
}

// FormatDigest renders a summary of sessions completed during a period.
func FormatDigest(sessions []models.Session, since time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Peakwatch digest — %d session(s) completed since %s\n\n",
		len(sessions), since.Format("2006-01-02 15:04"))
	for _, s := range sessions {
		title := s.Title
		if title == "" {
			title = s.URL
		}
		fmt.Fprintf(&b, "  %s — peak %s viewers (%s)\n", title, formatCount(s.MaxViewers), s.ID)
	}
	return b.String()
}

// formatDuration renders minutes as "Xh Ym" or "Ym".
func formatDuration(minutes float64) string {
	total := int(minutes)
	h, m := total/60, total%60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

// formatCount renders an integer with thousands separators.
func formatCount(n int) string {
	s := fmt.Sprintf("%d", n)
	if n < 0 {
		return s
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	return strings.Join(parts, ",")
}
