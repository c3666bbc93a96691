package report

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/peakwatch/internal/store"
)

// digestPeriod is the lookback window for each digest run.
const digestPeriod = 24 * time.Hour

// Digest posts a periodic summary of completed sessions to a fixed target.
type Digest struct {
	cron   *cron.Cron
	store  *store.Store
	router *Router
	target string
	out    io.Writer
}

// NewDigest schedules a digest using a standard 5-field cron expression.
func NewDigest(st *store.Store, router *Router, schedule, target string, out io.Writer) (*Digest, error) {
	if out == nil {
		out = io.Discard
	}
	d := &Digest{
		cron:   cron.New(),
		store:  st,
		router: router,
		target: target,
		out:    out,
	}
	if _, err := d.cron.AddFunc(schedule, d.run); err != nil {
		return nil, fmt.Errorf("report: digest schedule %q: %w", schedule, err)
	}
	return d, nil
}

// Start begins the digest schedule in its own goroutine.
func (d *Digest) Start() {
	d.cron.Start()
}

// Stop halts the schedule; a run already in flight finishes.
func (d *Digest) Stop() {
	d.cron.Stop()
}

// run builds and delivers one digest. Suppressed when nothing completed in
// the period.
func (d *Digest) run() {
	since := time.Now().Add(-digestPeriod)
	sessions, err := d.store.CompletedSince(since)
	if err != nil {
		log.Printf("digest: %v", err)
		return
	}
	if len(sessions) == 0 {
		return
	}

	subject := fmt.Sprintf("[Peakwatch] Daily digest — %d session(s) completed", len(sessions))
	body := FormatDigest(sessions, since)
	if err := d.router.SendTo(context.Background(), d.target, subject, body); err != nil {
		log.Printf("digest: %v", err)
		return
	}
	fmt.Fprintf(d.out, "Digest delivered to %s (%d sessions)\n", d.target, len(sessions))
}
