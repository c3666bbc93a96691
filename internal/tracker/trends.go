package tracker

import (
	"math"
	"time"

	"github.com/zulandar/peakwatch/internal/models"
)

const (
	// spikeThresholdPct is the minimum percentage change between adjacent
	// samples to count as a surge or drop.
	spikeThresholdPct = 20.0
	// maxSpikes caps the number of spike events reported.
	maxSpikes = 5
	// declineScanWindow bounds how far past the peak the decline scan looks.
	declineScanWindow = 20
	// assumedSampleInterval is the fallback cadence used for the duration
	// estimate when the sample timestamps carry no span.
	assumedSampleInterval = 30 * time.Second
)

// Spike directions.
const (
	SpikeSurge = "surge"
	SpikeDrop  = "drop"
)

// PhaseAverage is the integer mean viewer count over one quartile of the
// sample history.
type PhaseAverage struct {
	Label   string `json:"label"`
	Average int    `json:"average"`
}

// Spike is a sudden viewer-count change between adjacent samples.
type Spike struct {
	Time      time.Time `json:"time"`
	ChangePct float64   `json:"change_pct"`
	Direction string    `json:"direction"`
}

// Analysis is the result of analyzing a session's viewer history.
type Analysis struct {
	SampleCount     int            `json:"sample_count"`
	PhaseAverages   []PhaseAverage `json:"phase_averages"`
	PeakTime        time.Time      `json:"peak_time"`
	DeclineStart    *time.Time     `json:"decline_start"`
	Spikes          []Spike        `json:"spikes"`
	DurationMinutes float64        `json:"duration_minutes"`
}

// Empty reports whether the history carried too little signal to analyze.
func (a Analysis) Empty() bool {
	return a.SampleCount < 3
}

var phaseLabels = [4]string{"1st quarter", "2nd quarter", "3rd quarter", "4th quarter"}

// AnalyzeTrends derives trend statistics from a viewer-sample history in
// temporal order. Histories shorter than 3 samples yield an empty result.
func AnalyzeTrends(samples []models.ViewerSample) Analysis {
	n := len(samples)
	if n < 3 {
		return Analysis{}
	}

	viewers := make([]int, n)
	for i, s := range samples {
		viewers[i] = s.Viewers
	}

	a := Analysis{
		SampleCount:     n,
		PhaseAverages:   phaseAverages(viewers),
		PeakTime:        samples[peakIndex(viewers)].Time,
		Spikes:          detectSpikes(samples, viewers),
		DurationMinutes: estimateDuration(samples),
	}

	if i, ok := declineOnset(viewers); ok {
		t := samples[i].Time
		a.DeclineStart = &t
	}
	return a
}

// phaseAverages splits the sequence into 4 contiguous quartiles, the
// remainder absorbed into the last, and returns the integer mean of each.
func phaseAverages(viewers []int) []PhaseAverage {
	n := len(viewers)
	q := n / 4
	if q < 1 {
		q = 1
	}

	bounds := [4][2]int{{0, q}, {q, 2 * q}, {2 * q, 3 * q}, {3 * q, n}}
	phases := make([]PhaseAverage, 0, 4)
	for i, b := range bounds {
		lo, hi := b[0], b[1]
		if lo > n {
			lo = n
		}
		if hi > n {
			hi = n
		}
		avg := 0
		if hi > lo {
			sum := 0
			for _, v := range viewers[lo:hi] {
				sum += v
			}
			avg = sum / (hi - lo)
		}
		phases = append(phases, PhaseAverage{Label: phaseLabels[i], Average: avg})
	}
	return phases
}

// peakIndex returns the index of the first sample achieving the global
// maximum viewer value.
func peakIndex(viewers []int) int {
	peak := 0
	for i, v := range viewers {
		if v > viewers[peak] {
			peak = i
		}
	}
	return peak
}

// declineOnset finds the first strict three-sample decrease after the peak.
// The anchor is the highest value among samples early enough to start a
// three-sample run; the scan is bounded to the next declineScanWindow
// samples.
func declineOnset(viewers []int) (int, bool) {
	n := len(viewers)
	if n < 3 {
		return 0, false
	}

	anchor := 0
	for i := 1; i+2 < n; i++ {
		if viewers[i] > viewers[anchor] {
			anchor = i
		}
	}

	limit := anchor + declineScanWindow
	if limit > n-2 {
		limit = n - 2
	}
	for i := anchor; i < limit; i++ {
		if viewers[i] > viewers[i+1] && viewers[i+1] > viewers[i+2] {
			return i, true
		}
	}
	return 0, false
}

// detectSpikes reports adjacent-sample changes of at least
// spikeThresholdPct, capped at maxSpikes events. Pairs with a zero prior
// value are skipped.
func detectSpikes(samples []models.ViewerSample, viewers []int) []Spike {
	var spikes []Spike
	for i := 1; i < len(viewers); i++ {
		prev := viewers[i-1]
		if prev == 0 {
			continue
		}
		change := float64(viewers[i]-prev) / float64(prev) * 100
		if math.Abs(change) < spikeThresholdPct {
			continue
		}
		direction := SpikeSurge
		if change < 0 {
			direction = SpikeDrop
		}
		spikes = append(spikes, Spike{
			Time:      samples[i].Time,
			ChangePct: change,
			Direction: direction,
		})
		if len(spikes) == maxSpikes {
			break
		}
	}
	return spikes
}

// estimateDuration computes the live duration in minutes from the first and
// last sample timestamps, falling back to an assumed fixed cadence when the
// timestamps carry no span.
func estimateDuration(samples []models.ViewerSample) float64 {
	span := samples[len(samples)-1].Time.Sub(samples[0].Time)
	if span > 0 {
		return span.Minutes()
	}
	return (time.Duration(len(samples)) * assumedSampleInterval).Minutes()
}
