package telemetry

import (
	"fmt"
	"log/slog"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkOverstretch    BookmarkType = "overstretch"
	BookmarkBucklingOnset  BookmarkType = "buckling_onset"
	BookmarkEnergySpike    BookmarkType = "energy_spike"
	BookmarkSettled        BookmarkType = "settled"
	BookmarkVolumeSaturate BookmarkType = "volume_saturated"
)

// Detection thresholds.
const (
	overstretchRatio = 1.5  // max spring stretch ratio
	bucklingMinFrac  = 0.05 // buckled fraction needed for an onset
	energySpikeGain  = 4.0  // kinetic energy over rolling average
	settledSpeed     = 0.01 // mean particle speed (m/s)
	settledSamples   = 5
)

// Bookmark represents an automatically triggered bookmark.
type Bookmark struct {
	Type        BookmarkType `csv:"type" json:"type"`
	Step        int          `csv:"step" json:"step"`
	Description string       `csv:"description" json:"description"`
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark",
		"type", string(b.Type),
		"step", b.Step,
		"description", b.Description,
	)
}

// BookmarkDetector detects notable solver moments in a stream of stats
// samples.
type BookmarkDetector struct {
	// Rolling history (circular buffer)
	history     []StepStats
	historySize int
	historyIdx  int
	historyFull bool

	// State tracking
	overstretched bool // last sample exceeded overstretchRatio
	saturated     bool // last sample used every volume pass
	settledCount  int  // consecutive samples below settledSpeed

	maxVolumePasses int
}

// NewBookmarkDetector creates a detector with the given history size.
// maxVolumePasses is the volume pass limit; zero disables saturation
// bookmarks.
func NewBookmarkDetector(historySize, maxVolumePasses int) *BookmarkDetector {
	if historySize < 3 {
		historySize = 3
	}
	return &BookmarkDetector{
		history:         make([]StepStats, historySize),
		historySize:     historySize,
		maxVolumePasses: maxVolumePasses,
	}
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats StepStats) []Bookmark {
	var bookmarks []Bookmark
	add := func(b *Bookmark) {
		if b != nil {
			bookmarks = append(bookmarks, *b)
		}
	}

	add(bd.checkOverstretch(stats))
	add(bd.checkVolumeSaturation(stats))
	add(bd.checkSettled(stats))
	if len(bd.getHistory()) >= 3 {
		add(bd.checkBucklingOnset(stats))
		add(bd.checkEnergySpike(stats))
	}

	bd.addToHistory(stats)
	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats StepStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

func (bd *BookmarkDetector) getHistory() []StepStats {
	if bd.historyFull {
		return bd.history
	}
	return bd.history[:bd.historyIdx]
}

func (bd *BookmarkDetector) average(field func(StepStats) float64) float64 {
	history := bd.getHistory()
	if len(history) == 0 {
		return 0
	}
	var sum float64
	for _, h := range history {
		sum += field(h)
	}
	return sum / float64(len(history))
}

// checkOverstretch triggers when the stretch ratio first crosses the limit.
func (bd *BookmarkDetector) checkOverstretch(stats StepStats) *Bookmark {
	over := stats.StretchMax > overstretchRatio
	defer func() { bd.overstretched = over }()
	if !over || bd.overstretched {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkOverstretch,
		Step:        stats.Step,
		Description: fmt.Sprintf("Spring stretched to %.2fx rest length", stats.StretchMax),
	}
}

// checkVolumeSaturation triggers when the volume solve first uses all its
// passes.
func (bd *BookmarkDetector) checkVolumeSaturation(stats StepStats) *Bookmark {
	if bd.maxVolumePasses <= 0 {
		return nil
	}
	sat := stats.VolumePasses >= bd.maxVolumePasses
	defer func() { bd.saturated = sat }()
	if !sat || bd.saturated {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkVolumeSaturate,
		Step:        stats.Step,
		Description: fmt.Sprintf("Thickness volume used all %d passes", bd.maxVolumePasses),
	}
}

func (bd *BookmarkDetector) checkBucklingOnset(stats StepStats) *Bookmark {
	avg := bd.average(func(s StepStats) float64 { return s.BuckledFrac })
	if stats.BuckledFrac < bucklingMinFrac || stats.BuckledFrac <= 2*avg {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkBucklingOnset,
		Step:        stats.Step,
		Description: fmt.Sprintf("%.0f%% of bending elements buckled (average %.0f%%)", stats.BuckledFrac*100, avg*100),
	}
}

func (bd *BookmarkDetector) checkEnergySpike(stats StepStats) *Bookmark {
	avg := bd.average(func(s StepStats) float64 { return s.KineticEnergy })
	if avg <= 0 || stats.KineticEnergy <= energySpikeGain*avg {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkEnergySpike,
		Step:        stats.Step,
		Description: fmt.Sprintf("Kinetic energy %.4gJ is %.1fx average (%.4gJ)", stats.KineticEnergy, stats.KineticEnergy/avg, avg),
	}
}

func (bd *BookmarkDetector) checkSettled(stats StepStats) *Bookmark {
	if stats.Particles == 0 || stats.SpeedMean >= settledSpeed {
		bd.settledCount = 0
		return nil
	}
	bd.settledCount++
	if bd.settledCount != settledSamples { // trigger exactly once
		return nil
	}
	return &Bookmark{
		Type:        BookmarkSettled,
		Step:        stats.Step,
		Description: fmt.Sprintf("Cloth at rest for %d samples (mean speed %.4f m/s)", settledSamples, stats.SpeedMean),
	}
}
