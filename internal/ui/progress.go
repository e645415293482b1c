package ui

import (
	"sync"
	"time"
)

// etaSmoothing is the weight of a new ETA sample against the previous one.
const etaSmoothing = 0.3

// ProgressTracker accumulates progress for the TUI. It is safe for
// concurrent use.
type ProgressTracker struct {
	mu          sync.Mutex
	stage       Stage
	current     int
	total       int
	currentFile string
	stageStart  time.Time
	baseCurrent int
	errors      int
	warnings    int
	lastETA     time.Duration
}

// ProgressStats is a snapshot of the tracker.
type ProgressStats struct {
	Stage       Stage
	Current     int
	Total       int
	Progress    float64
	ETA         time.Duration
	Rate        float64 // documents per second in the current stage
	CurrentFile string
	ErrorCount  int
	WarnCount   int
}

// NewProgressTracker creates a tracker in the scanning stage.
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{stage: StageScanning, stageStart: time.Now()}
}

// Update applies an event, switching stage when it changes.
func (p *ProgressTracker) Update(event ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.Stage != p.stage {
		p.stage = event.Stage
		p.stageStart = time.Now()
		p.lastETA = 0
		p.current = event.Current
		p.baseCurrent = event.Current
	}
	p.total = event.Total
	if event.Current > p.current {
		p.current = event.Current
	}
	if event.CurrentFile != "" {
		p.currentFile = event.CurrentFile
	}
}

// AddError counts an error or warning.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if event.IsWarn {
		p.warnings++
	} else {
		p.errors++
	}
}

// Stats returns the current snapshot.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := ProgressStats{
		Stage:       p.stage,
		Current:     p.current,
		Total:       p.total,
		CurrentFile: p.currentFile,
		ErrorCount:  p.errors,
		WarnCount:   p.warnings,
	}
	if p.total > 0 {
		stats.Progress = min(float64(p.current)/float64(p.total), 1.0)
	}
	if elapsed := time.Since(p.stageStart).Seconds(); elapsed > 0 {
		stats.Rate = float64(p.current) / elapsed
	}
	stats.ETA = p.etaLocked()
	return stats
}

// etaLocked estimates the remaining time from progress made since the
// stage's first event; it is zero until the stage has advanced. The
// estimate is smoothed so uneven embedding batches do not make it jump.
func (p *ProgressTracker) etaLocked() time.Duration {
	done := p.current - p.baseCurrent
	remaining := p.total - p.current
	if done <= 0 || remaining <= 0 {
		return 0
	}
	elapsed := time.Since(p.stageStart)
	raw := time.Duration(float64(elapsed) / float64(done) * float64(remaining))
	if p.lastETA == 0 {
		p.lastETA = raw
		return raw
	}
	p.lastETA = time.Duration(etaSmoothing*float64(raw) + (1-etaSmoothing)*float64(p.lastETA))
	return p.lastETA
}
