package scan

import (
	"sync"

	"github.com/mikey/phish-scanner/internal/core"
)

// ResultList is the append-only list published while a scan runs. Readers
// always see a prefix of the final list.
type ResultList struct {
	mu      sync.RWMutex
	runID   string
	results []core.ScanResult
}

// RunID identifies the scan that produced the current list
func (l *ResultList) RunID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.runID
}

// Len returns the number of published results
func (l *ResultList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.results)
}

// Snapshot returns a copy of the published results
func (l *ResultList) Snapshot() []core.ScanResult {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]core.ScanResult, len(l.results))
	for i, r := range l.results {
		out[i] = copyResult(r)
	}
	return out
}

// Clear drops the published results
func (l *ResultList) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runID = ""
	l.results = nil
}

func (l *ResultList) reset(runID string, capacity int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runID = runID
	l.results = make([]core.ScanResult, 0, capacity)
}

func (l *ResultList) append(r core.ScanResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = append(l.results, copyResult(r))
}

func copyResult(r core.ScanResult) core.ScanResult {
	probabilities := make(map[core.Label]float64, len(r.ClassProbabilities))
	for k, v := range r.ClassProbabilities {
		probabilities[k] = v
	}
	r.ClassProbabilities = probabilities
	return r
}
