// Package scan runs the selected items through a classifier one at a time
// and publishes results incrementally.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mikey/phish-scanner/internal/config"
	"github.com/mikey/phish-scanner/internal/core"
	"github.com/mikey/phish-scanner/internal/metrics"
	"github.com/mikey/phish-scanner/internal/source"
	"github.com/mikey/phish-scanner/internal/utils"
	"go.uber.org/zap"
)

const defaultMaxBodyChars = 1000

// Selector exposes the active item list and the current selection
type Selector interface {
	Items() []core.EmailItem
	Selection() []int
}

// Observer is told about every published result
type Observer func(done, total int, result core.ScanResult)

// Pipeline classifies selections sequentially
type Pipeline struct {
	classifier    core.Classifier
	textProcessor *utils.TextProcessor
	maxBodyChars  int
	logger        *zap.Logger

	running  atomic.Bool
	results  ResultList
	observer Observer
}

// NewPipeline creates a scan pipeline
func NewPipeline(classifier core.Classifier, textProcessor *utils.TextProcessor, cfg config.ScanConfig, logger *zap.Logger) *Pipeline {
	maxBodyChars := cfg.MaxBodyChars
	if maxBodyChars <= 0 {
		maxBodyChars = defaultMaxBodyChars
	}
	return &Pipeline{
		classifier:    classifier,
		textProcessor: textProcessor,
		maxBodyChars:  maxBodyChars,
		logger:        logger,
	}
}

// SetObserver registers fn to be called after each published result
func (p *Pipeline) SetObserver(fn Observer) {
	p.observer = fn
}

// Results returns the published result list
func (p *Pipeline) Results() *ResultList {
	return &p.results
}

// Running reports whether a scan is in progress
func (p *Pipeline) Running() bool {
	return p.running.Load()
}

// RunSelected scans the current selection of sel
func (p *Pipeline) RunSelected(ctx context.Context, sel Selector) ([]core.ScanResult, error) {
	return p.Run(ctx, sel.Items(), sel.Selection())
}

// Run classifies items[selection[i]] in selection order. A call failure
// stops the scan and the results produced so far are kept and returned
// alongside the error.
func (p *Pipeline) Run(ctx context.Context, items []core.EmailItem, selection []int) ([]core.ScanResult, error) {
	if !p.running.CompareAndSwap(false, true) {
		return nil, core.ErrScanInProgress
	}
	defer p.running.Store(false)

	if err := p.classifier.Validate(); err != nil {
		if !errors.Is(err, core.ErrClassifierPrecondition) {
			err = fmt.Errorf("%w: %v", core.ErrClassifierPrecondition, err)
		}
		return nil, err
	}

	// The list may keep growing while we run; scan what existed at start.
	snapshot := make([]core.EmailItem, len(items))
	copy(snapshot, items)
	if err := source.ValidateSelection(selection, len(snapshot)); err != nil {
		return nil, err
	}
	order := append([]int(nil), selection...)

	runID := uuid.NewString()
	p.results.reset(runID, len(order))
	logger := p.logger.With(zap.String("run_id", runID), zap.String("classifier", p.classifier.Name()))
	logger.Info("Scan started", zap.Int("selected", len(order)), zap.Int("items", len(snapshot)))

	for i, idx := range order {
		input := p.textProcessor.ClassifierInput(snapshot[idx], p.maxBodyChars)

		start := time.Now()
		classification, err := p.classifier.Classify(ctx, input)
		elapsed := time.Since(start)

		switch {
		case err == nil:
			metrics.RecordClassifierCall(p.classifier.Name(), "success", elapsed)
		case errors.Is(err, core.ErrMalformedResponse):
			metrics.RecordClassifierCall(p.classifier.Name(), "malformed", elapsed)
			logger.Warn("Malformed classifier response, recording Unknown",
				zap.Int("item_index", idx),
				zap.Error(err))
			classification = core.UnknownClassification()
		default:
			metrics.RecordClassifierCall(p.classifier.Name(), "error", elapsed)
			logger.Error("Classifier call failed, aborting scan",
				zap.Int("item_index", idx),
				zap.Int("completed", i),
				zap.Int("remaining", len(order)-i),
				zap.Error(err))
			if !errors.Is(err, core.ErrClassifierCallFailed) {
				err = fmt.Errorf("%w: %v", core.ErrClassifierCallFailed, err)
			}
			return p.results.Snapshot(), err
		}

		result := core.ScanResult{
			ItemIndex:          idx,
			PredictedLabel:     classification.Label,
			ClassProbabilities: normalized(classification.Probabilities),
		}
		p.results.append(result)
		metrics.IncrementScanResult(string(result.PredictedLabel))

		logger.Debug("Item classified",
			zap.Int("item_index", idx),
			zap.String("label", string(result.PredictedLabel)),
			zap.Duration("duration", elapsed))

		if p.observer != nil {
			p.observer(i+1, len(order), result)
		}
	}

	logger.Info("Scan finished", zap.Int("results", p.results.Len()))
	return p.results.Snapshot(), nil
}

// normalized fills every known label, defaulting to 0
func normalized(probabilities map[core.Label]float64) map[core.Label]float64 {
	out := core.ZeroProbabilities()
	for _, l := range core.Labels {
		if p, ok := probabilities[l]; ok {
			out[l] = p
		}
	}
	return out
}
