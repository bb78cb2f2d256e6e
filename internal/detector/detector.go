// Package detector classifies team messages as potential information
// requests. Classification is advisory: the caller decides whether to
// materialize a request, and failures degrade to a negative result
// instead of propagating.
package detector

import (
	"context"
	"fmt"

	"github.com/andrehe001/semanticworkbench/internal/config"
	"github.com/andrehe001/semanticworkbench/internal/domain"
)

// Classifier is the pluggable scoring strategy behind Detect.
type Classifier interface {
	Classify(ctx context.Context, history []domain.Message, latest string) (domain.DetectionResult, error)
}

const defaultThreshold = 0.8

// Detector applies a confidence threshold and priority defaulting on top
// of a Classifier.
type Detector struct {
	classifier      Classifier
	threshold       float64
	defaultPriority string
}

// New builds a Detector from config. Provider "rules" needs no
// credentials; "model" calls the Anthropic API.
func New(cfg config.DetectorConfig) (Detector, error) {
	var c Classifier
	switch cfg.Provider {
	case "", "rules":
		c = Rules{}
	case "model":
		m, err := NewModel(cfg)
		if err != nil {
			return Detector{}, err
		}
		c = m
	default:
		return Detector{}, fmt.Errorf("unknown detector provider %q", cfg.Provider)
	}
	return NewWithClassifier(c, cfg), nil
}

// NewWithClassifier wires an explicit classifier, mainly for tests.
func NewWithClassifier(c Classifier, cfg config.DetectorConfig) Detector {
	threshold := cfg.Threshold
	if threshold <= 0 || threshold > 1 {
		threshold = defaultThreshold
	}
	priority := cfg.DefaultPriority
	if !domain.ValidPriority(priority) {
		priority = domain.PriorityMedium
	}
	return Detector{classifier: c, threshold: threshold, defaultPriority: priority}
}

// Detect classifies the latest message given prior conversation context.
// Results below the confidence threshold, and any classifier failure,
// come back negative. Detect never returns an error.
func (d Detector) Detect(ctx context.Context, history []domain.Message, latest string) domain.DetectionResult {
	res, err := d.classifier.Classify(ctx, history, latest)
	if err != nil {
		return domain.DetectionResult{
			IsRequest:  false,
			Reason:     "classification unavailable: " + err.Error(),
			Confidence: 0,
		}
	}
	if res.Confidence < 0 {
		res.Confidence = 0
	}
	if res.Confidence > 1 {
		res.Confidence = 1
	}
	if !domain.ValidPriority(res.Priority) {
		res.Priority = d.defaultPriority
	}
	if res.IsRequest && res.Confidence < d.threshold {
		res.IsRequest = false
		res.Reason = fmt.Sprintf("confidence %.2f below threshold %.2f: %s", res.Confidence, d.threshold, res.Reason)
	}
	return res
}
