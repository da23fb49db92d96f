package factory

import (
	"fmt"

	"github.com/mikey/phish-scanner/internal/adapters/bedrock"
	"github.com/mikey/phish-scanner/internal/adapters/gemini"
	"github.com/mikey/phish-scanner/internal/adapters/inference"
	"github.com/mikey/phish-scanner/internal/adapters/openai"
	"github.com/mikey/phish-scanner/internal/config"
	"github.com/mikey/phish-scanner/internal/core"
	"go.uber.org/zap"
)

// ClassifierFactory creates classifiers
type ClassifierFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewClassifierFactory creates a new classifier factory
func NewClassifierFactory(cfg *config.Config, logger *zap.Logger) *ClassifierFactory {
	return &ClassifierFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateClassifier creates a classifier based on the configuration
func (f *ClassifierFactory) CreateClassifier() (core.Classifier, error) {
	classifierConfig := f.cfg.GetClassifier()

	switch classifierConfig.Provider {
	case inference.Name, "":
		return inference.NewClient(classifierConfig, f.logger), nil
	case bedrock.Name:
		factory := bedrock.NewFactory(f.cfg, f.logger)
		return factory.CreateClassifier()
	case gemini.Name:
		factory := gemini.NewFactory(f.cfg, f.logger)
		return factory.CreateClassifier()
	case openai.Name:
		factory := openai.NewFactory(f.cfg, f.logger)
		return factory.CreateClassifier()
	default:
		return nil, fmt.Errorf("unsupported classifier provider: %s", classifierConfig.Provider)
	}
}
