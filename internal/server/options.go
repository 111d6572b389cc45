package server

import (
	"runtime"

	"go.uber.org/zap"

	"example.com/bmffgate/internal/common"
	"example.com/bmffgate/internal/config"
)

// Options configures server creation.
type Options struct {
	StorageDir string
	// PresetsFile adds presets to the built-in set.
	PresetsFile string
	// DefaultPreset applies when a request names none.
	DefaultPreset string
	// Concurrency bounds simultaneous validations.
	Concurrency int
	MaxDepth    int
	QRSize      int
	MaxUpload   int64
	ResearchLog *common.ResearchLog
	Logger      *zap.Logger
}

func (o *Options) applyDefaults() {
	if o.Concurrency <= 0 {
		o.Concurrency = runtime.NumCPU()
	}
	if o.DefaultPreset == "" {
		o.DefaultPreset = config.DefaultPreset
	}
	if o.MaxUpload <= 0 {
		o.MaxUpload = 512 << 20
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// FromConfig maps daemon configuration onto server options.
func FromConfig(cfg config.Config, log *zap.Logger, research *common.ResearchLog) Options {
	return Options{
		StorageDir:    cfg.StorageDir,
		PresetsFile:   cfg.PresetsFile,
		DefaultPreset: cfg.Preset,
		Concurrency:   cfg.Concurrency,
		MaxDepth:      cfg.MaxDepth,
		QRSize:        cfg.Report.QRSize,
		ResearchLog:   research,
		Logger:        log,
	}
}
