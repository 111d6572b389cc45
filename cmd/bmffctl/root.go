package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"example.com/bmffgate/internal/common"
	"example.com/bmffgate/internal/config"
)

type commandContext struct {
	configFlag  string
	logLevel    string
	logDir      string
	researchLog string

	cfg      *config.Config
	logger   *zap.Logger
	closeLog func() error
}

func (c *commandContext) config() (config.Config, error) {
	if c.cfg != nil {
		return *c.cfg, nil
	}
	cfg := config.Default()
	if c.configFlag != "" {
		loaded, err := config.Load(c.configFlag)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	c.cfg = &cfg
	return cfg, nil
}

// log returns the CLI logger. It writes JSON to stderr and, with --log-dir,
// to a rotated file in that directory.
func (c *commandContext) log() (*zap.Logger, error) {
	if c.logger != nil {
		return c.logger, nil
	}
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	opts := cfg.Logs.LogOptions("bmffctl.log")
	opts.Directory = c.logDir
	opts.Level = c.logLevel
	logger, closeFn, err := common.NewLogger(opts, zap.String("component", "bmffctl"))
	if err != nil {
		return nil, err
	}
	c.logger, c.closeLog = logger, closeFn
	return logger, nil
}

func (c *commandContext) close() error {
	if c.closeLog == nil {
		return nil
	}
	return c.closeLog()
}

// research returns the research log selected by flag or configuration, or
// nil when unknown boxes should not be persisted.
func (c *commandContext) research() (*common.ResearchLog, error) {
	path := c.researchLog
	if path == "" {
		cfg, err := c.config()
		if err != nil {
			return nil, err
		}
		path = cfg.ResearchLog
	}
	switch path {
	case "", "off":
		return nil, nil
	case "default":
		p, err := common.DefaultResearchLogPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return common.NewResearchLog(path), nil
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}
	root := &cobra.Command{
		Use:           "bmffctl",
		Short:         "Validate ISO base media (MP4) files",
		Version:       fmt.Sprintf("%s (built %s)", version, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.close()
		},
	}
	root.PersistentFlags().StringVarP(&ctx.configFlag, "config", "c", "", "configuration file (.yaml or .toml)")
	root.PersistentFlags().StringVar(&ctx.logLevel, "log-level", "warn", "log level")
	root.PersistentFlags().StringVar(&ctx.logDir, "log-dir", "", "also write rotated logs to this directory")
	root.PersistentFlags().StringVar(&ctx.researchLog, "research-log", "", `unknown box log path ("default" for ~/.bmffgate, "off" to disable)`)

	root.AddCommand(newValidateCommand(ctx))
	root.AddCommand(newBatchCommand(ctx))
	root.AddCommand(newCaptureCommand(ctx))
	root.AddCommand(newReplayCommand())
	root.AddCommand(newRulesCommand())
	root.AddCommand(newPresetsCommand(ctx))
	root.AddCommand(newReportCommand(ctx))
	root.AddCommand(newResearchCommand(ctx))
	return root
}
