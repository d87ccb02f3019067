package cmd

import (
	"context"
	"fmt"

	"reposync/internal/auth"
	"reposync/internal/daemon"
	"reposync/internal/logger"
	"reposync/internal/model"
	"reposync/internal/pipeline"
	"reposync/internal/repository"

	"go.uber.org/zap"
)

// consoleSink prints user-facing log lines of in-process operations.
type consoleSink struct{}

func (consoleSink) OnStatus(model.SyncStatus) {}

func (consoleSink) OnCountdown(int) {}

func (consoleSink) OnLog(message string, level model.LogLevel) {
	switch level {
	case model.LevelError:
		fmt.Println("✗", message)
	case model.LevelSuccess:
		fmt.Println("✓", message)
	default:
		fmt.Println(" ", message)
	}
}

// newOrchestrator builds an initialized orchestrator from the loaded config.
// The caller must Close it.
func newOrchestrator(ctx context.Context, sink daemon.Sink) (*daemon.Orchestrator, *pipeline.Filter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	filter, err := pipeline.NewFilter(cfg.SourceDir, cfg.IgnoreList)
	if err != nil {
		return nil, nil, err
	}

	history := repository.NewHistoryRepository()
	lastSync, err := history.LastSuccess()
	if err != nil {
		logger.Log.Warn("failed to read last sync time", zap.Error(err))
	}

	tokens := auth.Default(cfg.Token, cfg.TokenFile, cfg.RemoteURL)
	orch := daemon.NewOrchestrator(daemon.Options{
		Settings:         cfg.Settings(tokens.Func(ctx)),
		Filter:           filter,
		Sink:             sink,
		History:          history,
		LastSync:         lastSync,
		Interval:         cfg.Interval,
		RemoteName:       cfg.RemoteName,
		Branch:           cfg.Branch,
		AuthorName:       cfg.AuthorName,
		AuthorEmail:      cfg.AuthorEmail,
		BinaryExtensions: cfg.BinaryExtensions,
		SizeThreshold:    cfg.SizeRatioThreshold,
		PreviewLimit:     cfg.PreviewLimit,
	})

	if err := orch.Initialize(ctx); err != nil {
		return nil, nil, err
	}

	return orch, filter, nil
}

// withOrchestrator runs fn against a short-lived in-process orchestrator.
func withOrchestrator(ctx context.Context, fn func(orch *daemon.Orchestrator) error) error {
	orch, _, err := newOrchestrator(ctx, consoleSink{})
	if err != nil {
		return err
	}

	defer func(orch *daemon.Orchestrator) {
		_ = orch.Close()
	}(orch)

	return fn(orch)
}
