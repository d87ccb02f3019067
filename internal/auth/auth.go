package auth

import (
	"context"

	"reposync/internal/logger"

	"go.uber.org/zap"
)

// Provider yields a token or reports that it has none.
type Provider interface {
	Name() string
	Token(ctx context.Context) (string, bool)
}

// Chain asks each provider in order and returns the first token found.
type Chain []Provider

func (c Chain) Token(ctx context.Context) (string, bool) {
	for _, p := range c {
		if tok, ok := p.Token(ctx); ok {
			logger.Log.Debug("token resolved",
				zap.String("provider", p.Name()))
			return tok, true
		}
	}

	return "", false
}

// Func adapts the chain to the accessor shape config.Settings expects.
func (c Chain) Func(ctx context.Context) func() (string, bool) {
	return func() (string, bool) {
		return c.Token(ctx)
	}
}

// Default builds the standard lookup order: environment, configured value,
// token file, then the git credential helper for remoteURL.
func Default(configured, tokenFile, remoteURL string) Chain {
	return Chain{
		Env("REPOSYNC_TOKEN", "GIT_TOKEN"),
		Static(configured),
		File(tokenFile),
		GitCredential(remoteURL),
	}
}
