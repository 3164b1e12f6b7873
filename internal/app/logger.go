package app

import (
	"go.uber.org/zap"
)

// NewLogger builds a JSON production logger, or a console logger in development.
func NewLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}

	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	return cfg.Build()
}
