// Package logging builds the service logger and scrubs sensitive values
// before they reach log output.
package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger builds the root zap logger for the given environment.
// "local" gets a human-readable development logger; everything else
// gets JSON production output.
func NewLogger(env string) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if env == "local" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
