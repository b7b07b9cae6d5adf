// Package logging provides the structured logger shared by the Task
// Queue, Resilience Monitor, LLM Triage Adapter, and Control Surface.
// Interactive CLI output keeps plain fmt.Printf narration; this logger is
// for the long-running background components. Built on go.uber.org/zap.
package logging

import "go.uber.org/zap"

// New builds a production zap logger, or a development logger with
// human-readable console output when dev is true.
func New(dev bool) (*zap.SugaredLogger, error) {
	var logger *zap.Logger
	var err error
	if dev {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// Nop returns a logger that discards everything, for tests that don't want
// log noise.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
