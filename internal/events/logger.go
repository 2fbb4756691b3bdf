// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package events

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/logging"
)

// zerologAdapter bridges watermill's logger interface onto the global
// zerolog logger.
type zerologAdapter struct {
	logger zerolog.Logger
}

// NewLoggerAdapter returns a watermill.LoggerAdapter backed by the
// process logger, tagged with the bus component.
func NewLoggerAdapter() watermill.LoggerAdapter {
	return &zerologAdapter{logger: logging.WithComponent("events")}
}

func (a *zerologAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.event(a.logger.Error().Err(err), fields).Msg(msg)
}

func (a *zerologAdapter) Info(msg string, fields watermill.LogFields) {
	a.event(a.logger.Info(), fields).Msg(msg)
}

func (a *zerologAdapter) Debug(msg string, fields watermill.LogFields) {
	a.event(a.logger.Debug(), fields).Msg(msg)
}

func (a *zerologAdapter) Trace(msg string, fields watermill.LogFields) {
	a.event(a.logger.Trace(), fields).Msg(msg)
}

func (a *zerologAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	ctx := a.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &zerologAdapter{logger: ctx.Logger()}
}

func (a *zerologAdapter) event(e *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	return e
}
