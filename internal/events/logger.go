// Polarhub - Wearable Heart-Beat Ingest and HRV Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/polarhub

package events

import (
	"github.com/ThreeDotsLabs/watermill"

	"github.com/tomtom215/polarhub/internal/logging"
)

// WatermillLogger adapts the global zerolog logger to the
// watermill.LoggerAdapter interface. Watermill's trace chatter is mapped
// down to debug.
type WatermillLogger struct {
	fields watermill.LogFields
}

// NewWatermillLogger creates the adapter.
func NewWatermillLogger() *WatermillLogger {
	return &WatermillLogger{}
}

// Error implements watermill.LoggerAdapter.
func (l *WatermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	event := logging.Error().Err(err)
	for k, v := range l.fields.Add(fields) {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

// Info implements watermill.LoggerAdapter.
func (l *WatermillLogger) Info(msg string, fields watermill.LogFields) {
	event := logging.Info()
	for k, v := range l.fields.Add(fields) {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

// Debug implements watermill.LoggerAdapter.
func (l *WatermillLogger) Debug(msg string, fields watermill.LogFields) {
	event := logging.Debug()
	for k, v := range l.fields.Add(fields) {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

// Trace implements watermill.LoggerAdapter.
func (l *WatermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.Debug(msg, fields)
}

// With implements watermill.LoggerAdapter.
func (l *WatermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &WatermillLogger{fields: l.fields.Add(fields)}
}
