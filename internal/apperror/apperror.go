// Copyright 2026 The chainconsumer Authors
// This file is part of chainconsumer.
//
// chainconsumer is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// chainconsumer is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with chainconsumer. If not, see <http://www.gnu.org/licenses/>.

// Package apperror classifies fatal errors into the kinds the ingestion
// daemon's supervisor needs to tell apart when deciding how to log and exit.
package apperror

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind names a class of fatal error. The ingestion daemon never recovers from
// any of these: every kind terminates the process and relies on an external
// supervisor to restart it.
type Kind string

const (
	ConfigLoad        Kind = "config_load"
	DbConnect         Kind = "db_connect"
	DbQuery           Kind = "db_query"
	UpstreamTransport Kind = "upstream_transport"
	UpstreamStatus    Kind = "upstream_status"
	InvalidMessage    Kind = "invalid_message"
	StreamClosed      Kind = "stream_closed"
	ChannelSend       Kind = "channel_send"
	Join              Kind = "join"
)

// Error wraps an underlying cause with a Kind so callers at the process
// boundary can log a stable, greppable tag alongside the message.
type Error struct {
	Kind  Kind
	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// Wrap attaches kind to err and records a stack trace at the call site.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, cause: errors.WithStack(err)}
}

// Wrapf formats a message and attaches kind, in one step.
func Wrapf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, cause: errors.Errorf(format, args...)}
}

// KindOf returns the Kind attached to err, or "" if err was never wrapped by
// this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
