/*
Copyright © 2025 The laszoo Authors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package lzerr implements the agent's error taxonomy (spec.md §7): a
// closed set of Kinds rather than a name per failure site, so callers can
// branch on Is(err, KindX) instead of string matching.
package lzerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure the way spec.md §7 enumerates them.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindNotFound
	KindPermissionDenied
	KindSharedStoreUnavailable
	KindAlreadyEnrolled
	KindGroupNotFound
	KindTemplate
	KindSyncConflict
	KindHistory
	KindIO
	KindSerialization
	KindHTTP
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "Config"
	case KindNotFound:
		return "NotFound"
	case KindPermissionDenied:
		return "PermissionDenied"
	case KindSharedStoreUnavailable:
		return "SharedStoreUnavailable"
	case KindAlreadyEnrolled:
		return "AlreadyEnrolled"
	case KindGroupNotFound:
		return "GroupNotFound"
	case KindTemplate:
		return "Template"
	case KindSyncConflict:
		return "SyncConflict"
	case KindHistory:
		return "History"
	case KindIO:
		return "IO"
	case KindSerialization:
		return "Serialization"
	case KindHTTP:
		return "Http"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned throughout the agent. It
// carries a Kind, a human message, the path/group it concerns (if any),
// and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Path    string
	Group   string
	Cause   error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Path != "" {
		msg = fmt.Sprintf("%s (path=%s)", msg, e.Path)
	}
	if e.Group != "" {
		msg = fmt.Sprintf("%s (group=%s)", msg, e.Group)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether err (or anything it wraps) is a laszoo error of kind k.
func Is(err error, k Kind) bool {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind == k
	}
	return false
}

func New(k Kind, path string, message string) *Error {
	return &Error{Kind: k, Message: message, Path: path}
}

func Wrap(k Kind, path string, message string, cause error) *Error {
	return &Error{Kind: k, Message: message, Path: path, Cause: cause}
}

func NotFound(path string) *Error {
	return &Error{Kind: KindNotFound, Message: "path does not exist", Path: path}
}

func PermissionDenied(path string) *Error {
	return &Error{Kind: KindPermissionDenied, Message: "permission denied", Path: path}
}

func SharedStoreUnavailable(path string) *Error {
	return &Error{Kind: KindSharedStoreUnavailable, Message: "shared store is not mounted", Path: path}
}

func AlreadyEnrolled(path, group string) *Error {
	return &Error{Kind: KindAlreadyEnrolled, Message: "already enrolled; retry with force", Path: path, Group: group}
}

func GroupNotFound(group string) *Error {
	return &Error{Kind: KindGroupNotFound, Message: "unknown group", Group: group}
}

func Template(message string) *Error {
	return &Error{Kind: KindTemplate, Message: message}
}

func History(message string, cause error) *Error {
	return &Error{Kind: KindHistory, Message: message, Cause: cause}
}

func IO(path string, cause error) *Error {
	return &Error{Kind: KindIO, Message: "I/O failure", Path: path, Cause: cause}
}

func Serialization(path string, cause error) *Error {
	return &Error{Kind: KindSerialization, Message: "serialization failure", Path: path, Cause: cause}
}

func HTTP(message string, cause error) *Error {
	return &Error{Kind: KindHTTP, Message: message, Cause: cause}
}
