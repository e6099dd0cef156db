package mpcerrors

import (
	"errors"
	"fmt"
	"strings"
)

// Error is the typed failure of a room, a round machine, the aggregator or the codec.
type Error struct {
	Kind     Kind
	Message  string
	Room     string
	Culprits []uint16 // party indices of faulty or malicious senders
	Original error
}

type Kind int

const (
	KindUnknown Kind = iota
	KindJoin
	KindProtocol
	KindAggregation
	KindEncoding
)

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Kind.String(), e.Message))
	if len(e.Culprits) > 0 {
		sb.WriteString(fmt.Sprintf(" (culprits: %v)", e.Culprits))
	}
	if e.Room != "" {
		sb.WriteString(fmt.Sprintf(" [room: %s]", e.Room))
	}
	if e.Original != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Original))
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Original
}

func (k Kind) String() string {
	switch k {
	case KindJoin:
		return "JOIN"
	case KindProtocol:
		return "PROTOCOL"
	case KindAggregation:
		return "AGGREGATION"
	case KindEncoding:
		return "ENCODING"
	default:
		return "UNKNOWN"
	}
}

// NewJoinError reports an unreachable coordinator or a rejected room.
func NewJoinError(room string, msg string, err error) *Error {
	return &Error{
		Kind:     KindJoin,
		Message:  msg,
		Room:     room,
		Original: err,
	}
}

// NewProtocolError reports a peer message rejected by a round machine.
func NewProtocolError(room string, culprits []uint16, msg string, err error) *Error {
	return &Error{
		Kind:     KindProtocol,
		Message:  msg,
		Room:     room,
		Culprits: culprits,
		Original: err,
	}
}

// NewAggregationError reports a wrong count or an inconsistent set of partial signatures.
func NewAggregationError(culprits []uint16, msg string) *Error {
	return &Error{
		Kind:     KindAggregation,
		Message:  msg,
		Culprits: culprits,
	}
}

// NewEncodingError reports a malformed transaction field.
func NewEncodingError(msg string, err error) *Error {
	return &Error{
		Kind:     KindEncoding,
		Message:  msg,
		Original: err,
	}
}

// Is reports whether err or anything it wraps is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// Culprits returns the offending senders carried by err, if any.
func Culprits(err error) []uint16 {
	var e *Error
	if !errors.As(err, &e) {
		return nil
	}
	return e.Culprits
}

// StageError is the terminal error of an orchestrated session.
type StageError struct {
	Stage string
	Room  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed in room %q: %v", e.Stage, e.Room, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
