// Package errors defines the one domain error the delta pipeline raises.
// Every failure carries the pipeline stage it happened in and a code naming
// what went wrong, so callers branch on CodeOf instead of matching message
// text. Errors wrap a cause when there is one and play well with the stdlib
// errors.Is/As machinery.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Stage is the pipeline stage an error was raised in.
type Stage uint8

const (
	StageUnknown Stage = iota
	Parse              // lexing or parsing a control script
	Fold               // folding commands into a database model
	Delta              // computing the delta between two models
	Emit               // serializing commands back to script text
	Cluster            // talking to a Kusto cluster
	File               // reading or writing script files
	Config             // parameter file loading or overrides
)

// String implements fmt.Stringer.
func (s Stage) String() string {
	switch s {
	case Parse:
		return "parse"
	case Fold:
		return "fold"
	case Delta:
		return "delta"
	case Emit:
		return "emit"
	case Cluster:
		return "cluster"
	case File:
		return "file"
	case Config:
		return "config"
	}
	return "delta-kusto"
}

// Code names what went wrong, independent of where.
type Code uint8

const (
	Unknown            Code = iota
	MalformedScript         // the script text did not lex or parse as a control command
	UnsupportedCommand      // the command kind is not supported by the engine
	MissingEntity           // a command references a table or entity absent from the model
	BadPolicy               // a policy payload failed to deserialize or had an unexpected shape
	BadArguments            // the caller supplied invalid arguments or configuration
	IOFailed                // file or network I/O failed
	HTTPFailed              // the HTTP layer failed below the service protocol
	ServiceFault            // the service answered with an error or an unusable response
	Timeout                 // the operation timed out or was cancelled
)

// String implements fmt.Stringer.
func (c Code) String() string {
	switch c {
	case MalformedScript:
		return "malformed-script"
	case UnsupportedCommand:
		return "unsupported-command"
	case MissingEntity:
		return "missing-entity"
	case BadPolicy:
		return "bad-policy"
	case BadArguments:
		return "bad-arguments"
	case IOFailed:
		return "io-failed"
	case HTTPFailed:
		return "http-failed"
	case ServiceFault:
		return "service-fault"
	case Timeout:
		return "timeout"
	}
	return "unknown"
}

// Error is the delta-kusto domain error.
type Error struct {
	Stage  Stage
	Code   Code
	Detail string
	Cause  error
}

// New builds an error from a formatted detail message.
func New(stage Stage, code Code, format string, args ...interface{}) *Error {
	return &Error{Stage: stage, Code: code, Detail: fmt.Sprintf(format, args...)}
}

// Wrap builds an error around a cause, with a formatted detail message
// describing what the pipeline was doing when the cause surfaced.
func Wrap(stage Stage, code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{Stage: stage, Code: code, Detail: fmt.Sprintf(format, args...), Cause: cause}
}

// Error implements error: "stage: detail: cause", dropping empty parts.
func (e *Error) Error() string {
	parts := make([]string, 0, 3)
	parts = append(parts, e.Stage.String())
	if e.Detail != "" {
		parts = append(parts, e.Detail)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// CodeOf extracts the Code of the first *Error in err's chain, or Unknown.
func CodeOf(err error) Code {
	var domainErr *Error
	if stderrors.As(err, &domainErr) {
		return domainErr.Code
	}
	return Unknown
}

// The management endpoint reports failures as a OneApiError envelope. It is
// decoded into a typed shape; anything that does not fit yields nil so the
// caller can fall back to a plain HTTP error.

type oneAPIEnvelope struct {
	OneAPIErrors []struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"OneApiErrors"`
}

// FromOneAPI translates a OneApiError response body into an Error. Returns
// nil when the payload is not a recognizable OneApiError envelope.
func FromOneAPI(payload []byte, stage Stage) *Error {
	var envelope oneAPIEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil
	}

	code := ServiceFault
	messages := make([]string, 0, len(envelope.OneAPIErrors))
	for _, entry := range envelope.OneAPIErrors {
		if entry.Error.Message == "" {
			continue
		}
		messages = append(messages, entry.Error.Message)
		switch entry.Error.Code {
		case "Timeout", "RequestExecutionTimeout":
			code = Timeout
		case "BadRequest":
			code = BadArguments
		}
	}
	if len(messages) == 0 {
		return nil
	}
	return New(stage, code, "%s", strings.Join(messages, "; "))
}
