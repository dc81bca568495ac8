package service

import (
	"errors"
	"fmt"
)

// Kind classifies a service error.
type Kind string

const (
	KindInvalidArgument         Kind = "invalid_argument"
	KindInvalidBasename         Kind = "invalid_basename"
	KindIncorrectFileTypes      Kind = "incorrect_file_types"
	KindIncorrectFastqFileTypes Kind = "incorrect_fastq_file_types"
	KindNotFound                Kind = "not_found"
	KindChecksumDuplicate       Kind = "checksum_duplicate"
	KindBlobUnprocessable       Kind = "blob_unprocessable"
	KindProtectedOrigin         Kind = "protected_origin"
	KindInternal                Kind = "internal"
)

// User-facing messages.
const (
	MsgChecksumDuplicate       = "checksum matches existing file"
	MsgBlobUnprocessable       = "Blob id could not be processed. Blob id is invalid or file is missing."
	MsgProtectedOrigin         = "attachment was created by an analysis and cannot be modified"
	MsgInvalidBasename         = "basename may only contain letters, numbers, hyphens and underscores"
	MsgIncorrectFileTypes      = "files selected for concatenation must all be single-end or all be paired-end"
	MsgIncorrectFastqFileTypes = "files selected for concatenation must all be compressed or all be uncompressed fastq files"
	MsgIncompletePairs         = "paired-end files must be selected together with their mates"
)

// Error is the typed error returned by every service operation.
type Error struct {
	Kind Kind
	Code int
	Path []string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UserError is the {path, message} payload surfaced to callers.
type UserError struct {
	Path    []string `json:"path"`
	Message string   `json:"message"`
}

func newError(kind Kind, err error, path ...string) *Error {
	return &Error{Kind: kind, Code: defaultErrorCodeByKind(kind), Path: path, Err: err}
}

func invalidArgument(err error, path ...string) error {
	return newError(KindInvalidArgument, err, path...)
}

func notFound(err error) error {
	return newError(KindNotFound, err)
}

func checksumDuplicate(path ...string) error {
	return newError(KindChecksumDuplicate, errors.New(MsgChecksumDuplicate), path...)
}

func blobUnprocessable(cause error, path ...string) error {
	err := errors.New(MsgBlobUnprocessable)
	if cause != nil {
		err = fmt.Errorf("%s: %w", MsgBlobUnprocessable, cause)
	}
	return newError(KindBlobUnprocessable, err, path...)
}

func protectedOrigin(id string) error {
	return newError(KindProtectedOrigin, fmt.Errorf("%s: %s", MsgProtectedOrigin, id))
}

func internalError(err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	return newError(KindInternal, err)
}

// KindOf returns the kind of err, or "" when err is nil. Untyped errors are
// internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindInternal
}

// CodeOf returns the numeric code of err, or 0 when err is nil.
func CodeOf(err error) int {
	if err == nil {
		return 0
	}
	var typed *Error
	if errors.As(err, &typed) {
		if typed.Code != 0 {
			return typed.Code
		}
		return defaultErrorCodeByKind(typed.Kind)
	}
	return ErrCodeInternal
}

// userMessage returns the message shown to callers. Internal errors keep
// their full text; typed errors with a fixed message drop the wrapped cause.
func userMessage(err error) string {
	switch KindOf(err) {
	case KindChecksumDuplicate:
		return MsgChecksumDuplicate
	case KindBlobUnprocessable:
		return MsgBlobUnprocessable
	case KindProtectedOrigin:
		return MsgProtectedOrigin
	default:
		return err.Error()
	}
}

// ToUserError renders err as a payload entry. The error's own path wins
// over fallback.
func ToUserError(err error, fallback ...string) UserError {
	path := fallback
	var typed *Error
	if errors.As(err, &typed) && len(typed.Path) > 0 {
		path = typed.Path
	}
	out := UserError{Path: append([]string(nil), path...), Message: userMessage(err)}
	if out.Path == nil {
		out.Path = []string{}
	}
	return out
}
