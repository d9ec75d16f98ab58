package change

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a contained failure.
type ErrorCode string

const (
	// ErrCodeEncoding: a local record could not be serialized. Never sent.
	ErrCodeEncoding ErrorCode = "ENCODING_FAILED"

	// ErrCodeDecoding: a received payload could not be parsed.
	ErrCodeDecoding ErrorCode = "DECODING_FAILED"

	// ErrCodeApplication: the payload decoded but the store rejected it.
	ErrCodeApplication ErrorCode = "APPLICATION_FAILED"
)

// Error is a failure scoped to one record or one message. It names the
// offending entity so logs can be correlated across peers.
type Error struct {
	Code ErrorCode

	// Kind is the mutation kind being processed.
	Kind Kind

	// UUID and Label identify the record, when known.
	UUID  string
	Label string

	Err error
}

func (e *Error) Error() string {
	if e.UUID != "" {
		return fmt.Sprintf("%s: %s %s (%s): %v", e.Code, e.Kind, e.UUID, e.Label, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewEncodingError wraps err as an encoding failure of rec.
func NewEncodingError(rec Record, err error) *Error {
	return &Error{
		Code:  ErrCodeEncoding,
		Kind:  rec.Kind(),
		UUID:  rec.ID(),
		Label: rec.Label(),
		Err:   err,
	}
}

// NewDecodingError wraps err as a decoding failure of a kind message.
func NewDecodingError(kind Kind, err error) *Error {
	return &Error{Code: ErrCodeDecoding, Kind: kind, Err: err}
}

// NewApplicationError wraps a store rejection of the identified record.
func NewApplicationError(kind Kind, uuid, label string, err error) *Error {
	return &Error{
		Code:  ErrCodeApplication,
		Kind:  kind,
		UUID:  uuid,
		Label: label,
		Err:   err,
	}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsEncodingError reports whether err is an encoding failure.
func IsEncodingError(err error) bool {
	return CodeOf(err) == ErrCodeEncoding
}

// IsDecodingError reports whether err is a decoding failure.
func IsDecodingError(err error) bool {
	return CodeOf(err) == ErrCodeDecoding
}

// IsApplicationError reports whether err is a store rejection.
func IsApplicationError(err error) bool {
	return CodeOf(err) == ErrCodeApplication
}
