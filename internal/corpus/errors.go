package corpus

import (
	"errors"
	"fmt"

	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Error codes for corpus problems.
const (
	ErrCodeRead      = "E_CORPUS_READ"
	ErrCodeParse     = "E_CORPUS_PARSE"
	ErrCodeSchema    = "E_CORPUS_SCHEMA"
	ErrCodeInvariant = "E_CORPUS_INVARIANT"
	ErrCodeFilter    = "E_CORPUS_FILTER"
)

// Error describes an invalid corpus.
type Error struct {
	Code    string
	CaseID  string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	prefix := e.Code
	if e.Pos.IsValid() {
		prefix = fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code)
	}
	switch {
	case e.CaseID != "" && e.Field != "":
		return fmt.Sprintf("%s: case %s: %s: %s", prefix, e.CaseID, e.Field, e.Message)
	case e.CaseID != "":
		return fmt.Sprintf("%s: case %s: %s", prefix, e.CaseID, e.Message)
	default:
		return fmt.Sprintf("%s: %s", prefix, e.Message)
	}
}

// IsError returns true if err is a corpus error.
// Uses errors.As to handle wrapped errors.
func IsError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

// HasCode returns true if err is a corpus error with the given code.
func HasCode(err error, code string) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Code == code
}

// schemaError converts the first CUE error into an *Error with its position.
func schemaError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &Error{Code: ErrCodeSchema, Message: err.Error()}
	}
	first := errs[0]
	ce := &Error{Code: ErrCodeSchema, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}
