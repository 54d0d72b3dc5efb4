package config

import (
	"fmt"

	"cuelang.org/go/cue/token"
)

// Error codes.
const (
	ErrCodeNotFound = "C001" // Config file missing
	ErrCodeParse    = "C002" // Syntax error
	ErrCodeSchema   = "C003" // Value does not satisfy the schema
	ErrCodeInvalid  = "C004" // Semantic validation failed
)

// Error describes a configuration problem.
type Error struct {
	Code    string
	Field   string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *Error) Error() string {
	prefix := e.Code
	if e.Pos.IsValid() {
		prefix = fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", prefix, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}
