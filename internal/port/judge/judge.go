// Package judge defines the external judgment function port.
//
// The judgment function is a natural-language model invoked for intent
// classification and result reflection. It is fallible and possibly slow;
// callers must schema-validate its output and treat validation failure as
// a typed, recoverable error, never assume well-formed output.
package judge

import "context"

// Request is one judgment invocation.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Judge produces a raw completion for a prompt. The caller owns parsing
// and schema validation of the returned text.
type Judge interface {
	Complete(ctx context.Context, req Request) (string, error)
}
