// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrMalformedJudgment indicates the external judgment function returned
// output that failed schema validation. Always recoverable: callers fall
// back to a conservative default judgment.
var ErrMalformedJudgment = errors.New("malformed judgment output")
