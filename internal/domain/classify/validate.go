package classify

import (
	"errors"
	"fmt"
	"strings"
)

const maxPromptLength = 2000

// Validate checks a request before it enters the orchestrator.
func (r Request) Validate() error {
	if r.ID == "" {
		return errors.New("request id is required")
	}
	if r.ImageRef == "" {
		return errors.New("image reference is required")
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return errors.New("prompt is required")
	}
	if len(r.Prompt) > maxPromptLength {
		return fmt.Errorf("prompt exceeds %d characters", maxPromptLength)
	}
	if r.MinConfidence < 0 || r.MinConfidence > 1 {
		return fmt.Errorf("min_confidence %g outside [0,1]", r.MinConfidence)
	}
	return nil
}
