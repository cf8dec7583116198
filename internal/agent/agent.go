// Package agent defines the capability contract every backend agent honors:
// a named set of tools described by a Descriptor, invoked through one
// Invoke(tool, arguments) call returning the uniform Result envelope.
package agent

import (
	"context"
	"fmt"
	"strings"
)

// ContentBlock is one typed payload inside a Result.
type ContentBlock struct {
	Type string `json:"type" yaml:"type"`
	Text string `json:"text" yaml:"text"`
}

// Result is the envelope every tool invocation returns. Failures are
// carried in-band via IsError, never as Go errors, so one failing step
// cannot crash the rest of a workflow.
type Result struct {
	IsError bool           `json:"isError" yaml:"is_error"`
	Content []ContentBlock `json:"content" yaml:"content"`
}

// Text concatenates the text of every content block.
func (r Result) Text() string {
	var sb strings.Builder
	for _, c := range r.Content {
		sb.WriteString(c.Text)
	}
	return sb.String()
}

func TextResult(text string) Result {
	return Result{Content: []ContentBlock{{Type: "text", Text: text}}}
}

func Errorf(format string, args ...any) Result {
	return Result{
		IsError: true,
		Content: []ContentBlock{{Type: "text", Text: fmt.Sprintf(format, args...)}},
	}
}

// Agent executes one of its declared tools. Implementations must be safe
// for concurrent Invoke calls.
type Agent interface {
	Invoke(ctx context.Context, tool string, args map[string]string) Result
}
