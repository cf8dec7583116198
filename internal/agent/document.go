package agent

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"unicode/utf8"
)

const maxDocumentBytes = 4 * 1024 * 1024

// DocumentAgent extracts text and metadata from files attached to a request.
type DocumentAgent struct{}

func NewDocumentAgent() *DocumentAgent { return &DocumentAgent{} }

func DocumentDescriptor() Descriptor {
	return Descriptor{
		Name:        "document-extract",
		Description: "Extract text and metadata from attached documents",
		Tools: []ToolSpec{
			{
				Name:        "extract_text",
				Description: "Return the readable text of a document",
				Parameters: []Parameter{
					{Name: "file_path", Description: "Path to the document", Required: true},
				},
			},
			{
				Name:        "metadata",
				Description: "Return size and type information for a document",
				Parameters: []Parameter{
					{Name: "file_path", Description: "Path to the document", Required: true},
				},
			},
		},
	}
}

func (a *DocumentAgent) Invoke(_ context.Context, tool string, args map[string]string) Result {
	path := args["file_path"]
	if path == "" {
		return Errorf("%s requires a file_path argument", tool)
	}

	switch tool {
	case "extract_text":
		data, err := os.ReadFile(path)
		if err != nil {
			return Errorf("extract_text: %v", err)
		}
		if len(data) > maxDocumentBytes {
			return Errorf("extract_text: %s exceeds %d bytes", path, maxDocumentBytes)
		}
		if bytes.HasPrefix(data, []byte("%PDF")) {
			return TextResult(extractPDFText(data))
		}
		if !utf8.Valid(data) {
			return Errorf("extract_text: %s is not a text document", path)
		}
		return TextResult(string(data))
	case "metadata":
		info, err := os.Stat(path)
		if err != nil {
			return Errorf("metadata: %v", err)
		}
		kind := "text"
		if data, err := os.ReadFile(path); err == nil && bytes.HasPrefix(data, []byte("%PDF")) {
			kind = "pdf"
		}
		return TextResult(fmt.Sprintf("file=%s size=%d type=%s modified=%s",
			info.Name(), info.Size(), kind, info.ModTime().UTC().Format("2006-01-02T15:04:05Z")))
	default:
		return Errorf("document-extract agent has no tool %q", tool)
	}
}

// extractPDFText pulls the printable runs out of a PDF stream. It is a
// best-effort extractor for uncompressed text objects; scanned or
// fully-compressed documents yield only a marker line.
func extractPDFText(data []byte) string {
	var out bytes.Buffer
	out.WriteString("[pdf] ")
	var run []byte
	inParens := false
	for _, b := range data {
		switch {
		case b == '(':
			inParens = true
		case b == ')':
			if inParens && len(run) >= 3 {
				out.Write(run)
				out.WriteByte(' ')
			}
			run = run[:0]
			inParens = false
		case inParens && b >= 0x20 && b < 0x7f:
			run = append(run, b)
		}
	}
	if out.Len() == len("[pdf] ") {
		out.WriteString("no extractable text (compressed or scanned document)")
	}
	return out.String()
}
