// Package attachment turns an uploaded file into text folded into the
// outgoing query.
package attachment

import (
	"context"
	"log/slog"
	"strings"

	"github.com/user/tickerchat/internal/types"
)

const (
	// DefaultInstruction replaces an empty query when a file is attached.
	DefaultInstruction = "Please analyze the attached document."
	// FailureMarker stands in for the document when it could not be parsed.
	FailureMarker = "[The attached document could not be processed.]"
)

// Result is the outcome of extracting text from an attachment.
type Result struct {
	OK       bool
	Filename string
	Text     string
}

// Preprocessor extracts attachment text through an Uploader.
type Preprocessor struct {
	uploader types.Uploader
	budget   *Budget
}

// New creates a Preprocessor. budget may be nil to keep documents whole.
func New(uploader types.Uploader, budget *Budget) *Preprocessor {
	return &Preprocessor{uploader: uploader, budget: budget}
}

// Extract uploads att and returns its text. Any failure yields OK=false.
func (p *Preprocessor) Extract(ctx context.Context, att *types.Attachment) Result {
	if p.uploader == nil {
		return Result{Filename: att.Name}
	}
	res, err := p.uploader.Upload(ctx, att)
	if err != nil {
		slog.Warn("attachment upload failed", "file", att.Name, "error", err)
		return Result{Filename: att.Name}
	}

	name := res.Filename
	if name == "" {
		name = att.Name
	}
	text := res.Content
	if isHTML(name, att.ContentType, text) {
		md, err := toMarkdown(text)
		if err != nil {
			slog.Warn("html conversion failed, using raw text", "file", name, "error", err)
		} else {
			text = md
		}
	}
	if p.budget != nil {
		text = p.budget.Truncate(text)
	}
	return Result{OK: true, Filename: name, Text: text}
}

// Fold merges att into query. Without an attachment the query is returned
// unchanged. With one, the result is never empty: a missing query becomes
// DefaultInstruction and a failed extraction becomes FailureMarker.
func (p *Preprocessor) Fold(ctx context.Context, query string, att *types.Attachment) (string, Result) {
	if att == nil {
		return query, Result{}
	}

	res := p.Extract(ctx, att)
	return Compose(query, res), res
}

// Compose builds the outgoing query from the user's text and an extraction
// result.
func Compose(query string, res Result) string {
	text := strings.TrimSpace(query)
	if text == "" {
		text = DefaultInstruction
	}
	doc := FailureMarker
	if res.OK {
		doc = res.Text
	}

	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n\n--- Document: ")
	b.WriteString(res.Filename)
	b.WriteString(" ---\n")
	b.WriteString(doc)
	return b.String()
}
