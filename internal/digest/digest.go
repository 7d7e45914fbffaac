// internal/digest/digest.go
package digest

import (
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/pkoukk/tiktoken-go"

	"github.com/user/clawmon/internal/types"
)

const (
	defaultModel     = "gpt-4"
	defaultMaxTokens = 200
	ellipsis         = "…"
)

// Digester measures and shortens action content by token count.
type Digester struct {
	tokenizer *tiktoken.Tiktoken
	maxTokens int
}

// New creates a digester. model selects the tokenizer (e.g. "gpt-4");
// maxTokens bounds the length of excerpts.
func New(model string, maxTokens int) (*Digester, error) {
	if model == "" {
		model = defaultModel
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Fallback to cl100k_base for unknown models
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &Digester{
		tokenizer: enc,
		maxTokens: maxTokens,
	}, nil
}

// MaxTokens returns the excerpt budget.
func (d *Digester) MaxTokens() int { return d.maxTokens }

// Tokens returns the token count of text.
func (d *Digester) Tokens(text string) int {
	if text == "" {
		return 0
	}
	return len(d.tokenizer.Encode(text, nil, nil))
}

// ActionTokens counts the tokens of an action's readable text.
func (d *Digester) ActionTokens(a types.Action) int {
	return d.Tokens(Text(a))
}

// Excerpt returns the action's readable text cut to the token budget.
func (d *Digester) Excerpt(a types.Action) string {
	return d.Truncate(Text(a), d.maxTokens)
}

// Truncate cuts text to at most limit tokens, marking the cut with an
// ellipsis.
func (d *Digester) Truncate(text string, limit int) string {
	tokens := d.tokenizer.Encode(text, nil, nil)
	if len(tokens) <= limit {
		return text
	}
	return strings.TrimRight(d.tokenizer.Decode(tokens[:limit]), " \n") + ellipsis
}

// Text returns the human-readable text of an action. HTML tool results are
// converted to markdown; tool calls render as name(args).
func Text(a types.Action) string {
	switch a.Type {
	case types.ActionToolCall:
		if len(a.ToolArgs) == 0 {
			return a.ToolName + "()"
		}
		return a.ToolName + "(" + string(a.ToolArgs) + ")"
	case types.ActionToolResult:
		if looksLikeHTML(a.Content) {
			md, err := htmltomarkdown.ConvertString(a.Content)
			if err == nil {
				return strings.TrimSpace(md)
			}
		}
	}
	return a.Content
}

func looksLikeHTML(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(s, "<") {
		return false
	}
	return strings.HasPrefix(s, "<!doctype html") ||
		strings.Contains(s, "<html") ||
		strings.Contains(s, "<body") ||
		strings.Contains(s, "</")
}
