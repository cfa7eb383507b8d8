package interview

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/ziadismael/DevPath/interviewer/internal/model/persona"
)

// NoCodeMessage is the tool result when neither the editor nor the model
// supplied code.
const NoCodeMessage = "No code found to analyze. Please ask the user to type something in the editor."

// editorMinLength is the length the editor contents must exceed before they
// win over the model's code_snippet.
//
// This is a length check, not a staleness check: an edit that lands after the
// utterance that triggered the tool call still wins. Callers depend on the
// threshold, so it stays as is.
const editorMinLength = 5

// CodeSource records where an analyzed snapshot came from.
type CodeSource string

const (
	SourceEditor   CodeSource = "editor"
	SourceArgument CodeSource = "argument"
	SourceNone     CodeSource = "none"
)

// CodeSnapshot is the read-only value handed to the analyzer.
type CodeSnapshot struct {
	Code            string
	Source          CodeSource
	EditorUpdatedAt time.Time
}

// Empty reports whether there is nothing to analyze.
func (c CodeSnapshot) Empty() bool {
	return c.Source == SourceNone
}

// ResolveSnapshot picks the code to analyze. The editor contents win when
// longer than editorMinLength characters; otherwise the model's snippet is
// used when non-empty.
func ResolveSnapshot(shared string, updatedAt time.Time, snippet string) CodeSnapshot {
	if utf8.RuneCountInString(shared) > editorMinLength {
		return CodeSnapshot{Code: shared, Source: SourceEditor, EditorUpdatedAt: updatedAt}
	}
	if snippet != "" {
		return CodeSnapshot{Code: snippet, Source: SourceArgument, EditorUpdatedAt: updatedAt}
	}
	return CodeSnapshot{Source: SourceNone, EditorUpdatedAt: updatedAt}
}

// CodeReviewer is the session handle the analyze_code tool calls into.
type CodeReviewer interface {
	AnalyzeCode(ctx context.Context, snippet string) string
}

// AnalyzeCodeTool exposes code review to the language model.
type AnalyzeCodeTool struct {
	reviewer CodeReviewer
}

var _ tool.InvokableTool = (*AnalyzeCodeTool)(nil)

// NewAnalyzeCodeTool binds the tool to a session.
func NewAnalyzeCodeTool(reviewer CodeReviewer) *AnalyzeCodeTool {
	return &AnalyzeCodeTool{reviewer: reviewer}
}

// Info describes the tool to the model.
func (t *AnalyzeCodeTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: string(persona.AnalyzeCode),
		Desc: "Analyze the candidate's code for time complexity and syntax errors. Call this when the candidate asks for a review of their code or says they are done.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"code_snippet": {
				Type:     schema.String,
				Desc:     "The code as you last understood it. The live editor contents are used instead when available.",
				Required: false,
			},
		}),
	}, nil
}

type analyzeCodeArgs struct {
	CodeSnippet string `json:"code_snippet"`
}

// InvokableRun never returns an error: every failure is reported to the model
// as a plain string result.
func (t *AnalyzeCodeTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args analyzeCodeArgs
	if raw := strings.TrimSpace(argumentsInJSON); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			args = analyzeCodeArgs{}
		}
	}
	return t.reviewer.AnalyzeCode(ctx, args.CodeSnippet), nil
}
