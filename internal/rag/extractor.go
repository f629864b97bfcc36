package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/medgraph/internal/inference/engine"
	"github.com/yungbote/medgraph/internal/kg"
	"github.com/yungbote/medgraph/internal/platform/graphstore"
	"github.com/yungbote/medgraph/internal/platform/logger"
)

// ExtractionParseError means the model answered but not with usable JSON,
// even after the quote repair.
type ExtractionParseError struct {
	Raw string
	Err error
}

func (e *ExtractionParseError) Error() string {
	return fmt.Sprintf("rag: extraction is not valid json: %v", e.Err)
}

func (e *ExtractionParseError) Unwrap() error { return e.Err }

var ErrEmptyQuery = errors.New("rag: model returned no query")

type StructuredExtractor struct {
	engine engine.Engine
	log    *logger.Logger
}

func NewStructuredExtractor(e engine.Engine, log *logger.Logger) *StructuredExtractor {
	if log == nil {
		log = logger.Nop()
	}
	return &StructuredExtractor{engine: e, log: log.With("component", "StructuredExtractor")}
}

// Extract asks the model for symptoms, disease name, severity and duration.
// Every failure returns an empty Extraction next to the error.
func (x *StructuredExtractor) Extract(ctx context.Context, text string, temperature float64) (kg.Extraction, error) {
	out, err := x.engine.Complete(ctx, []engine.Message{
		engine.System(extractionSystemPrompt),
		engine.User(extractionTemplate + "\n\n" + text),
	}, engine.Options{Temperature: temperature})
	if err != nil {
		return kg.Extraction{}, fmt.Errorf("rag: extract: %w", err)
	}
	return parseExtraction(out.Text)
}

func parseExtraction(raw string) (kg.Extraction, error) {
	content := stripFences(raw)
	var e kg.Extraction
	err := json.Unmarshal([]byte(content), &e)
	if err == nil {
		return e, nil
	}
	// Models sometimes answer with Python-style single quotes.
	if rerr := json.Unmarshal([]byte(strings.ReplaceAll(content, "'", `"`)), &e); rerr == nil {
		return e, nil
	}
	return kg.Extraction{}, &ExtractionParseError{Raw: raw, Err: err}
}

// stripFences removes a surrounding ``` or ```json fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{[(") {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// SchemaSource supplies live labels and relationship types for the query prompt.
type SchemaSource interface {
	Schema(ctx context.Context) (*graphstore.SchemaInfo, error)
}

type QueryGenerator struct {
	engine engine.Engine
	schema SchemaSource
	log    *logger.Logger
}

func NewQueryGenerator(e engine.Engine, schema SchemaSource, log *logger.Logger) *QueryGenerator {
	if log == nil {
		log = logger.Nop()
	}
	return &QueryGenerator{engine: e, schema: schema, log: log.With("component", "QueryGenerator")}
}

// Generate returns exactly one statement with fences, backticks and
// semicolons removed. It does not check that the statement is read-only.
func (g *QueryGenerator) Generate(ctx context.Context, question string) (string, error) {
	system := querySystemPrompt
	if extra := g.schemaInfo(ctx); extra != "" {
		system += "\n\n补充Schema信息：\n" + extra
	}
	out, err := g.engine.Complete(ctx, []engine.Message{
		engine.System(system),
		engine.User(queryUserPrefix + question),
	}, engine.Options{Temperature: 0})
	if err != nil {
		return "", fmt.Errorf("rag: generate query: %w", err)
	}
	q := CleanStatement(out.Text)
	if q == "" {
		return "", ErrEmptyQuery
	}
	return q, nil
}

func (g *QueryGenerator) schemaInfo(ctx context.Context) string {
	if g.schema == nil {
		return ""
	}
	s, err := g.schema.Schema(ctx)
	if err != nil {
		g.log.Debug("schema lookup failed, using built-in schema", "error", err)
		return ""
	}
	if len(s.Labels) == 0 && len(s.RelationshipTypes) == 0 {
		return ""
	}
	return "- 现有节点标签：" + strings.Join(s.Labels, ", ") + "\n- 现有关系类型：" + strings.Join(s.RelationshipTypes, ", ")
}

// CleanStatement strips markdown and keeps the first statement only.
func CleanStatement(raw string) string {
	s := stripFences(raw)
	s = strings.Trim(s, "` \t\r\n")
	if i := statementEnd(s); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(strings.Trim(s, "`"))
}

// statementEnd finds the first ';' outside string literals and backquoted
// names, or -1.
func statementEnd(s string) int {
	var quote rune
	escaped := false
	for i, r := range s {
		switch {
		case escaped:
			escaped = false
		case quote != 0 && r == '\\':
			escaped = true
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"' || r == '`':
			quote = r
		case r == ';':
			return i
		}
	}
	return -1
}
