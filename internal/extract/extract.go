// Package extract turns free text into a knowledge graph fragment using Claude.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ajitpratap0/cortex-graph/internal/models"
	"github.com/ajitpratap0/cortex-graph/pkg/tokenizer"
	"github.com/ajitpratap0/cortex-graph/pkg/xmlutil"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-haiku-4-5"

// maxInputTokens bounds the text sent in one extraction request.
const maxInputTokens = 24000

// Extractor produces entities and relations from text.
type Extractor interface {
	Extract(ctx context.Context, text string) (*models.KnowledgeGraph, error)
}

// extractionPromptTemplate is the prompt used to build a graph from text.
// User content is injected via an XML tag to prevent prompt injection attacks.
const extractionPromptTemplate = `You are a knowledge graph extraction system. Read the text and extract the entities it mentions and the relations between them.

For each entity provide:
- name: The canonical name of the entity, exactly as it should be looked up later
- type: A short category such as Person, Organization, Project, Technology, Concept
- observations: Standalone factual statements about the entity taken from the text
- labels: Up to 3 optional extra categories (may be empty)

For each relation provide:
- source: Name of the source entity (must be one of the extracted entities)
- target: Name of the target entity (must be one of the extracted entities)
- relationType: A short verb phrase in active voice, e.g. "works at", "created"

Return a JSON object {"entities": [...], "relations": [...]}. If nothing is worth extracting, return {"entities": [], "relations": []}.

%s

Extract the knowledge graph as JSON:`

type extractedEntity struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Observations []string `json:"observations"`
	Labels       []string `json:"labels"`
}

type extractionResponse struct {
	Entities  []extractedEntity `json:"entities"`
	Relations []models.Relation `json:"relations"`
}

// ClaudeExtractor extracts knowledge graphs with the Claude API.
type ClaudeExtractor struct {
	client *anthropic.Client
	model  string
	logger *slog.Logger
}

// NewClaudeExtractor creates an extractor. Extra request options are passed to
// the API client.
func NewClaudeExtractor(apiKey, model string, logger *slog.Logger, opts ...option.RequestOption) *ClaudeExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	if model == "" {
		model = DefaultModel
	}
	c := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &ClaudeExtractor{client: &c, model: model, logger: logger}
}

// Extract asks Claude for the graph described by text. On API error it logs a
// warning and returns an empty graph so ingestion degrades gracefully.
func (e *ClaudeExtractor) Extract(ctx context.Context, text string) (*models.KnowledgeGraph, error) {
	empty := &models.KnowledgeGraph{Entities: []models.Entity{}, Relations: []models.Relation{}}
	if strings.TrimSpace(text) == "" {
		return empty, nil
	}
	text, cut := tokenizer.Truncate(text, maxInputTokens)
	if cut {
		e.logger.Warn("knowledge extraction: input truncated", "max_tokens", maxInputTokens)
	}
	prompt := fmt.Sprintf(extractionPromptTemplate, xmlutil.Wrap("content", text))

	resp, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		System: []anthropic.TextBlockParam{
			{Text: "You are a precise knowledge graph extraction system. Output only valid JSON."},
		},
	})
	if err != nil {
		e.logger.Warn("knowledge extraction: Claude API error, skipping", "error", err)
		return empty, nil
	}

	var responseText string
	for i := range resp.Content {
		if resp.Content[i].Type == "text" {
			responseText = resp.Content[i].Text
			break
		}
	}
	if responseText == "" {
		e.logger.Warn("knowledge extraction: empty response from Claude")
		return empty, nil
	}
	e.logger.Debug("knowledge extraction response", "response", responseText)

	g, err := ParseResponse(responseText)
	if err != nil {
		return nil, err
	}
	e.logger.Info("extracted knowledge", "entities", len(g.Entities), "relations", len(g.Relations))
	return g, nil
}

// ParseResponse decodes a model response into a graph. Markdown code fences
// around the JSON are tolerated. Entities without a name or type are dropped,
// and so are relations pointing at entities that were not extracted.
func ParseResponse(raw string) (*models.KnowledgeGraph, error) {
	body := stripFences(raw)
	var parsed extractionResponse
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return nil, fmt.Errorf("knowledge extraction: parsing response: %w (raw: %s)", err, raw)
	}

	g := &models.KnowledgeGraph{Entities: []models.Entity{}, Relations: []models.Relation{}}
	names := map[string]struct{}{}
	for _, pe := range parsed.Entities {
		name := strings.TrimSpace(pe.Name)
		typ := strings.TrimSpace(pe.Type)
		if name == "" || typ == "" {
			continue
		}
		labels := pe.Labels
		if len(labels) > models.MaxLabels {
			labels = labels[:models.MaxLabels]
		}
		g.Entities = append(g.Entities, models.Entity{
			Name:         name,
			Type:         typ,
			Observations: models.DedupeStrings(pe.Observations),
			Labels:       labels,
		})
		names[name] = struct{}{}
	}
	for _, r := range parsed.Relations {
		_, src := names[r.Source]
		_, tgt := names[r.Target]
		if !src || !tgt || strings.TrimSpace(r.RelationType) == "" {
			continue
		}
		g.Relations = append(g.Relations, r)
	}
	return g, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
