package mcp

import (
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/ajitpratap0/cortex-graph/internal/models"
)

func stringArray(desc string) map[string]any {
	return map[string]any{
		"type":        "array",
		"description": desc,
		"items":       map[string]any{"type": "string"},
	}
}

func entitySchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":         map[string]any{"type": "string", "description": "The name of the entity"},
			"type":         map[string]any{"type": "string", "description": "The type of the entity"},
			"observations": stringArray("Observation contents associated with the entity"),
			"labels": map[string]any{
				"type":        "array",
				"description": "Additional labels for the entity",
				"items":       map[string]any{"type": "string"},
				"maxItems":    models.MaxLabels,
			},
		},
		"required": []string{"name", "type", "observations"},
	}
}

func relationSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"source":       map[string]any{"type": "string", "description": "The name of the entity where the relation starts"},
			"target":       map[string]any{"type": "string", "description": "The name of the entity where the relation ends"},
			"relationType": map[string]any{"type": "string", "description": "The type of the relation"},
		},
		"required": []string{"source", "target", "relationType"},
	}
}

func buildCreateEntitiesTool() mcpgo.Tool {
	return mcpgo.NewTool("create_entities",
		mcpgo.WithDescription("Create multiple new entities in the knowledge graph. Entities with the same name and type are merged: new observations are appended and labels are combined."),
		mcpgo.WithArray("entities",
			mcpgo.Required(),
			mcpgo.Description("Entities to create"),
			mcpgo.Items(entitySchema()),
			mcpgo.MinItems(1),
		),
	)
}

func buildCreateRelationsTool() mcpgo.Tool {
	return mcpgo.NewTool("create_relations",
		mcpgo.WithDescription("Create multiple new relations between entities. Relations should be in active voice."),
		mcpgo.WithArray("relations",
			mcpgo.Required(),
			mcpgo.Description("Relations to create"),
			mcpgo.Items(relationSchema()),
			mcpgo.MinItems(1),
		),
	)
}

func buildAddObservationsTool() mcpgo.Tool {
	return mcpgo.NewTool("add_observations",
		mcpgo.WithDescription("Add new observations to existing entities. Every entity with the given name is updated."),
		mcpgo.WithArray("observations",
			mcpgo.Required(),
			mcpgo.Description("Observations to add"),
			mcpgo.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"entityName": map[string]any{"type": "string", "description": "The name of the entity to add the observations to"},
					"contents":   stringArray("Observation contents to add"),
				},
				"required": []string{"entityName", "contents"},
			}),
			mcpgo.MinItems(1),
		),
	)
}

func buildDeleteEntitiesTool() mcpgo.Tool {
	return mcpgo.NewTool("delete_entities",
		mcpgo.WithDescription("Delete entities and their relations. Every entity with a matching name is removed regardless of type."),
		mcpgo.WithArray("entityNames",
			mcpgo.Required(),
			mcpgo.Description("Names of the entities to delete"),
			mcpgo.WithStringItems(),
			mcpgo.MinItems(1),
		),
	)
}

func buildDeleteObservationsTool() mcpgo.Tool {
	return mcpgo.NewTool("delete_observations",
		mcpgo.WithDescription("Delete specific observations from entities. Embeddings are regenerated."),
		mcpgo.WithArray("deletions",
			mcpgo.Required(),
			mcpgo.Description("Observations to delete"),
			mcpgo.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"entityName":   map[string]any{"type": "string", "description": "The name of the entity containing the observations"},
					"observations": stringArray("Observations to delete"),
				},
				"required": []string{"entityName", "observations"},
			}),
			mcpgo.MinItems(1),
		),
	)
}

func buildDeleteRelationsTool() mcpgo.Tool {
	return mcpgo.NewTool("delete_relations",
		mcpgo.WithDescription("Delete relations from the knowledge graph."),
		mcpgo.WithArray("relations",
			mcpgo.Required(),
			mcpgo.Description("Relations to delete"),
			mcpgo.Items(relationSchema()),
			mcpgo.MinItems(1),
		),
	)
}

func buildReadGraphTool() mcpgo.Tool {
	return mcpgo.NewTool("read_graph",
		mcpgo.WithDescription("Read the entire knowledge graph."),
		mcpgo.WithReadOnlyHintAnnotation(true),
	)
}

func buildSearchNodesTool() mcpgo.Tool {
	return mcpgo.NewTool("search_nodes",
		mcpgo.WithDescription("Search for nodes. Short name-like queries try an exact match first, other queries use semantic search, and keyword search is used when semantic search finds nothing."),
		mcpgo.WithReadOnlyHintAnnotation(true),
		mcpgo.WithString("query",
			mcpgo.Required(),
			mcpgo.Description("The search query"),
		),
		mcpgo.WithNumber("limit",
			mcpgo.Description("Maximum number of results"),
			mcpgo.DefaultNumber(defaultSearchLimit),
			mcpgo.Min(1),
		),
	)
}

func buildFindNodesTool(name string) mcpgo.Tool {
	return mcpgo.NewTool(name,
		mcpgo.WithDescription("Find specific nodes by exact name."),
		mcpgo.WithReadOnlyHintAnnotation(true),
		mcpgo.WithArray("names",
			mcpgo.Required(),
			mcpgo.Description("Names of the entities to find"),
			mcpgo.WithStringItems(),
			mcpgo.MinItems(1),
		),
	)
}

func buildVectorSearchTool() mcpgo.Tool {
	modes := make([]string, 0, len(models.ValidSearchModes))
	for _, m := range models.ValidSearchModes {
		modes = append(modes, string(m))
	}
	return mcpgo.NewTool("vector_search",
		mcpgo.WithDescription("Semantic similarity search in one embedding space: content (name, type and observations), observations only, or identity (name and type)."),
		mcpgo.WithReadOnlyHintAnnotation(true),
		mcpgo.WithString("query",
			mcpgo.Required(),
			mcpgo.Description("The search query"),
		),
		mcpgo.WithString("mode",
			mcpgo.Description("Embedding space to search"),
			mcpgo.Enum(modes...),
			mcpgo.DefaultString(string(models.SearchModeContent)),
		),
		mcpgo.WithNumber("limit",
			mcpgo.Description("Maximum number of results"),
			mcpgo.DefaultNumber(defaultSearchLimit),
			mcpgo.Min(1),
		),
		mcpgo.WithNumber("threshold",
			mcpgo.Description("Minimum similarity score"),
			mcpgo.DefaultNumber(defaultThreshold),
		),
	)
}

func buildGraphStatsTool() mcpgo.Tool {
	return mcpgo.NewTool("graph_stats",
		mcpgo.WithDescription("Get graph statistics: entity count, relation count, and entities still missing embeddings."),
		mcpgo.WithReadOnlyHintAnnotation(true),
	)
}

func buildExtractKnowledgeTool() mcpgo.Tool {
	return mcpgo.NewTool("extract_knowledge",
		mcpgo.WithDescription("Extract entities and relations from free text with Claude and store them in the knowledge graph."),
		mcpgo.WithString("text",
			mcpgo.Required(),
			mcpgo.Description("The text to extract knowledge from"),
		),
		mcpgo.WithBoolean("store",
			mcpgo.Description("Store the extracted graph"),
			mcpgo.DefaultBool(true),
		),
	)
}
