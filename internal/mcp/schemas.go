package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// saveAnalysisTool returns the tool definition for save_analysis
func saveAnalysisTool() mcp.Tool {
	return mcp.Tool{
		Name:        "save_analysis",
		Description: "Save a face analysis result, optionally extracting and storing the face embedding",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"image_path": map[string]interface{}{
					"type":        "string",
					"description": "Path to the analyzed image",
				},
				"user_name": map[string]interface{}{
					"type":        "string",
					"description": "Name of the person in the image; omit for anonymous",
				},
				"user_email": map[string]interface{}{
					"type":        "string",
					"description": "Email of the person; analyses with the same email merge into one user",
				},
				"analysis_type": map[string]interface{}{
					"type":        "string",
					"description": "Kind of analysis event",
					"enum":        []string{"analyze", "verify", "batch_import"},
					"default":     "analyze",
				},
				"result_data": map[string]interface{}{
					"type":        "object",
					"description": "Raw analysis result (age, emotion, attributes, ...)",
				},
				"confidence": map[string]interface{}{
					"type":        "number",
					"description": "Detection confidence score (0.0-1.0)",
				},
				"model": map[string]interface{}{
					"type":        "string",
					"description": "Recognition model that produced the result",
				},
				"extract_embedding": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, extract and store the face embedding for similarity search",
					"default":     true,
				},
			},
			Required: []string{"image_path"},
		},
	}
}

// searchSimilarFacesTool returns the tool definition for search_similar_faces
func searchSimilarFacesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_similar_faces",
		Description: "Find stored faces similar to a query image or embedding vector",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"image_path": map[string]interface{}{
					"type":        "string",
					"description": "Path to the query image; its embedding is extracted automatically",
				},
				"vector": map[string]interface{}{
					"type":        "array",
					"description": "Query embedding vector, used instead of image_path when given",
					"items": map[string]interface{}{
						"type": "number",
					},
				},
				"threshold": map[string]interface{}{
					"type":        "number",
					"description": "Minimum cosine similarity (0.0-1.0)",
					"default":     0.6,
					"minimum":     0.0,
					"maximum":     1.0,
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of matches to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"user_id": map[string]interface{}{
					"type":        "integer",
					"description": "Restrict matches to analyses owned by this user",
				},
				"min_confidence": map[string]interface{}{
					"type":        "number",
					"description": "Minimum confidence score on the owning analysis",
				},
				"use_cache": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, serve repeated searches from the response cache",
					"default":     false,
				},
			},
		},
	}
}

// getStatsTool returns the tool definition for get_stats
func getStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_stats",
		Description: "Query database statistics: row counts, recent activity and storage size",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"detailed": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, include per-month, per-model and confidence histograms",
					"default":     false,
				},
			},
		},
	}
}

// batchImportTool returns the tool definition for batch_import
func batchImportTool() mcp.Tool {
	return mcp.Tool{
		Name:        "batch_import",
		Description: "Import all images under a directory, extracting and storing a face embedding for each",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"directory": map[string]interface{}{
					"type":        "string",
					"description": "Directory to scan for images (.jpg, .jpeg, .png, .webp, .bmp)",
				},
				"user_name": map[string]interface{}{
					"type":        "string",
					"description": "Attach every imported image to this user; omit for anonymous",
				},
				"user_email": map[string]interface{}{
					"type":        "string",
					"description": "Email for the user; merges with an existing user",
				},
				"recursive": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, descend into subdirectories",
					"default":     true,
				},
			},
			Required: []string{"directory"},
		},
	}
}

// cleanupDatabaseTool returns the tool definition for cleanup_database
func cleanupDatabaseTool() mcp.Tool {
	return mcp.Tool{
		Name:        "cleanup_database",
		Description: "Remove analyses whose image file is gone, duplicate analyses and orphaned embeddings",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"dry_run": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, report what would be removed without deleting anything",
					"default":     true,
				},
			},
		},
	}
}

// exportDatabaseTool returns the tool definition for export_database
func exportDatabaseTool() mcp.Tool {
	return mcp.Tool{
		Name:        "export_database",
		Description: "Export the database to a JSON envelope or a SQL dump",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"output_path": map[string]interface{}{
					"type":        "string",
					"description": "File to write the export to",
				},
				"format": map[string]interface{}{
					"type":        "string",
					"description": "Export format",
					"enum":        []string{"json", "sql"},
					"default":     "json",
				},
				"scope": map[string]interface{}{
					"type":        "string",
					"description": "Which entities to include",
					"enum":        []string{"all", "users", "analyses", "verifications"},
					"default":     "all",
				},
				"include_embeddings": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, include embedding vectors (large)",
					"default":     false,
				},
			},
			Required: []string{"output_path"},
		},
	}
}

// clearDatabaseTool returns the tool definition for clear_database
func clearDatabaseTool() mcp.Tool {
	return mcp.Tool{
		Name:        "clear_database",
		Description: "Delete ALL stored users, analyses, embeddings and verification history",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"confirm": map[string]interface{}{
					"type":        "boolean",
					"description": "Must be true; guards against accidental wipes",
					"default":     false,
				},
			},
			Required: []string{"confirm"},
		},
	}
}
