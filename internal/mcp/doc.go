// Package mcp exposes the face-analysis store as MCP tools over stdio.
package mcp
