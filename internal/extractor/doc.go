// Package extractor abstracts where face embeddings come from: sidecar
// JSON files written by an external pipeline, or a remote extraction
// service. Results are cached by image content hash.
package extractor
