// Package types contains the domain value types shared across the face
// store: search matches, face geometry, vector coercion, and the recursive
// normalization that turns extractor output into plain JSON-native values.
//
// The package has no dependencies on storage or transport so that both the
// core and external callers can use it without pulling in SQLite.
package types
