// Package searcher turns raw vector scans into ranked, hydrated search
// results, with an LRU response cache keyed by request contents.
package searcher
