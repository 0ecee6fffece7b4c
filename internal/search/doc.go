// Package search implements hybrid retrieval over the active corpus
// version: semantic similarity from the embedding index blended with
// lexical substring matching, with an optional CEL expression filtering
// results by entity fields and metadata.
//
// When the embedder is unavailable the searcher degrades to lexical-only
// results and marks the response as degraded rather than failing the
// request.
package search
