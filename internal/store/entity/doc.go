// Package entity implements the text+vector side of the dual persistence
// layer: a SQLite-backed store holding the full entity documents of every
// ingested corpus version together with their embedding vectors.
//
// The store serves three read paths: direct lookup by identifier, lexical
// substring search over name and description, and brute-force cosine
// similarity search over the embeddings of one version's rows. Rows are
// scoped by corpus version; a version replace is a single transaction that
// deletes and reinserts that version's rows, which makes the replace
// idempotent.
package entity
