// Package ingest implements versioned corpus replacement: parse and
// validate a bundle, embed every entity, replace the version's rows in the
// entity store and its subgraph in the graph store, then activate the
// version.
//
// The active pointer flips last, so a failure anywhere earlier leaves the
// previously active version untouched. Partial writes of the failed
// version may remain; both stores replace per version, so retrying the
// same bundle overwrites them. Concurrent ingests of the same version
// serialize on a per-version mutex; different versions proceed in
// parallel.
package ingest
