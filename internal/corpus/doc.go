// Package corpus defines the threat-intelligence data model and bundle
// validation.
//
// A corpus is one versioned snapshot of the knowledge base: a set of entities
// (techniques, groups, software, mitigations, ...) and a set of directed typed
// relationships between them. Bundles arrive as a single JSON document with a
// version field and a flat list of typed objects; objects with type
// "relationship" become edges, everything else becomes an entity.
//
// Validation is a pure function over the parsed bundle. It short-circuits on
// the first violation and names the offending field or identifier, so a
// caller can fix the input and resubmit. No partial validation results are
// ever returned.
package corpus
