// Package graph implements the traversal side of the dual persistence
// layer: a Neo4j-backed store holding one node per corpus entity and one
// directed edge per relationship, scoped by corpus version.
//
// Nodes carry a label derived from the entity type (attack-pattern becomes
// AttackPattern) and edges carry a relationship type derived from the
// corpus relationship type (uses becomes USES). Labels and relationship
// types cannot be parameterized in Cypher, so both are sanitized to
// alphanumeric characters before interpolation.
//
// A version replace deletes that version's nodes with DETACH DELETE and
// recreates them, so re-ingesting the same version converges to the same
// graph. An in-memory implementation backs tests and single-binary use.
package graph
