package corpus

import (
	"fmt"
	"strings"

	"github.com/corvus-sec/intelgraph/internal/types"
)

// ValidateBundle checks a parsed bundle for required shape before it is
// accepted for ingestion. Checks run in order and the first violation
// short-circuits with an error naming the offending field or identifier.
//
// Order: version field, entity identifiers and types, duplicate entity
// identifiers, relationship fields, relationship endpoint resolution.
func ValidateBundle(b *Bundle) error {
	if b == nil {
		return types.NewError(types.VALIDATION_FAILED, "bundle is nil")
	}

	if strings.TrimSpace(b.Version) == "" {
		return types.NewError(types.VALIDATION_FAILED, "bundle field \"version\" is missing or empty")
	}

	seen := make(map[string]struct{}, len(b.Entities))
	for i, e := range b.Entities {
		if strings.TrimSpace(e.ID) == "" {
			return types.NewError(types.VALIDATION_FAILED,
				fmt.Sprintf("entity at index %d has an empty identifier", i))
		}
		if strings.TrimSpace(e.Type) == "" {
			return types.NewError(types.VALIDATION_FAILED,
				fmt.Sprintf("entity %q has an empty type", e.ID))
		}
		if _, dup := seen[e.ID]; dup {
			return types.NewError(types.VALIDATION_FAILED,
				fmt.Sprintf("duplicate entity identifier %q", e.ID))
		}
		seen[e.ID] = struct{}{}
	}

	for i, r := range b.Relationships {
		if strings.TrimSpace(r.SourceRef) == "" {
			return types.NewError(types.VALIDATION_FAILED,
				fmt.Sprintf("relationship at index %d has an empty source_ref", i))
		}
		if strings.TrimSpace(r.TargetRef) == "" {
			return types.NewError(types.VALIDATION_FAILED,
				fmt.Sprintf("relationship at index %d has an empty target_ref", i))
		}
		if strings.TrimSpace(r.Type) == "" {
			return types.NewError(types.VALIDATION_FAILED,
				fmt.Sprintf("relationship %s -> %s has an empty relationship_type", r.SourceRef, r.TargetRef))
		}
		if _, ok := seen[r.SourceRef]; !ok {
			return types.NewError(types.VALIDATION_FAILED,
				fmt.Sprintf("relationship source %q does not resolve to an entity in this bundle", r.SourceRef))
		}
		if _, ok := seen[r.TargetRef]; !ok {
			return types.NewError(types.VALIDATION_FAILED,
				fmt.Sprintf("relationship target %q does not resolve to an entity in this bundle", r.TargetRef))
		}
	}

	return nil
}
