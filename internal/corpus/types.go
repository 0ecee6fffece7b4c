package corpus

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/corvus-sec/intelgraph/internal/types"
)

// ObjectTypeRelationship is the type discriminator that marks a bundle object
// as an edge rather than an entity.
const ObjectTypeRelationship = "relationship"

// Entity is a single knowledge-base item. The ID is stable across corpus
// versions that logically update the same item; re-ingesting an ID within a
// version replaces the previous entity, it never creates a second one.
type Entity struct {
	// ID is the stable identifier, unique within a corpus version.
	ID string `json:"id"`

	// Type is the entity type tag (e.g. "attack-pattern", "intrusion-set",
	// "malware", "course-of-action").
	Type string `json:"type"`

	// Name is the human-readable entity name.
	Name string `json:"name,omitempty"`

	// Description is the free-text description used for lexical matching and
	// embedding generation.
	Description string `json:"description,omitempty"`

	// Metadata holds type-specific extra fields that are carried through
	// storage untouched. Keys are unique.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Created and Modified are source timestamps, if the feed provides them.
	Created  string `json:"created,omitempty"`
	Modified string `json:"modified,omitempty"`
}

// EmbeddingText builds the text embedded for this entity, combining name and
// description. Returns "" when both are empty, in which case no embedding is
// generated for the entity.
func (e Entity) EmbeddingText() string {
	name := strings.TrimSpace(e.Name)
	desc := strings.TrimSpace(e.Description)
	switch {
	case name != "" && desc != "":
		return fmt.Sprintf("name: %s. description: %s", name, desc)
	case name != "":
		return name
	default:
		return desc
	}
}

// Relationship is a directed typed edge between two entity identifiers.
// Both endpoints must resolve to entities in the same corpus version.
type Relationship struct {
	// ID identifies the relationship object itself.
	ID string `json:"id,omitempty"`

	// SourceRef and TargetRef are the entity identifiers at each end.
	SourceRef string `json:"source_ref"`
	TargetRef string `json:"target_ref"`

	// Type is the relation-type label (e.g. "uses", "mitigates").
	Type string `json:"relationship_type"`

	// Description optionally qualifies the edge.
	Description string `json:"description,omitempty"`
}

// Bundle is one corpus version as received on the wire: a version identifier
// plus the entity and relationship collections split out of the raw object
// list by ParseBundle.
type Bundle struct {
	Version       string         `json:"version"`
	SpecVersion   string         `json:"spec_version,omitempty"`
	ID            string         `json:"id,omitempty"`
	Entities      []Entity       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
}

// rawBundle is the wire shape: a flat list of typed objects.
type rawBundle struct {
	Version     string            `json:"version"`
	SpecVersion string            `json:"spec_version"`
	ID          string            `json:"id"`
	Objects     []json.RawMessage `json:"objects"`
}

type rawObject struct {
	Type string `json:"type"`
}

// ParseBundle decodes a raw JSON bundle document, splitting the object list
// into entities and relationships by the type discriminator. Malformed JSON
// returns a VALIDATION_BAD_FORMAT error; shape violations beyond JSON syntax
// are left to ValidateBundle.
func ParseBundle(data []byte) (*Bundle, error) {
	var raw rawBundle
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, types.WrapError(types.VALIDATION_BAD_FORMAT, "bundle is not well-formed JSON", err)
	}

	b := &Bundle{
		Version:     strings.TrimSpace(raw.Version),
		SpecVersion: raw.SpecVersion,
		ID:          raw.ID,
	}

	for i, obj := range raw.Objects {
		var disc rawObject
		if err := json.Unmarshal(obj, &disc); err != nil {
			return nil, types.WrapError(types.VALIDATION_BAD_FORMAT,
				fmt.Sprintf("object at index %d is not a JSON object", i), err)
		}

		if disc.Type == ObjectTypeRelationship {
			var rel Relationship
			if err := json.Unmarshal(obj, &rel); err != nil {
				return nil, types.WrapError(types.VALIDATION_BAD_FORMAT,
					fmt.Sprintf("relationship object at index %d is malformed", i), err)
			}
			b.Relationships = append(b.Relationships, rel)
			continue
		}

		var ent Entity
		if err := json.Unmarshal(obj, &ent); err != nil {
			return nil, types.WrapError(types.VALIDATION_BAD_FORMAT,
				fmt.Sprintf("entity object at index %d is malformed", i), err)
		}

		// Preserve unknown fields as open metadata so schema drift in the
		// feed survives the round trip.
		var all map[string]any
		if err := json.Unmarshal(obj, &all); err == nil {
			for _, known := range []string{"id", "type", "name", "description", "created", "modified", "metadata"} {
				delete(all, known)
			}
			if len(all) > 0 {
				if ent.Metadata == nil {
					ent.Metadata = make(map[string]any, len(all))
				}
				for k, v := range all {
					if _, exists := ent.Metadata[k]; !exists {
						ent.Metadata[k] = v
					}
				}
			}
		}

		b.Entities = append(b.Entities, ent)
	}

	return b, nil
}

// Marshal serializes the bundle back to the wire format with entities and
// relationships rejoined into one object list. Used for version download.
func (b *Bundle) Marshal() ([]byte, error) {
	objects := make([]any, 0, len(b.Entities)+len(b.Relationships))
	for _, e := range b.Entities {
		obj := map[string]any{
			"id":   e.ID,
			"type": e.Type,
		}
		if e.Name != "" {
			obj["name"] = e.Name
		}
		if e.Description != "" {
			obj["description"] = e.Description
		}
		if e.Created != "" {
			obj["created"] = e.Created
		}
		if e.Modified != "" {
			obj["modified"] = e.Modified
		}
		for k, v := range e.Metadata {
			obj[k] = v
		}
		objects = append(objects, obj)
	}
	for _, r := range b.Relationships {
		obj := map[string]any{
			"type":              ObjectTypeRelationship,
			"source_ref":        r.SourceRef,
			"target_ref":        r.TargetRef,
			"relationship_type": r.Type,
		}
		if r.ID != "" {
			obj["id"] = r.ID
		}
		if r.Description != "" {
			obj["description"] = r.Description
		}
		objects = append(objects, obj)
	}

	return json.Marshal(map[string]any{
		"version":      b.Version,
		"spec_version": b.SpecVersion,
		"id":           b.ID,
		"objects":      objects,
	})
}

// VersionMetadata describes one stored corpus version.
type VersionMetadata struct {
	Version           string    `json:"version"`
	IngestedAt        time.Time `json:"ingested_at"`
	EntityCount       int       `json:"entity_count"`
	RelationshipCount int       `json:"relationship_count"`
	SizeBytes         int64     `json:"size_bytes"`
}

// Validate checks the metadata for structural sanity.
func (m VersionMetadata) Validate() error {
	if strings.TrimSpace(m.Version) == "" {
		return types.NewError(types.INVALID_CONFIG, "version metadata requires a version")
	}
	if m.EntityCount < 0 || m.RelationshipCount < 0 || m.SizeBytes < 0 {
		return types.NewError(types.INVALID_CONFIG, "version metadata counts cannot be negative")
	}
	return nil
}
