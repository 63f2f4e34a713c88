package semantic

import "github.com/PartSenseAI/partsense-mvp/engine/domain"

// Hit represents a single vector search result.
type Hit struct {
	ID          string             `json:"id"`
	Score       float32            `json:"score"`
	Content     string             `json:"content"`
	ContentType domain.ContentType `json:"content_type"`
	EntityType  domain.EntityType  `json:"entity_type"`
	EntityID    string             `json:"entity_id"`
	Meta        map[string]string  `json:"meta"`
}

// Ref returns the hit's entity reference for provenance.
func (h Hit) Ref() domain.EntityRef {
	name := h.Meta["name"]
	if name == "" {
		name = h.Meta["title"]
	}
	return domain.EntityRef{Type: h.EntityType, ID: h.EntityID, Name: name}
}
