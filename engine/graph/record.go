package graph

import (
	"fmt"

	"github.com/PartSenseAI/partsense-mvp/engine/domain"
	"github.com/PartSenseAI/partsense-mvp/engine/schema"
)

// RecordID returns a record's identifying attribute value per the schema.
func RecordID(reg *schema.Registry, rec Record) string {
	e, ok := reg.Entity(rec.Type)
	if !ok {
		return ""
	}
	if v, ok := rec.Props[e.IDKey]; ok {
		return fmt.Sprint(v)
	}
	return ""
}

// RecordRef builds an EntityRef for a record, preferring a display name when
// the record carries one.
func RecordRef(reg *schema.Registry, rec Record) domain.EntityRef {
	name := ""
	if v, ok := rec.Props["name"]; ok {
		name = fmt.Sprint(v)
	} else if v, ok := rec.Props["title"]; ok {
		name = fmt.Sprint(v)
	}
	return domain.EntityRef{Type: rec.Type, ID: RecordID(reg, rec), Name: name}
}
