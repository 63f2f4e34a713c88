// Package domain defines core domain types, constants, and validation for the
// PartSense engine pipeline. It acts as the validation gate at pipeline entry points.
package domain

// EntityType names a node label in the knowledge graph.
type EntityType string

const (
	EntityPart                    EntityType = "Part"
	EntityModel                   EntityType = "Model"
	EntityManufacturer            EntityType = "Manufacturer"
	EntityBrand                   EntityType = "Brand"
	EntityProductType             EntityType = "ProductType"
	EntitySymptom                 EntityType = "Symptom"
	EntityStory                   EntityType = "Story"
	EntityQnA                     EntityType = "QnA"
	EntityInstallationInstruction EntityType = "InstallationInstruction"
	EntityVideo                   EntityType = "Video"
	EntityManual                  EntityType = "Manual"
	EntitySection                 EntityType = "Section"
)

// ContentType partitions the vector index space. Scores are only comparable
// within a single content type, so each one maps to its own collection.
type ContentType string

const (
	ContentParts        ContentType = "parts"
	ContentStories      ContentType = "stories"
	ContentQnA          ContentType = "qna"
	ContentInstructions ContentType = "instructions"
)

// ValidContentTypes is the set of recognised vector content types.
var ValidContentTypes = map[ContentType]bool{
	ContentParts: true, ContentStories: true,
	ContentQnA: true, ContentInstructions: true,
}

// Part is a replacement part record.
type Part struct {
	ID                  string   `json:"id"`
	URL                 string   `json:"url,omitempty"`
	Name                string   `json:"name"`
	PartSelectNum       string   `json:"partselect_num,omitempty"`
	ManufacturerPartNum string   `json:"manufacturer_part_num,omitempty"`
	Price               float64  `json:"price,omitempty"`
	Status              string   `json:"status,omitempty"`
	InstallDifficulty   string   `json:"install_difficulty,omitempty"`
	InstallTime         string   `json:"install_time,omitempty"`
	Description         string   `json:"description,omitempty"`
	WorksWithProducts   []string `json:"works_with_products,omitempty"`
}

// Model anchors an appliance a part may fit.
type Model struct {
	ModelNum string `json:"model_num"`
	Name     string `json:"name"`
	Brand    string `json:"brand,omitempty"`
	URL      string `json:"url,omitempty"`
}

// EntityRef identifies an entity instance without carrying its full record.
// Used for provenance tags and session last-mentioned tracking.
type EntityRef struct {
	Type EntityType `json:"type"`
	ID   string     `json:"id"`
	Name string     `json:"name,omitempty"`
}

// Turn is one (user, assistant) exchange in a session.
type Turn struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}
