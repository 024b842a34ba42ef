package models

// Catalog is a batch of forensic knowledge to upsert into the store.
type Catalog struct {
	CrimeSubtypes []CatalogSubtype `yaml:"crime_subtypes" json:"crime_subtypes"`
}

// CatalogSubtype is a crime subtype and the evidence relevant to it.
type CatalogSubtype struct {
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description" json:"description"`
	Evidence    []CatalogEvidence `yaml:"evidence" json:"evidence"`
}

// CatalogEvidence is an evidence item with per-device locations.
type CatalogEvidence struct {
	Name         string              `yaml:"name" json:"name"`
	Description  string              `yaml:"description" json:"description"`
	Significance string              `yaml:"significance" json:"significance"`
	Locations    map[Device][]string `yaml:"locations" json:"locations"`
}

// ImportStats counts what an import touched.
type ImportStats struct {
	Subtypes  int `json:"subtypes"`
	Evidence  int `json:"evidence"`
	Locations int `json:"locations"`
	// Invalidated counts nodes whose description changed and lost their embedding.
	Invalidated int `json:"invalidated"`
}
