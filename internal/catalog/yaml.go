package catalog

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/dcia/internal/models"
)

func parseYAML(content []byte) (*models.Catalog, error) {
	var c models.Catalog
	if err := yaml.Unmarshal(content, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return &c, nil
}
