// Package catalog reads forensic knowledge catalogs (YAML or XLSX) for import into the store.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/hyperjump/dcia/internal/models"
)

// Extensions lists the file extensions Load understands.
var Extensions = []string{".yaml", ".yml", ".json", ".xlsx"}

// Supported reports whether path has a catalog extension.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Load reads the catalog at path, choosing the format by extension.
func Load(path string) (*models.Catalog, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	c, err := LoadBytes(content, strings.ToLower(filepath.Ext(path)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// LoadBytes parses content in the format named by ext (with leading dot), then
// normalizes whitespace and validates the result.
func LoadBytes(content []byte, ext string) (*models.Catalog, error) {
	var (
		c   *models.Catalog
		err error
	)
	switch ext {
	case ".yaml", ".yml", ".json":
		c, err = parseYAML(content)
	case ".xlsx":
		c, err = parseXLSX(content)
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", ext)
	}
	if err != nil {
		return nil, err
	}
	normalize(c)
	if err := Validate(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks that every subtype and evidence item is named and that locations
// use known devices.
func Validate(c *models.Catalog) error {
	for i, sub := range c.CrimeSubtypes {
		if sub.Name == "" {
			return fmt.Errorf("crime subtype %d has no name", i+1)
		}
		for j, ev := range sub.Evidence {
			if ev.Name == "" {
				return fmt.Errorf("crime subtype %q: evidence %d has no name", sub.Name, j+1)
			}
			for d := range ev.Locations {
				if _, ok := models.ParseDevice(string(d)); !ok {
					return fmt.Errorf("evidence %q: unknown device %q", ev.Name, d)
				}
			}
		}
	}
	return nil
}

func normalize(c *models.Catalog) {
	for i := range c.CrimeSubtypes {
		sub := &c.CrimeSubtypes[i]
		sub.Name = collapseSpace(sub.Name)
		sub.Description = collapseSpace(sub.Description)
		for j := range sub.Evidence {
			ev := &sub.Evidence[j]
			ev.Name = collapseSpace(ev.Name)
			ev.Description = collapseSpace(ev.Description)
			ev.Significance = collapseSpace(ev.Significance)
			if len(ev.Locations) == 0 {
				continue
			}
			locs := make(map[models.Device][]string, len(ev.Locations))
			for d, paths := range ev.Locations {
				key := d
				if parsed, ok := models.ParseDevice(string(d)); ok {
					key = parsed
				}
				for _, p := range paths {
					if p = strings.TrimSpace(p); p != "" {
						locs[key] = append(locs[key], p)
					}
				}
			}
			ev.Locations = locs
		}
	}
}

// collapseSpace trims text and collapses runs of whitespace to one space.
func collapseSpace(text string) string {
	text = strings.TrimSpace(text)
	var b strings.Builder
	wasSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
		} else {
			b.WriteRune(r)
			wasSpace = false
		}
	}
	return b.String()
}
