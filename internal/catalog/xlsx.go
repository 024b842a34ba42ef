package catalog

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/dcia/internal/models"
)

// Spreadsheet columns, matched case-insensitively against the header row.
const (
	colSubtype             = "subtype"
	colSubtypeDescription  = "subtype_description"
	colEvidence            = "evidence"
	colEvidenceDescription = "evidence_description"
	colSignificance        = "significance"
	colDevice              = "device"
	colLocation            = "location"
)

// parseXLSX reads the first sheet. Each row names a subtype and optionally one evidence
// item and one device location; rows repeating a subtype or evidence item extend it.
func parseXLSX(content []byte) (*models.Catalog, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return &models.Catalog{}, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("get rows for sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return &models.Catalog{}, nil
	}

	cols := make(map[string]int)
	for i, h := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := cols[colSubtype]; !ok {
		return nil, fmt.Errorf("sheet %q: missing %q column", sheets[0], colSubtype)
	}
	cell := func(row []string, col string) string {
		i, ok := cols[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	c := &models.Catalog{}
	subIdx := make(map[string]int)
	evIdx := make(map[string]map[string]int)
	for n, row := range rows[1:] {
		name := cell(row, colSubtype)
		if name == "" {
			continue
		}
		si, ok := subIdx[name]
		if !ok {
			si = len(c.CrimeSubtypes)
			subIdx[name] = si
			evIdx[name] = make(map[string]int)
			c.CrimeSubtypes = append(c.CrimeSubtypes, models.CatalogSubtype{Name: name})
		}
		sub := &c.CrimeSubtypes[si]
		if d := cell(row, colSubtypeDescription); d != "" {
			sub.Description = d
		}

		evName := cell(row, colEvidence)
		if evName == "" {
			continue
		}
		ei, ok := evIdx[name][evName]
		if !ok {
			ei = len(sub.Evidence)
			evIdx[name][evName] = ei
			sub.Evidence = append(sub.Evidence, models.CatalogEvidence{Name: evName})
		}
		ev := &sub.Evidence[ei]
		if d := cell(row, colEvidenceDescription); d != "" {
			ev.Description = d
		}
		if s := cell(row, colSignificance); s != "" {
			ev.Significance = s
		}

		device, location := cell(row, colDevice), cell(row, colLocation)
		if device == "" && location == "" {
			continue
		}
		d, ok := models.ParseDevice(device)
		if !ok {
			return nil, fmt.Errorf("row %d: unknown device %q", n+2, device)
		}
		if location == "" {
			continue
		}
		if ev.Locations == nil {
			ev.Locations = make(map[models.Device][]string)
		}
		ev.Locations[d] = append(ev.Locations[d], location)
	}
	return c, nil
}
