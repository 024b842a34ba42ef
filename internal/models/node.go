// Package models defines core data structures for graph nodes, retrieval results, and API payloads.
package models

import "strings"

// Graph labels for the categories this service reads and writes.
const (
	LabelCrimeSubtype     = "CrimeSubtype"
	LabelEvidenceItem     = "EvidenceItem"
	LabelPossibleLocation = "PossibleLocation"
)

// EmbeddableLabels are the categories whose descriptions get embedded.
var EmbeddableLabels = []string{LabelEvidenceItem, LabelCrimeSubtype}

// Node is a graph entity with the attributes the retrieval pipeline cares about.
// Locations carry their path in Name.
type Node struct {
	ID           string   `json:"id"`
	Labels       []string `json:"labels"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Significance string   `json:"significance,omitempty"`
	Embedded     bool     `json:"embedded"`
}

// HasLabel reports whether the node carries label.
func (n *Node) HasLabel(label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Embeddable reports whether the node belongs to an embeddable category.
func (n *Node) Embeddable() bool {
	for _, l := range EmbeddableLabels {
		if n.HasLabel(l) {
			return true
		}
	}
	return false
}

// Candidate is a node that still needs an embedding.
type Candidate struct {
	NodeID string `json:"node_id"`
	Text   string `json:"text"`
}

// Device is a device family evidence can be located on.
type Device string

const (
	DeviceAndroid Device = "android"
	DeviceWindows Device = "windows"
)

// Devices lists the supported device families.
var Devices = []Device{DeviceAndroid, DeviceWindows}

// ParseDevice normalizes s to a supported Device.
func ParseDevice(s string) (Device, bool) {
	d := Device(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Devices {
		if d == known {
			return d, true
		}
	}
	return "", false
}

// Relationship returns the relationship type linking evidence to locations on this device.
func (d Device) Relationship() string {
	return "POSSIBLE_LOCATION_ON_" + strings.ToUpper(string(d))
}

// EvidenceItem is an evidence item with its possible locations on one device.
type EvidenceItem struct {
	Name         string   `json:"name"`
	Significance string   `json:"significance"`
	Locations    []string `json:"locations"`
}
