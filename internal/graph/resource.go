package graph

import "encoding/json"

// Resource is a passive node: requires-edges are validated for existence but
// do not drive scheduling in the core.
type Resource struct {
	ID           string   `json:"id"`
	Name         *string  `json:"name,omitempty"`
	ResourceType *string  `json:"resource_type,omitempty"`
	Available    *float64 `json:"available,omitempty"`
	Unit         *string  `json:"unit,omitempty"`
}

// Kind implements Node.
func (r *Resource) Kind() string { return "resource" }

// NodeID implements Node.
func (r *Resource) NodeID() string { return r.ID }

func (r Resource) MarshalJSON() ([]byte, error) {
	type wire struct {
		ID           string   `json:"id"`
		Kind         string   `json:"kind"`
		Name         *string  `json:"name,omitempty"`
		ResourceType *string  `json:"resource_type,omitempty"`
		Available    *float64 `json:"available,omitempty"`
		Unit         *string  `json:"unit,omitempty"`
	}
	return json.Marshal(wire{
		ID: r.ID, Kind: "resource", Name: r.Name, ResourceType: r.ResourceType,
		Available: r.Available, Unit: r.Unit,
	})
}
