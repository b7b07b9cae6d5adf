package models

import "time"

// Target is a scope declaration: the boundary within which all scanning for
// a given engagement is permitted to operate. Immutable after creation
// except for scope edits (Include/Exclude/IPRanges/ASNs).
type Target struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain"`
	Include   []string  `json:"include,omitempty"`
	Exclude   []string  `json:"exclude,omitempty"`
	IPRanges  []string  `json:"ip_ranges,omitempty"`
	ASNs      []string  `json:"asns,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewTarget constructs a Target with a generated ID and creation timestamp.
func NewTarget(name, domain string) *Target {
	return &Target{
		ID:        newID(),
		Name:      name,
		Domain:    domain,
		CreatedAt: now(),
	}
}
