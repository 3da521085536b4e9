// Package worker defines classification worker identities and registry records.
package worker

import "time"

// Domain is a classification specialty, mapped 1:1 to a worker pool.
type Domain string

const (
	DomainMedical   Domain = "medical"
	DomainSatellite Domain = "satellite"
	DomainGeneral   Domain = "general"
)

// KnownDomains lists every domain the intent classifier may emit, in
// catalog order.
func KnownDomains() []Domain {
	return []Domain{DomainMedical, DomainSatellite, DomainGeneral}
}

// Valid reports whether d is a known classification domain.
func (d Domain) Valid() bool {
	switch d {
	case DomainMedical, DomainSatellite, DomainGeneral:
		return true
	}
	return false
}

// Target is a resolved, reachable worker endpoint for one domain.
// Targets are produced fresh by the registry on every resolution and
// never cached across replans.
type Target struct {
	ID           string `json:"id"`
	Domain       Domain `json:"domain"`
	Endpoint     string `json:"endpoint"`
	Organization string `json:"organization,omitempty"`
}

// Record is the registry-side description of a worker, as published by the
// worker itself in dynamic mode (heartbeat) or configured in static mode.
type Record struct {
	ID            string    `json:"id"`
	Domain        Domain    `json:"domain"`
	Endpoint      string    `json:"endpoint"`
	Organization  string    `json:"organization,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	LastHeartbeat time.Time `json:"last_heartbeat,omitempty"`
}

// Target converts a registry record into a dispatchable target.
func (r Record) Target() Target {
	return Target{
		ID:           r.ID,
		Domain:       r.Domain,
		Endpoint:     r.Endpoint,
		Organization: r.Organization,
	}
}
