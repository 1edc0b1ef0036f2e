package model

import "time"

// Referee is the identity record of a reviewer.
type Referee struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Institution   string    `json:"institution"`
	ExpertiseTags []string  `json:"expertise_tags"`
	HIndex        int       `json:"h_index"`
	CreatedAt     time.Time `json:"created_at"`
	Active        bool      `json:"active"`
}

// ExpertiseEntry is the evidence behind one expertise tag.
type ExpertiseEntry struct {
	Confidence    float64 `json:"confidence"`
	EvidenceCount int     `json:"evidence_count"`
}

// Expertise maps a tag to its evidence.
type Expertise map[string]ExpertiseEntry
