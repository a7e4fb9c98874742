package models

import (
	"fmt"
	"strings"
	"time"
)

// Kind selects which relation of a subject is enumerated
type Kind string

const (
	KindFollowers Kind = "followers"
	KindFollowees Kind = "followees"
)

// Kinds lists every collection kind in orchestration order
var Kinds = []Kind{KindFollowers, KindFollowees}

// ParseKind accepts the kind names plus the "following" alias
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "followers":
		return KindFollowers, nil
	case "followees", "following":
		return KindFollowees, nil
	default:
		return "", fmt.Errorf("unknown collection kind %q (want followers or followees)", s)
	}
}

// Valid reports whether k is a known kind
func (k Kind) Valid() bool {
	return k == KindFollowers || k == KindFollowees
}

func (k Kind) String() string {
	return string(k)
}

// Status describes how a collection run or stored record ended
type Status string

const (
	StatusPartial   Status = "partial"
	StatusComplete  Status = "complete"
	StatusThrottled Status = "throttled"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Checkpoint is the durable state of an in-progress collection run
type Checkpoint struct {
	Subject     string    `json:"subject"`
	Kind        Kind      `json:"kind"`
	Status      Status    `json:"status"`
	RunToken    string    `json:"run_token"`
	SavedAt     time.Time `json:"saved_at"`
	Total       int       `json:"total"`
	Identifiers []string  `json:"identifiers"`
}

// Set rebuilds the identifier set held by the checkpoint
func (c *Checkpoint) Set() *IdentifierSet {
	return NewIdentifierSet(c.Identifiers...)
}

// Snapshot is an immutable record of a completed collection run
type Snapshot struct {
	ID          string    `json:"id"`
	Subject     string    `json:"subject"`
	Kind        Kind      `json:"kind"`
	Status      Status    `json:"status"`
	RunToken    string    `json:"run_token"`
	CompletedAt time.Time `json:"completed_at"`
	Total       int       `json:"total"`
	Identifiers []string  `json:"identifiers"`
}

// Set rebuilds the identifier set held by the snapshot
func (s *Snapshot) Set() *IdentifierSet {
	return NewIdentifierSet(s.Identifiers...)
}

// KindChanges holds the additions, removals and counts for one kind
type KindChanges struct {
	Added         []string `json:"added"`
	Removed       []string `json:"removed"`
	PreviousCount int      `json:"previous_count"`
	CurrentCount  int      `json:"current_count"`
	Net           int      `json:"net"`
	// Baseline is set when no earlier snapshot existed for this kind
	Baseline bool `json:"baseline,omitempty"`
}

// HasChanges reports whether anything was added or removed
func (k *KindChanges) HasChanges() bool {
	return k != nil && (len(k.Added) > 0 || len(k.Removed) > 0)
}

// DiffReport compares the latest snapshots of a subject with the previous ones
type DiffReport struct {
	ID              string       `json:"id"`
	Subject         string       `json:"subject"`
	RunToken        string       `json:"run_token"`
	CreatedAt       time.Time    `json:"created_at"`
	FirstCollection bool         `json:"first_collection"`
	PreviousAt      *time.Time   `json:"previous_at,omitempty"`
	CurrentAt       *time.Time   `json:"current_at,omitempty"`
	Followers       *KindChanges `json:"followers,omitempty"`
	Followees       *KindChanges `json:"followees,omitempty"`
}

// Changes returns the section of the report for kind, or nil
func (r *DiffReport) Changes(kind Kind) *KindChanges {
	switch kind {
	case KindFollowers:
		return r.Followers
	case KindFollowees:
		return r.Followees
	default:
		return nil
	}
}

// HasChanges reports whether any kind recorded additions or removals
func (r *DiffReport) HasChanges() bool {
	return r.Followers.HasChanges() || r.Followees.HasChanges()
}
