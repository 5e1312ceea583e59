// Package models provides core data structures for the coordination system.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a segment.
//
// Transitions are monotonic: queued -> claimed -> complete. No operation
// moves a segment backward except a wholesale store rebuild, which discards
// the segment entirely.
type Status string

const (
	StatusQueued   Status = "queued"
	StatusClaimed  Status = "claimed"
	StatusComplete Status = "complete"
)

// IsValid reports whether s is one of the known lifecycle states.
func (s Status) IsValid() bool {
	switch s {
	case StatusQueued, StatusClaimed, StatusComplete:
		return true
	}
	return false
}

// Segment represents one unit of dispatchable work: a single time-bounded
// piece of the source media, identified by its file name.
//
// Name is derived from the segmentation tool's zero-padded output pattern,
// so lexicographic order on Name is the authoritative reassembly order,
// independent of claim or completion timing.
// Generation records which store rebuild produced the segment. Segment
// file names repeat across rebuilds, so name alone cannot distinguish a
// segment from its same-named successor; completion reports must carry the
// generation of the claim they settle.
type Segment struct {
	Name        string    `json:"name"`
	Generation  uint64    `json:"generation"`
	Status      Status    `json:"status"`
	ClaimedBy   string    `json:"claimed_by,omitempty"`
	ClaimedAt   time.Time `json:"claimed_at,omitzero"`
	CompletedAt time.Time `json:"completed_at,omitzero"`
	ResultRef   string    `json:"result_ref,omitempty"`
}

// NewSegment creates a queued Segment with validation.
//
// Returns an error if name is empty or whitespace-only.
func NewSegment(name string) (*Segment, error) {
	s := &Segment{
		Name:   name,
		Status: StatusQueued,
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid segment: %w", err)
	}
	return s, nil
}

// Validate checks if the Segment has consistent state.
//
// Returns an error if:
//   - Name is empty or whitespace-only
//   - Status is not a known lifecycle state
//   - Status is queued but claim or result fields are set
//   - Status is claimed but ClaimedBy is empty or a result is attached
func (s *Segment) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("name cannot be empty")
	}

	if !s.Status.IsValid() {
		return fmt.Errorf("unknown status %q", s.Status)
	}

	switch s.Status {
	case StatusQueued:
		if s.ClaimedBy != "" {
			return fmt.Errorf("queued segment cannot have a claimant")
		}
		if s.ResultRef != "" {
			return fmt.Errorf("queued segment cannot have a result")
		}
	case StatusClaimed:
		if s.ClaimedBy == "" {
			return fmt.Errorf("claimed segment must have a claimant")
		}
		if s.ResultRef != "" {
			return fmt.Errorf("claimed segment cannot have a result")
		}
	}

	return nil
}

// IsComplete reports whether the segment has reached its terminal state.
func (s *Segment) IsComplete() bool {
	return s.Status == StatusComplete
}
