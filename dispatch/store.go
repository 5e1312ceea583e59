// Package dispatch implements the job-coordination core: an in-memory
// segment store combined with the claim/report protocol that hands segments
// to workers.
//
// All state lives in process memory and is rebuilt from the segment
// directory on demand. A single mutex serializes every operation, which is
// the sole mechanism preventing two workers from claiming the same segment;
// critical sections do no I/O beyond the directory scan in Rebuild.
package dispatch

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"encoderfarm/models"
)

// Store is the authoritative record of every segment's lifecycle state.
//
// The collection is totally ordered by segment name; that order is the
// reassembly order, independent of claim or completion timing. Each Rebuild
// replaces the collection wholesale and bumps the generation counter, so no
// segment ever survives across a rebuild.
type Store struct {
	mu         sync.Mutex
	chunksDir  string
	ext        string
	generation uint64
	segments   []*models.Segment
	index      map[string]*models.Segment
}

// NewStore creates an empty Store backed by the given segment directory.
// Only files with the given extension (e.g. ".mp4") are considered segments;
// the match is case-insensitive.
func NewStore(chunksDir, ext string) *Store {
	return &Store{
		chunksDir: chunksDir,
		ext:       strings.ToLower(ext),
		index:     make(map[string]*models.Segment),
	}
}

// Rebuild scans the segment directory and atomically replaces the entire
// collection with fresh queued records sorted by name. Any in-flight claims
// from the previous generation are discarded.
//
// Returns the number of segments in the new generation.
func (s *Store) Rebuild() (int, error) {
	entries, err := os.ReadDir(s.chunksDir)
	if err != nil {
		return 0, fmt.Errorf("failed to scan segment directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(strings.ToLower(name), s.ext) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	segments := make([]*models.Segment, 0, len(names))
	index := make(map[string]*models.Segment, len(names))
	for _, name := range names {
		seg, err := models.NewSegment(name)
		if err != nil {
			return 0, fmt.Errorf("rebuild failed: %w", err)
		}
		if _, dup := index[name]; dup {
			return 0, fmt.Errorf("rebuild failed: duplicate segment name %q", name)
		}
		segments = append(segments, seg)
		index[name] = seg
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	for _, seg := range segments {
		seg.Generation = s.generation
	}
	s.segments = segments
	s.index = index
	return len(segments), nil
}

// Generation returns the current collection generation. It starts at zero
// for the empty store and increments on every Rebuild.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Snapshot returns a consistent copy of the full collection in stored
// (name-sorted) order.
func (s *Store) Snapshot() []models.Segment {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Segment, len(s.segments))
	for i, seg := range s.segments {
		out[i] = *seg
	}
	return out
}

// Find returns a copy of the segment with the given name, if present in the
// current generation.
func (s *Store) Find(name string) (models.Segment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seg, ok := s.index[name]
	if !ok {
		return models.Segment{}, false
	}
	return *seg, true
}

// Claim scans segments in stored order and transitions the first queued one
// to claimed, stamping it with workerID and the claim time.
//
// The scan and transition are one critical section, so no two concurrent
// calls can claim the same segment. A false return means no work is queued
// right now; it is a normal idle signal, not exhaustion.
func (s *Store) Claim(workerID string) (models.Segment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, seg := range s.segments {
		if seg.Status != models.StatusQueued {
			continue
		}
		seg.Status = models.StatusClaimed
		seg.ClaimedBy = workerID
		seg.ClaimedAt = time.Now()
		return *seg, true
	}
	return models.Segment{}, false
}

// ReportComplete transitions the named segment to complete and stamps the
// completion time. Calling it again for an already-complete segment is a
// no-op success. The reporter is not required to be the original claimant,
// but generation must match the generation the claim was issued under:
// segment names repeat across rebuilds, so a stale report would otherwise
// complete the same-named successor of the segment it was really for.
//
// Returns false if the segment does not exist in the current generation or
// generation is stale; callers must treat that as non-fatal.
func (s *Store) ReportComplete(name string, generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	seg, ok := s.index[name]
	if !ok || seg.Generation != generation {
		return false
	}
	s.complete(seg)
	return true
}

// AttachResult records the result reference for the named segment and
// transitions it to complete if it is not already. Upload and status report
// are independent entry points; both are idempotent and order-insensitive
// with respect to each other. Generation checking matches ReportComplete.
func (s *Store) AttachResult(name, resultRef string, generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	seg, ok := s.index[name]
	if !ok || seg.Generation != generation {
		return false
	}
	seg.ResultRef = resultRef
	s.complete(seg)
	return true
}

// complete marks seg complete exactly once. Caller must hold s.mu.
func (s *Store) complete(seg *models.Segment) {
	if seg.Status == models.StatusComplete {
		return
	}
	seg.Status = models.StatusComplete
	seg.CompletedAt = time.Now()
}

// AllComplete reports whether the collection is non-empty and every segment
// has reached the complete state. An empty store is never complete.
func (s *Store) AllComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.segments) == 0 {
		return false
	}
	for _, seg := range s.segments {
		if seg.Status != models.StatusComplete {
			return false
		}
	}
	return true
}

// ReclaimExpired returns every claimed segment whose claim is older than
// lease back to the queued state and reports their names. A crashed worker
// otherwise starves the segments it claimed forever.
//
// Lease handling is opt-in: callers that want the original trust-the-worker
// behavior simply never invoke it.
func (s *Store) ReclaimExpired(lease time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-lease)
	var reclaimed []string
	for _, seg := range s.segments {
		if seg.Status != models.StatusClaimed {
			continue
		}
		if seg.ClaimedAt.After(cutoff) {
			continue
		}
		seg.Status = models.StatusQueued
		seg.ClaimedBy = ""
		seg.ClaimedAt = time.Time{}
		reclaimed = append(reclaimed, seg.Name)
	}
	return reclaimed
}
