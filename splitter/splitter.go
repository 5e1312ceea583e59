// Package splitter implements the split orchestrator: it drives the external
// segmentation tool and refreshes the dispatch store from its output.
package splitter

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"encoderfarm/command"
	"encoderfarm/command/segment"
	"encoderfarm/dispatch"
)

const (
	// MinSegmentSeconds is the minimum allowed segment duration.
	MinSegmentSeconds = 1

	// MaxSegmentSeconds is the maximum allowed segment duration (15 minutes).
	MaxSegmentSeconds = 900
)

// Splitter clears prior artifacts, invokes the segmentation tool and then
// triggers a store rebuild.
//
// If the tool fails, the rebuild is never reached and the store keeps its
// prior, now stale, generation; the caller decides whether to retry.
type Splitter struct {
	store      *dispatch.Store
	chunksDir  string
	resultsDir string
	runner     command.Runner
}

// NewSplitter creates a split orchestrator over the given store and artifact
// directories.
func NewSplitter(store *dispatch.Store, chunksDir, resultsDir string) *Splitter {
	return &Splitter{
		store:      store,
		chunksDir:  chunksDir,
		resultsDir: resultsDir,
		runner:     command.Exec,
	}
}

// SetRunner overrides the tool runner. Used by tests.
func (s *Splitter) SetRunner(r command.Runner) *Splitter {
	s.runner = r
	return s
}

// Split splits inputPath into fixed-duration segments and rebuilds the
// dispatch store from the resulting files. Returns the new segment count.
func (s *Splitter) Split(ctx context.Context, inputPath string, segmentSeconds int) (int, error) {
	if inputPath == "" {
		return 0, fmt.Errorf("input path cannot be empty")
	}
	if segmentSeconds < MinSegmentSeconds || segmentSeconds > MaxSegmentSeconds {
		return 0, fmt.Errorf("segment duration must be between %d and %d seconds, got %d",
			MinSegmentSeconds, MaxSegmentSeconds, segmentSeconds)
	}
	if _, err := os.Stat(inputPath); err != nil {
		return 0, fmt.Errorf("input file not accessible: %w", err)
	}

	if err := s.resetDirectories(); err != nil {
		return 0, err
	}

	builder := segment.NewSegmentBuilder(inputPath, s.chunksDir, segmentSeconds).
		SetRunner(s.runner)
	if err := builder.Run(ctx); err != nil {
		return 0, fmt.Errorf("segmentation tool failed: %w", err)
	}

	count, err := s.store.Rebuild()
	if err != nil {
		return 0, fmt.Errorf("store rebuild after split failed: %w", err)
	}

	log.Printf("[coordinator] split %s into %d segments (generation %d)",
		filepath.Base(inputPath), count, s.store.Generation())
	return count, nil
}

// resetDirectories removes every prior segment and result artifact, creating
// the directories if they do not yet exist.
func (s *Splitter) resetDirectories() error {
	for _, dir := range []string{s.chunksDir, s.resultsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", dir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
				return fmt.Errorf("failed to clear %s: %w", dir, err)
			}
		}
	}
	return nil
}
