// Package merger implements the merge orchestrator: once every segment is
// complete it concatenates the uploaded results, in name order, into the
// final output file.
package merger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"encoderfarm/command"
	"encoderfarm/command/concat"
	"encoderfarm/dispatch"
	"encoderfarm/internal/nameutil"
	"encoderfarm/models"
)

// DefaultOutputName is used when the caller does not name the merged file.
const DefaultOutputName = "final_merged.mp4"

var (
	// ErrNotAllComplete is returned when a merge is requested while any
	// segment is still queued or claimed.
	ErrNotAllComplete = errors.New("not all segments are complete")

	// ErrNothingToMerge is returned when no complete segment has a result
	// file present on disk.
	ErrNothingToMerge = errors.New("no processed segments found to merge")
)

// Merger reassembles processed segment results.
//
// Concatenation first runs in stream-copy mode; if that invocation fails it
// retries exactly once in re-encode mode before giving up.
type Merger struct {
	store      *dispatch.Store
	resultsDir string
	outputDir  string
	runner     command.Runner
}

// NewMerger creates a merge orchestrator over the given store and
// directories.
func NewMerger(store *dispatch.Store, resultsDir, outputDir string) *Merger {
	return &Merger{
		store:      store,
		resultsDir: resultsDir,
		outputDir:  outputDir,
		runner:     command.Exec,
	}
}

// SetRunner overrides the tool runner. Used by tests.
func (m *Merger) SetRunner(r command.Runner) *Merger {
	m.runner = r
	return m
}

// Merge concatenates all result files in segment-name order and returns the
// output path. It fails with ErrNotAllComplete unless every segment in the
// store is complete.
func (m *Merger) Merge(ctx context.Context, outputName string) (string, error) {
	if !m.store.AllComplete() {
		return "", ErrNotAllComplete
	}

	if outputName == "" {
		outputName = DefaultOutputName
	}
	outputName = nameutil.Sanitize(outputName)

	inputs := m.orderedResultPaths(m.store.Snapshot())
	if len(inputs) == 0 {
		return "", ErrNothingToMerge
	}

	listPath, err := m.createConcatFile(inputs)
	if err != nil {
		return "", fmt.Errorf("failed to create concat list: %w", err)
	}
	defer os.Remove(listPath)

	if err := os.MkdirAll(m.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(m.outputDir, outputName)

	builder := concat.NewConcatBuilder(listPath, outputPath).SetRunner(m.runner)
	if err := builder.Run(ctx); err != nil {
		log.Printf("[coordinator] stream-copy concat failed, retrying with re-encode: %v", err)
		builder.SetMode(concat.ModeReencode)
		if err := builder.Run(ctx); err != nil {
			return "", fmt.Errorf("concatenation failed after re-encode fallback: %w", err)
		}
	}

	if _, err := os.Stat(outputPath); err != nil {
		return "", fmt.Errorf("merged output not created: %w", err)
	}

	log.Printf("[coordinator] merged %d segments into %s", len(inputs), outputPath)
	return outputPath, nil
}

// orderedResultPaths sorts the snapshot by segment name and keeps only
// segments whose result file is still present on disk. Reassembly order is
// the sorted name order, never claim or completion order.
func (m *Merger) orderedResultPaths(segments []models.Segment) []string {
	sort.Slice(segments, func(i, j int) bool {
		return segments[i].Name < segments[j].Name
	})

	paths := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg.ResultRef == "" {
			continue
		}
		full := filepath.Join(m.resultsDir, seg.ResultRef)
		if _, err := os.Stat(full); err != nil {
			continue
		}
		paths = append(paths, full)
	}
	return paths
}

// createConcatFile writes the concat-demuxer list file.
// Format:
//
//	file '/path/to/seg_000.processed.mp4'
//	file '/path/to/seg_001.processed.mp4'
func (m *Merger) createConcatFile(inputs []string) (string, error) {
	tmpFile, err := os.CreateTemp("", "merge-list-*.txt")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer tmpFile.Close()

	for _, input := range inputs {
		absPath, err := filepath.Abs(input)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path for %s: %w", input, err)
		}

		// Escape single quotes for the concat demuxer's quoting rules.
		escapedPath := strings.ReplaceAll(absPath, "'", "'\\''")

		if _, err := fmt.Fprintf(tmpFile, "file '%s'\n", escapedPath); err != nil {
			return "", fmt.Errorf("failed to write concat list: %w", err)
		}
	}

	return tmpFile.Name(), nil
}
