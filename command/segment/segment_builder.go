// Package segment builds the external segmentation tool invocation that
// splits a source file into fixed-duration, sortably named segment files.
package segment

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"encoderfarm/command"
)

// DefaultPattern is the output naming pattern. The zero-padded ordinal makes
// segment names unique and lexicographically sortable, which the dispatch
// store relies on for reassembly order.
const DefaultPattern = "seg_%03d.mp4"

// SegmentBuilder builds the command that splits an input file into
// fixed-duration segments via the ffmpeg segment muxer.
type SegmentBuilder struct {
	sourcePath     string
	outputDir      string
	segmentSeconds int
	pattern        string
	runner         command.Runner
}

// NewSegmentBuilder creates a new SegmentBuilder with the default output
// pattern.
func NewSegmentBuilder(sourcePath, outputDir string, segmentSeconds int) *SegmentBuilder {
	return &SegmentBuilder{
		sourcePath:     sourcePath,
		outputDir:      outputDir,
		segmentSeconds: segmentSeconds,
		pattern:        DefaultPattern,
		runner:         command.Exec,
	}
}

// SetPattern overrides the output naming pattern.
func (s *SegmentBuilder) SetPattern(pattern string) *SegmentBuilder {
	s.pattern = pattern
	return s
}

// SetRunner overrides the tool runner. Used by tests.
func (s *SegmentBuilder) SetRunner(r command.Runner) *SegmentBuilder {
	s.runner = r
	return s
}

// BuildArgs constructs the segmentation arguments.
// Streams are copied without re-encoding; timestamps reset per segment so
// every output file is independently playable.
func (s *SegmentBuilder) BuildArgs() []string {
	return []string{
		"-y",
		"-i", s.sourcePath,
		"-c", "copy",
		"-map", "0",
		"-f", "segment",
		"-segment_time", strconv.Itoa(s.segmentSeconds),
		"-reset_timestamps", "1",
		filepath.Join(s.outputDir, s.pattern),
	}
}

// Run executes the segmentation command.
func (s *SegmentBuilder) Run(ctx context.Context) error {
	if err := s.runner(ctx, command.FFmpegBin, s.BuildArgs()...); err != nil {
		return fmt.Errorf("segment split failed: %w", err)
	}
	return nil
}

// DryRun returns the command string without executing.
func (s *SegmentBuilder) DryRun() string {
	return fmt.Sprintf("%s %s", command.FFmpegBin, strings.Join(s.BuildArgs(), " "))
}
