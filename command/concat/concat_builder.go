// Package concat builds the external concatenation tool invocation used to
// reassemble processed segments, in stream-copy or re-encode mode.
package concat

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"encoderfarm/command"
)

// Mode selects how the concatenated streams are produced.
type Mode string

const (
	// ModeCopy concatenates without re-encoding. Fast, but fails when the
	// inputs disagree on codec parameters.
	ModeCopy Mode = "copy"

	// ModeReencode re-encodes while concatenating. The fallback when stream
	// copy fails.
	ModeReencode Mode = "reencode"
)

// ConcatBuilder builds a concat-demuxer command over a prepared list file.
type ConcatBuilder struct {
	listPath   string
	outputPath string
	mode       Mode

	// Re-encode settings, only used in ModeReencode.
	videoCodec string
	preset     string
	crf        int
	audioCodec string

	runner command.Runner
}

// NewConcatBuilder creates a concatenation command builder in stream-copy
// mode with fixed fallback re-encode parameters (libx264 medium crf 24, aac).
func NewConcatBuilder(listPath, outputPath string) *ConcatBuilder {
	return &ConcatBuilder{
		listPath:   listPath,
		outputPath: outputPath,
		mode:       ModeCopy,
		videoCodec: "libx264",
		preset:     "medium",
		crf:        24,
		audioCodec: "aac",
		runner:     command.Exec,
	}
}

// SetMode selects stream-copy or re-encode mode.
func (c *ConcatBuilder) SetMode(mode Mode) *ConcatBuilder {
	c.mode = mode
	return c
}

// SetVideoCodec sets the re-encode video codec.
func (c *ConcatBuilder) SetVideoCodec(codec string) *ConcatBuilder {
	c.videoCodec = codec
	return c
}

// SetPreset sets the re-encode preset.
func (c *ConcatBuilder) SetPreset(preset string) *ConcatBuilder {
	c.preset = preset
	return c
}

// SetCRF sets the re-encode Constant Rate Factor.
func (c *ConcatBuilder) SetCRF(crf int) *ConcatBuilder {
	c.crf = crf
	return c
}

// SetAudioCodec sets the re-encode audio codec.
func (c *ConcatBuilder) SetAudioCodec(codec string) *ConcatBuilder {
	c.audioCodec = codec
	return c
}

// SetRunner overrides the tool runner. Used by tests.
func (c *ConcatBuilder) SetRunner(r command.Runner) *ConcatBuilder {
	c.runner = r
	return c
}

// BuildArgs constructs the concat arguments for the configured mode.
func (c *ConcatBuilder) BuildArgs() []string {
	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", c.listPath,
	}

	if c.mode == ModeReencode {
		args = append(args,
			"-c:v", c.videoCodec,
			"-preset", c.preset,
			"-crf", strconv.Itoa(c.crf),
			"-c:a", c.audioCodec,
		)
	} else {
		args = append(args, "-c", "copy")
	}

	args = append(args, c.outputPath)
	return args
}

// Run executes the concatenation command.
func (c *ConcatBuilder) Run(ctx context.Context) error {
	if err := c.runner(ctx, command.FFmpegBin, c.BuildArgs()...); err != nil {
		return fmt.Errorf("concat (%s) failed: %w", c.mode, err)
	}
	return nil
}

// DryRun returns the command string without executing.
func (c *ConcatBuilder) DryRun() string {
	return fmt.Sprintf("%s %s", command.FFmpegBin, strings.Join(c.BuildArgs(), " "))
}
