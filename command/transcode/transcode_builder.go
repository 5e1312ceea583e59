// Package transcode builds the external transcoding tool invocation a worker
// runs against a fetched segment.
package transcode

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"encoderfarm/command"
)

// TranscodeBuilder builds a single-input, single-output transcode command.
type TranscodeBuilder struct {
	inputPath  string
	outputPath string

	// Video settings
	codec  string
	preset string
	crf    int
	scale  string
	fps    int

	// Audio settings
	audioCodec   string
	audioBitrate string

	runner command.Runner
}

// NewTranscodeBuilder creates a new transcode command builder with default
// settings (720p at 24 fps, libx264 medium crf 24, aac 96k).
func NewTranscodeBuilder(inputPath, outputPath string) *TranscodeBuilder {
	return &TranscodeBuilder{
		inputPath:    inputPath,
		outputPath:   outputPath,
		codec:        "libx264",
		preset:       "medium",
		crf:          24,
		scale:        "-2:720",
		fps:          24,
		audioCodec:   "aac",
		audioBitrate: "96k",
		runner:       command.Exec,
	}
}

// SetCodec sets the video codec (e.g. "libx264", "libx265").
func (t *TranscodeBuilder) SetCodec(codec string) *TranscodeBuilder {
	t.codec = codec
	return t
}

// SetPreset sets the encoding preset.
func (t *TranscodeBuilder) SetPreset(preset string) *TranscodeBuilder {
	t.preset = preset
	return t
}

// SetCRF sets the Constant Rate Factor (lower is better quality).
func (t *TranscodeBuilder) SetCRF(crf int) *TranscodeBuilder {
	t.crf = crf
	return t
}

// SetScale sets the scale filter expression (e.g. "-2:720"). Empty keeps the
// original resolution.
func (t *TranscodeBuilder) SetScale(scale string) *TranscodeBuilder {
	t.scale = scale
	return t
}

// SetFrameRate sets the output frame rate. Zero keeps the original rate.
func (t *TranscodeBuilder) SetFrameRate(fps int) *TranscodeBuilder {
	t.fps = fps
	return t
}

// SetAudioCodec sets the audio codec (e.g. "aac", "libopus").
func (t *TranscodeBuilder) SetAudioCodec(codec string) *TranscodeBuilder {
	t.audioCodec = codec
	return t
}

// SetAudioBitrate sets the audio bitrate (e.g. "96k", "128k").
func (t *TranscodeBuilder) SetAudioBitrate(bitrate string) *TranscodeBuilder {
	t.audioBitrate = bitrate
	return t
}

// SetRunner overrides the tool runner. Used by tests.
func (t *TranscodeBuilder) SetRunner(r command.Runner) *TranscodeBuilder {
	t.runner = r
	return t
}

// BuildArgs constructs the transcode arguments.
func (t *TranscodeBuilder) BuildArgs() []string {
	args := []string{
		"-y",
		"-i", t.inputPath,
	}

	if vf := t.buildVideoFilter(); vf != "" {
		args = append(args, "-vf", vf)
	}

	args = append(args,
		"-c:v", t.codec,
		"-preset", t.preset,
		"-crf", strconv.Itoa(t.crf),
		"-c:a", t.audioCodec,
		"-b:a", t.audioBitrate,
		t.outputPath,
	)
	return args
}

// buildVideoFilter assembles the -vf chain from the scale and fps settings.
func (t *TranscodeBuilder) buildVideoFilter() string {
	var filters []string
	if t.scale != "" {
		filters = append(filters, "scale="+t.scale)
	}
	if t.fps > 0 {
		filters = append(filters, fmt.Sprintf("fps=%d", t.fps))
	}
	return strings.Join(filters, ",")
}

// Run executes the transcode command. Any non-zero exit is fatal for the
// enclosing worker iteration.
func (t *TranscodeBuilder) Run(ctx context.Context) error {
	if err := t.runner(ctx, command.FFmpegBin, t.BuildArgs()...); err != nil {
		return fmt.Errorf("transcode failed: %w", err)
	}
	return nil
}

// DryRun returns the command string without executing.
func (t *TranscodeBuilder) DryRun() string {
	return fmt.Sprintf("%s %s", command.FFmpegBin, strings.Join(t.BuildArgs(), " "))
}
