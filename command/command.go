// Package command provides the core Command interface for building and
// executing the external tool invocations the coordinator and workers drive:
// segmentation, transcoding and concatenation.
//
// All specialized builders (segment.SegmentBuilder, transcode.TranscodeBuilder,
// concat.ConcatBuilder) implement the Command interface. The tools themselves
// are opaque processes; builders only assemble argument lists and run them.
package command

import (
	"context"
	"fmt"
	"os/exec"
)

// FFmpegBin is the executable used for segmentation, transcoding and
// concatenation.
const FFmpegBin = "ffmpeg"

// Command represents an external tool invocation that can be built,
// executed, or previewed.
type Command interface {
	// BuildArgs constructs the tool's argument list, suitable for
	// exec.Command(bin, args...).
	BuildArgs() []string

	// Run executes the tool and blocks until it exits. A non-zero exit is
	// returned as an error carrying the tool's combined output.
	Run(ctx context.Context) error

	// DryRun returns the full command line without executing it.
	DryRun() string
}

// Runner executes an external tool. Builders default to Exec; tests swap in
// a stub so no real tool is spawned.
type Runner func(ctx context.Context, bin string, args ...string) error

// Exec runs bin with args, capturing combined output for error reporting.
// Cancelling ctx kills the process.
func Exec(ctx context.Context, bin string, args ...string) error {
	cmd := exec.CommandContext(ctx, bin, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %w (output: %s)", bin, err, string(output))
	}
	return nil
}
