package transcode

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestBuildArgsDefaults(t *testing.T) {
	builder := NewTranscodeBuilder("in.mp4", "out.mp4")

	expected := []string{
		"-y",
		"-i", "in.mp4",
		"-vf", "scale=-2:720,fps=24",
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "24",
		"-c:a", "aac",
		"-b:a", "96k",
		"out.mp4",
	}

	if got := builder.BuildArgs(); !reflect.DeepEqual(got, expected) {
		t.Errorf("BuildArgs() = %v, expected %v", got, expected)
	}
}

func TestBuildVideoFilter(t *testing.T) {
	tests := []struct {
		name     string
		scale    string
		fps      int
		expected string
	}{
		{"both", "-2:720", 24, "scale=-2:720,fps=24"},
		{"scale only", "1920:1080", 0, "scale=1920:1080"},
		{"fps only", "", 30, "fps=30"},
		{"neither", "", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			builder := NewTranscodeBuilder("in.mp4", "out.mp4").
				SetScale(tt.scale).
				SetFrameRate(tt.fps)
			if got := builder.buildVideoFilter(); got != tt.expected {
				t.Errorf("buildVideoFilter() = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestBuildArgsOmitsEmptyFilter(t *testing.T) {
	builder := NewTranscodeBuilder("in.mp4", "out.mp4").SetScale("").SetFrameRate(0)
	for _, arg := range builder.BuildArgs() {
		if arg == "-vf" {
			t.Errorf("Expected no -vf flag when filters are empty")
		}
	}
}

func TestSettersChain(t *testing.T) {
	builder := NewTranscodeBuilder("in.mp4", "out.mp4").
		SetCodec("libx265").
		SetPreset("slow").
		SetCRF(18).
		SetAudioCodec("libopus").
		SetAudioBitrate("128k")

	cmd := builder.DryRun()
	for _, want := range []string{"libx265", "slow", "-crf 18", "libopus", "128k"} {
		if !strings.Contains(cmd, want) {
			t.Errorf("Expected %q in command, got %s", want, cmd)
		}
	}
}

func TestRunWrapsError(t *testing.T) {
	toolErr := errors.New("exit status 187")
	builder := NewTranscodeBuilder("in.mp4", "out.mp4").
		SetRunner(func(ctx context.Context, bin string, args ...string) error {
			return toolErr
		})

	err := builder.Run(context.Background())
	if !errors.Is(err, toolErr) {
		t.Errorf("Expected wrapped tool error, got %v", err)
	}
	if err == nil || !strings.Contains(err.Error(), "transcode failed") {
		t.Errorf("Expected context in error, got %v", err)
	}
}
