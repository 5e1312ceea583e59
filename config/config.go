package config

import "time"

// Config holds all coordinator and worker configuration options.
//
// One file configures both binaries; each binary reads only its own section
// plus the shared tool settings.
type Config struct {
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Worker      WorkerConfig      `yaml:"worker"`
	Transcode   TranscodeConfig   `yaml:"transcode"`
	Merge       MergeConfig       `yaml:"merge"`
}

// CoordinatorConfig holds dispatch-service settings.
type CoordinatorConfig struct {
	ListenAddr     string `yaml:"listen_addr"`
	ChunksDir      string `yaml:"chunks_dir"`      // source segment files
	ResultsDir     string `yaml:"results_dir"`     // uploaded result files
	OutputDir      string `yaml:"output_dir"`      // merged output
	SegmentSeconds int    `yaml:"segment_seconds"` // default split duration
	MaxUploadMB    int64  `yaml:"max_upload_mb"`   // per-request upload cap
	ClaimLeaseSec  int    `yaml:"claim_lease_sec"` // 0 = never reclaim claimed segments
}

// ClaimLease returns the claim lease duration; zero disables reclamation.
func (c CoordinatorConfig) ClaimLease() time.Duration {
	return time.Duration(c.ClaimLeaseSec) * time.Second
}

// MaxUploadBytes returns the upload cap in bytes.
func (c CoordinatorConfig) MaxUploadBytes() int64 {
	return c.MaxUploadMB * 1024 * 1024
}

// WorkerConfig holds worker-agent settings.
type WorkerConfig struct {
	CoordinatorURL  string `yaml:"coordinator_url"`
	WorkDir         string `yaml:"work_dir"`
	ID              string `yaml:"id"`                // empty = auto-generated label
	PollIntervalSec int    `yaml:"poll_interval_sec"` // sleep when no work is queued
	BackoffSec      int    `yaml:"backoff_sec"`       // sleep after an iteration fails
}

// PollInterval returns the idle poll interval.
func (w WorkerConfig) PollInterval() time.Duration {
	return time.Duration(w.PollIntervalSec) * time.Second
}

// Backoff returns the error backoff interval.
func (w WorkerConfig) Backoff() time.Duration {
	return time.Duration(w.BackoffSec) * time.Second
}

// TranscodeConfig holds the settings passed to the transcoding tool.
type TranscodeConfig struct {
	Codec        string `yaml:"codec"`         // e.g. "libx264", "libx265"
	Preset       string `yaml:"preset"`        // e.g. "ultrafast", "medium", "slow"
	CRF          int    `yaml:"crf"`           // lower = better quality
	Scale        string `yaml:"scale"`         // e.g. "-2:720" (empty = keep original)
	FrameRate    int    `yaml:"frame_rate"`    // 0 = keep original
	AudioCodec   string `yaml:"audio_codec"`   // e.g. "aac", "libopus"
	AudioBitrate string `yaml:"audio_bitrate"` // e.g. "96k", "128k"
}

// MergeConfig holds merge orchestrator settings.
type MergeConfig struct {
	OutputName string `yaml:"output_name"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Coordinator: CoordinatorConfig{
			ListenAddr:     ":5000",
			ChunksDir:      "chunks",
			ResultsDir:     "results",
			OutputDir:      "output",
			SegmentSeconds: 60,
			MaxUploadMB:    10 * 1024, // 10 GiB
			ClaimLeaseSec:  0,         // trust workers, never reclaim
		},
		Worker: WorkerConfig{
			CoordinatorURL:  "http://127.0.0.1:5000",
			WorkDir:         "worker_tmp",
			PollIntervalSec: 5,
			BackoffSec:      5,
		},
		Transcode: TranscodeConfig{
			Codec:        "libx264",
			Preset:       "medium",
			CRF:          24,
			Scale:        "-2:720",
			FrameRate:    24,
			AudioCodec:   "aac",
			AudioBitrate: "96k",
		},
		Merge: MergeConfig{
			OutputName: "final_merged.mp4",
		},
	}
}
