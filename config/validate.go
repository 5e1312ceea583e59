package config

import (
	"fmt"
	"net/url"
)

// ValidateCoordinator checks the coordinator-side configuration.
func (c *Config) ValidateCoordinator() error {
	coord := c.Coordinator

	if coord.ListenAddr == "" {
		return fmt.Errorf("coordinator.listen_addr cannot be empty")
	}
	if coord.ChunksDir == "" {
		return fmt.Errorf("coordinator.chunks_dir cannot be empty")
	}
	if coord.ResultsDir == "" {
		return fmt.Errorf("coordinator.results_dir cannot be empty")
	}
	if coord.OutputDir == "" {
		return fmt.Errorf("coordinator.output_dir cannot be empty")
	}
	if coord.ChunksDir == coord.ResultsDir {
		return fmt.Errorf("coordinator.chunks_dir and coordinator.results_dir must differ")
	}
	if coord.SegmentSeconds < 1 {
		return fmt.Errorf("coordinator.segment_seconds must be at least 1, got %d", coord.SegmentSeconds)
	}
	if coord.MaxUploadMB < 1 {
		return fmt.Errorf("coordinator.max_upload_mb must be at least 1, got %d", coord.MaxUploadMB)
	}
	if coord.ClaimLeaseSec < 0 {
		return fmt.Errorf("coordinator.claim_lease_sec cannot be negative, got %d", coord.ClaimLeaseSec)
	}

	if c.Merge.OutputName == "" {
		return fmt.Errorf("merge.output_name cannot be empty")
	}

	return nil
}

// ValidateWorker checks the worker-side configuration.
func (c *Config) ValidateWorker() error {
	w := c.Worker

	u, err := url.Parse(w.CoordinatorURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("worker.coordinator_url %q is not a valid URL", w.CoordinatorURL)
	}
	if w.WorkDir == "" {
		return fmt.Errorf("worker.work_dir cannot be empty")
	}
	if w.PollIntervalSec < 1 {
		return fmt.Errorf("worker.poll_interval_sec must be at least 1, got %d", w.PollIntervalSec)
	}
	if w.BackoffSec < 1 {
		return fmt.Errorf("worker.backoff_sec must be at least 1, got %d", w.BackoffSec)
	}

	return c.validateTranscode()
}

// validateTranscode checks the shared transcoding settings.
func (c *Config) validateTranscode() error {
	t := c.Transcode

	if t.Codec == "" {
		return fmt.Errorf("transcode.codec cannot be empty")
	}
	if t.Preset == "" {
		return fmt.Errorf("transcode.preset cannot be empty")
	}
	if t.CRF < 0 || t.CRF > 51 {
		return fmt.Errorf("transcode.crf must be between 0 and 51, got %d", t.CRF)
	}
	if t.FrameRate < 0 {
		return fmt.Errorf("transcode.frame_rate cannot be negative, got %d", t.FrameRate)
	}
	if t.AudioCodec == "" {
		return fmt.Errorf("transcode.audio_codec cannot be empty")
	}

	return nil
}
