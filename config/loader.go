package config

import (
	"flag"
	"fmt"
)

// LoadCoordinator loads coordinator configuration with priority:
// CLI flags > config file > defaults. args is the command line without the
// program name.
func LoadCoordinator(args []string) (*Config, error) {
	fs := flag.NewFlagSet("coordinator", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file (YAML)")
	listen := fs.String("listen", "", "HTTP listen address")
	chunksDir := fs.String("chunks-dir", "", "directory for source segment files")
	resultsDir := fs.String("results-dir", "", "directory for uploaded result files")
	outputDir := fs.String("output-dir", "", "directory for the merged output")
	segmentSeconds := fs.Int("segment-seconds", 0, "default split duration in seconds")
	claimLease := fs.Int("claim-lease", -1, "seconds before a claimed segment is requeued (0 disables)")

	cfg, err := loadBase(fs, args, configPath)
	if err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Coordinator.ListenAddr = *listen
		case "chunks-dir":
			cfg.Coordinator.ChunksDir = *chunksDir
		case "results-dir":
			cfg.Coordinator.ResultsDir = *resultsDir
		case "output-dir":
			cfg.Coordinator.OutputDir = *outputDir
		case "segment-seconds":
			cfg.Coordinator.SegmentSeconds = *segmentSeconds
		case "claim-lease":
			cfg.Coordinator.ClaimLeaseSec = *claimLease
		}
	})

	if err := cfg.ValidateCoordinator(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWorker loads worker configuration with the same priority order.
func LoadWorker(args []string) (*Config, error) {
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file (YAML)")
	master := fs.String("master", "", "coordinator base URL")
	workDir := fs.String("workdir", "", "local scratch directory")
	id := fs.String("id", "", "worker identity label (default: generated)")
	poll := fs.Int("poll", 0, "idle poll interval in seconds")
	backoff := fs.Int("backoff", 0, "error backoff in seconds")

	cfg, err := loadBase(fs, args, configPath)
	if err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "master":
			cfg.Worker.CoordinatorURL = *master
		case "workdir":
			cfg.Worker.WorkDir = *workDir
		case "id":
			cfg.Worker.ID = *id
		case "poll":
			cfg.Worker.PollIntervalSec = *poll
		case "backoff":
			cfg.Worker.BackoffSec = *backoff
		}
	})

	if err := cfg.ValidateWorker(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadBase parses args and returns defaults layered with the config file,
// if one was given or found in a standard location.
func loadBase(fs *flag.FlagSet, args []string, configPath *string) (*Config, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	path := *configPath
	if path == "" {
		path = FindConfigFile()
	}

	if path == "" {
		return DefaultConfig(), nil
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return cfg, nil
}
