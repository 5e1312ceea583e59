package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"encoderfarm/command"
	"encoderfarm/command/transcode"
	"encoderfarm/config"
	"encoderfarm/internal/nameutil"
)

// Agent is one worker process: a sequential claim/fetch/transcode/upload/
// report loop with no internal concurrency. Multiple agents coordinate
// purely through the dispatch HTTP API.
type Agent struct {
	id     string
	client *Client

	workDir      string
	pollInterval time.Duration
	backoff      time.Duration
	transcodeCfg config.TranscodeConfig

	// Paces claim requests so a busy coordinator is never hammered in a
	// tight loop, independent of the idle poll interval.
	claimLimiter *rate.Limiter

	runner command.Runner
}

// NewAgent creates a worker agent from configuration. If cfg.Worker.ID is
// empty an opaque label is generated; the coordinator uses it for
// observability only.
func NewAgent(cfg *config.Config, client *Client) *Agent {
	id := cfg.Worker.ID
	if id == "" {
		id = newWorkerID()
	}

	return &Agent{
		id:           id,
		client:       client,
		workDir:      cfg.Worker.WorkDir,
		pollInterval: cfg.Worker.PollInterval(),
		backoff:      cfg.Worker.Backoff(),
		transcodeCfg: cfg.Transcode,
		claimLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
		runner:       command.Exec,
	}
}

// SetRunner overrides the transcode tool runner. Used by tests.
func (a *Agent) SetRunner(r command.Runner) *Agent {
	a.runner = r
	return a
}

// ID returns the agent's identity label.
func (a *Agent) ID() string {
	return a.id
}

// newWorkerID builds an opaque worker label from the hostname and a random
// suffix. It identifies the worker in logs and status output, nothing more.
func newWorkerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}

// Run executes the agent loop until ctx is cancelled.
//
// Each iteration claims at most one segment. Any failure inside an
// iteration is logged, the claim is abandoned (the segment stays claimed on
// the coordinator) and the loop backs off before polling again.
func (a *Agent) Run(ctx context.Context) error {
	if err := os.MkdirAll(a.workDir, 0755); err != nil {
		return fmt.Errorf("failed to create work directory: %w", err)
	}

	log.Printf("[worker] %s starting, coordinator %s", a.id, a.client.baseURL)

	for {
		if err := a.claimLimiter.Wait(ctx); err != nil {
			// Wait can fail without the context being cancelled, e.g. a
			// misconfigured limiter; that must surface as the real error.
			return err
		}

		job, err := a.client.GetJob(ctx, a.id)
		if err != nil {
			log.Printf("[worker] claim failed: %v", err)
			if !a.sleep(ctx, a.backoff) {
				return ctx.Err()
			}
			continue
		}

		if job == nil {
			if !a.sleep(ctx, a.pollInterval) {
				return ctx.Err()
			}
			continue
		}

		if err := a.process(ctx, job); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[worker] segment %s failed: %v", job.Chunk, err)
			if !a.sleep(ctx, a.backoff) {
				return ctx.Err()
			}
		}
	}
}

// process runs one iteration of the per-segment state machine:
// Fetching -> Transcoding -> Uploading -> Reporting. Local artifacts are
// removed on every exit path.
func (a *Agent) process(ctx context.Context, job *Job) error {
	localIn := filepath.Join(a.workDir, nameutil.Sanitize(job.Chunk))
	localOut := filepath.Join(a.workDir, nameutil.ResultName(nameutil.Sanitize(job.Chunk)))
	defer func() {
		os.Remove(localIn)
		os.Remove(localOut)
	}()

	log.Printf("[worker] fetching %s", job.Chunk)
	if err := a.client.Download(ctx, job.URL, localIn); err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	start := time.Now()
	builder := transcode.NewTranscodeBuilder(localIn, localOut).
		SetCodec(a.transcodeCfg.Codec).
		SetPreset(a.transcodeCfg.Preset).
		SetCRF(a.transcodeCfg.CRF).
		SetScale(a.transcodeCfg.Scale).
		SetFrameRate(a.transcodeCfg.FrameRate).
		SetAudioCodec(a.transcodeCfg.AudioCodec).
		SetAudioBitrate(a.transcodeCfg.AudioBitrate).
		SetRunner(a.runner)

	if err := builder.Run(ctx); err != nil {
		return fmt.Errorf("transcode: %w", err)
	}
	log.Printf("[worker] transcoded %s in %.1fs", job.Chunk, time.Since(start).Seconds())

	if err := a.client.UploadResult(ctx, job.Chunk, job.Generation, localOut); err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	// Redundant with the upload-triggered completion; the coordinator
	// treats the duplicate as a no-op.
	found, err := a.client.ReportResult(ctx, job.Chunk, job.Generation)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if !found {
		log.Printf("[worker] segment %s vanished before report (store rebuilt?)", job.Chunk)
	}

	log.Printf("[worker] segment %s done", job.Chunk)
	return nil
}

// sleep blocks for d or until ctx is cancelled, reporting whether the caller
// should keep running.
func (a *Agent) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
