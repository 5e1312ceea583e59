// Package server exposes the dispatch service over HTTP: the claim/report
// protocol used by workers plus the split, merge and status operations.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"encoderfarm/dispatch"
	"encoderfarm/internal/nameutil"
	"encoderfarm/merger"
	"encoderfarm/splitter"
)

// Server handles the coordinator's HTTP surface.
//
// All coordination state lives in the dispatch store; handlers never hold
// any lock across file I/O.
type Server struct {
	store      *dispatch.Store
	splitter   *splitter.Splitter
	merger     *merger.Merger
	chunksDir  string
	resultsDir string

	maxUploadBytes int64
	segmentSeconds int // default for /split requests that omit it
	outputName     string
}

// NewServer creates the coordinator HTTP server.
func NewServer(store *dispatch.Store, split *splitter.Splitter, merge *merger.Merger,
	chunksDir, resultsDir string, maxUploadBytes int64, segmentSeconds int, outputName string) *Server {
	return &Server{
		store:          store,
		splitter:       split,
		merger:         merge,
		chunksDir:      chunksDir,
		resultsDir:     resultsDir,
		maxUploadBytes: maxUploadBytes,
		segmentSeconds: segmentSeconds,
		outputName:     outputName,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /get_job", s.handleGetJob)
	mux.HandleFunc("POST /report_result", s.handleReportResult)
	mux.HandleFunc("POST /upload_result", s.handleUploadResult)
	mux.HandleFunc("GET /chunks/{name}", s.handleChunk)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /reload_jobs", s.handleReloadJobs)
	mux.HandleFunc("POST /split", s.handleSplit)
	mux.HandleFunc("POST /merge", s.handleMerge)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	return mux
}

// getJobResponse is the claim reply. Chunk is null when no work is queued,
// which is a normal idle signal rather than an error. Generation identifies
// the store generation the claim was issued under; the worker must echo it
// when reporting or uploading the result.
type getJobResponse struct {
	Chunk      *string `json:"chunk"`
	Generation uint64  `json:"generation,omitempty"`
	URL        string  `json:"url,omitempty"`
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	workerID := r.URL.Query().Get("worker_id")
	if workerID == "" {
		workerID = "unknown"
	}

	seg, ok := s.store.Claim(workerID)
	if !ok {
		writeJSON(w, http.StatusOK, getJobResponse{Chunk: nil})
		return
	}

	log.Printf("[coordinator] segment %s claimed by %s", seg.Name, workerID)
	writeJSON(w, http.StatusOK, getJobResponse{
		Chunk:      &seg.Name,
		Generation: seg.Generation,
		URL:        fmt.Sprintf("http://%s/chunks/%s", r.Host, seg.Name),
	})
}

type reportRequest struct {
	Chunk      string `json:"chunk"`
	Generation uint64 `json:"generation"`
}

type okResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleReportResult(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Chunk == "" {
		writeJSON(w, http.StatusBadRequest, okResponse{OK: false, Message: "missing chunk"})
		return
	}

	ok := s.store.ReportComplete(req.Chunk, req.Generation)
	if !ok {
		log.Printf("[coordinator] completion report for unknown or stale segment %s (generation %d) discarded",
			req.Chunk, req.Generation)
	}
	writeJSON(w, http.StatusOK, okResponse{OK: ok})
}

func (s *Server) handleUploadResult(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, okResponse{OK: false, Message: "invalid multipart request"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, okResponse{OK: false, Message: "missing chunk, file or generation"})
		return
	}
	defer file.Close()

	chunkName := r.FormValue("chunk")
	generation, genErr := strconv.ParseUint(r.FormValue("generation"), 10, 64)
	if chunkName == "" || genErr != nil {
		writeJSON(w, http.StatusBadRequest, okResponse{OK: false, Message: "missing chunk, file or generation"})
		return
	}

	filename := nameutil.Sanitize(header.Filename)
	savePath := filepath.Join(s.resultsDir, filename)

	out, err := os.Create(savePath)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, okResponse{OK: false, Message: "failed to store result"})
		return
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		os.Remove(savePath)
		writeJSON(w, http.StatusInternalServerError, okResponse{OK: false, Message: "failed to store result"})
		return
	}

	if !s.store.AttachResult(chunkName, filename, generation) {
		// Rebuild raced with this upload; the file is orphaned but harmless,
		// the next split clears the results directory.
		log.Printf("[coordinator] result upload for unknown or stale segment %s (generation %d) discarded",
			chunkName, generation)
		writeJSON(w, http.StatusOK, okResponse{OK: false, Message: "unknown segment"})
		return
	}

	log.Printf("[coordinator] received %s for segment %s", filename, chunkName)
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	name := nameutil.Sanitize(r.PathValue("name"))

	if _, ok := s.store.Find(name); !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, filepath.Join(s.chunksDir, name))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Store-Generation", fmt.Sprintf("%d", s.store.Generation()))
	writeJSON(w, http.StatusOK, s.store.Snapshot())
}

type countResponse struct {
	Count int `json:"count"`
}

func (s *Server) handleReloadJobs(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.Rebuild()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, okResponse{OK: false, Message: err.Error()})
		return
	}

	log.Printf("[coordinator] jobs reloaded: %d (generation %d)", count, s.store.Generation())
	writeJSON(w, http.StatusOK, countResponse{Count: count})
}

type splitRequest struct {
	Input          string `json:"input"`
	SegmentSeconds int    `json:"segment_seconds"`
}

func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request) {
	var req splitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Input == "" {
		writeJSON(w, http.StatusBadRequest, okResponse{OK: false, Message: "missing input"})
		return
	}
	if req.SegmentSeconds == 0 {
		req.SegmentSeconds = s.segmentSeconds
	}

	count, err := s.splitter.Split(r.Context(), req.Input, req.SegmentSeconds)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, okResponse{OK: false, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: count})
}

type mergeRequest struct {
	Output string `json:"output"`
}

type mergeResponse struct {
	Path string `json:"path"`
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if r.Body != nil {
		// Body is optional; an empty or absent body means default output name.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Output == "" {
		req.Output = s.outputName
	}

	path, err := s.merger.Merge(r.Context(), req.Output)
	switch {
	case errors.Is(err, merger.ErrNotAllComplete):
		writeJSON(w, http.StatusConflict, okResponse{OK: false, Message: err.Error()})
		return
	case errors.Is(err, merger.ErrNothingToMerge):
		writeJSON(w, http.StatusConflict, okResponse{OK: false, Message: err.Error()})
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, okResponse{OK: false, Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, mergeResponse{Path: path})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[coordinator] failed to encode response: %v", err)
	}
}
