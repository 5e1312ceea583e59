package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"encoderfarm/dispatch"
	"encoderfarm/merger"
	"encoderfarm/models"
	"encoderfarm/splitter"
)

type fixture struct {
	srv        *httptest.Server
	store      *dispatch.Store
	chunksDir  string
	resultsDir string
	inputPath  string
}

// toolStub mimics both external tools: segmentation writes n files, any
// other invocation creates its output argument.
func toolStub(n int) func(ctx context.Context, bin string, args ...string) error {
	return func(ctx context.Context, bin string, args ...string) error {
		last := args[len(args)-1]
		if strings.Contains(last, "%03d") {
			dir := filepath.Dir(last)
			for i := 0; i < n; i++ {
				name := fmt.Sprintf("seg_%03d.mp4", i)
				if err := os.WriteFile(filepath.Join(dir, name), []byte("seg"), 0644); err != nil {
					return err
				}
			}
			return nil
		}
		return os.WriteFile(last, []byte("merged"), 0644)
	}
}

func newFixture(t *testing.T, segments ...string) *fixture {
	t.Helper()
	base := t.TempDir()
	chunksDir := filepath.Join(base, "chunks")
	resultsDir := filepath.Join(base, "results")
	outputDir := filepath.Join(base, "output")
	require.NoError(t, os.MkdirAll(chunksDir, 0755))
	require.NoError(t, os.MkdirAll(resultsDir, 0755))
	inputPath := filepath.Join(base, "input.mp4")
	require.NoError(t, os.WriteFile(inputPath, []byte("fake video"), 0644))

	for _, name := range segments {
		require.NoError(t, os.WriteFile(filepath.Join(chunksDir, name), []byte("bytes-of-"+name), 0644))
	}

	store := dispatch.NewStore(chunksDir, ".mp4")
	if len(segments) > 0 {
		_, err := store.Rebuild()
		require.NoError(t, err)
	}

	split := splitter.NewSplitter(store, chunksDir, resultsDir).SetRunner(toolStub(3))
	merge := merger.NewMerger(store, resultsDir, outputDir).SetRunner(toolStub(0))

	s := NewServer(store, split, merge, chunksDir, resultsDir, 64<<20, 60, "final_merged.mp4")
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, store: store, chunksDir: chunksDir, resultsDir: resultsDir, inputPath: inputPath}
}

func getJob(t *testing.T, f *fixture, workerID string) (chunk, url string, generation uint64) {
	t.Helper()
	resp, err := http.Get(f.srv.URL + "/get_job?worker_id=" + workerID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Chunk      *string `json:"chunk"`
		Generation uint64  `json:"generation"`
		URL        string  `json:"url"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	if body.Chunk == nil {
		return "", "", 0
	}
	return *body.Chunk, body.URL, body.Generation
}

func TestGetJobClaimsDistinctSegments(t *testing.T) {
	f := newFixture(t, "seg_000.mp4", "seg_001.mp4")

	first, url, gen := getJob(t, f, "w1")
	assert.Equal(t, "seg_000.mp4", first)
	assert.Contains(t, url, "/chunks/seg_000.mp4")
	assert.Equal(t, uint64(1), gen)

	second, _, _ := getJob(t, f, "w2")
	assert.Equal(t, "seg_001.mp4", second)

	// No work left: null chunk, still a 200.
	none, _, _ := getJob(t, f, "w3")
	assert.Empty(t, none)

	seg, ok := f.store.Find("seg_000.mp4")
	require.True(t, ok)
	assert.Equal(t, "w1", seg.ClaimedBy)
}

func TestReportResult(t *testing.T) {
	f := newFixture(t, "seg_000.mp4")
	getJob(t, f, "w1")

	resp, err := http.Post(f.srv.URL+"/report_result", "application/json",
		strings.NewReader(`{"chunk":"seg_000.mp4","generation":1}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.OK)

	seg, _ := f.store.Find("seg_000.mp4")
	assert.Equal(t, models.StatusComplete, seg.Status)
}

func TestReportResultUnknownSegment(t *testing.T) {
	f := newFixture(t, "seg_000.mp4")

	resp, err := http.Post(f.srv.URL+"/report_result", "application/json",
		strings.NewReader(`{"chunk":"seg_999.mp4","generation":1}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.False(t, body.OK, "not-found is a boolean failure, not an HTTP error")
}

func TestReportResultMissingChunk(t *testing.T) {
	f := newFixture(t, "seg_000.mp4")

	resp, err := http.Post(f.srv.URL+"/report_result", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func uploadResult(t *testing.T, f *fixture, chunk, generation, filename, contents string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if chunk != "" {
		require.NoError(t, mw.WriteField("chunk", chunk))
	}
	if generation != "" {
		require.NoError(t, mw.WriteField("generation", generation))
	}
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(contents))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(f.srv.URL+"/upload_result", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	return resp
}

func TestUploadResult(t *testing.T) {
	f := newFixture(t, "seg_000.mp4")
	getJob(t, f, "w1")

	resp := uploadResult(t, f, "seg_000.mp4", "1", "seg_000.processed.mp4", "processed bytes")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := os.ReadFile(filepath.Join(f.resultsDir, "seg_000.processed.mp4"))
	require.NoError(t, err)
	assert.Equal(t, "processed bytes", string(data))

	seg, _ := f.store.Find("seg_000.mp4")
	assert.Equal(t, models.StatusComplete, seg.Status)
	assert.Equal(t, "seg_000.processed.mp4", seg.ResultRef)
}

func TestUploadResultMissingField(t *testing.T) {
	f := newFixture(t, "seg_000.mp4")

	resp := uploadResult(t, f, "", "1", "seg_000.processed.mp4", "x")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp2 := uploadResult(t, f, "seg_000.mp4", "1", "", "")
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)

	resp3 := uploadResult(t, f, "seg_000.mp4", "", "seg_000.processed.mp4", "x")
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp3.StatusCode)

	// No state mutation on malformed requests.
	seg, _ := f.store.Find("seg_000.mp4")
	assert.Equal(t, models.StatusQueued, seg.Status)
}

func TestUploadResultSanitizesFilename(t *testing.T) {
	f := newFixture(t, "seg_000.mp4")

	resp := uploadResult(t, f, "seg_000.mp4", "1", "../../evil.mp4", "x")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, err := os.Stat(filepath.Join(f.resultsDir, "evil.mp4"))
	assert.NoError(t, err, "upload must land inside the results directory")
}

func TestUploadResultUnknownSegment(t *testing.T) {
	f := newFixture(t, "seg_000.mp4")

	resp := uploadResult(t, f, "seg_999.mp4", "1", "seg_999.processed.mp4", "x")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		OK      bool   `json:"ok"`
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.False(t, body.OK)
	assert.Equal(t, "unknown segment", body.Message)
}

func TestUploadResultStaleGenerationRejected(t *testing.T) {
	f := newFixture(t, "seg_000.mp4")

	chunk, _, gen := getJob(t, f, "w1")
	require.Equal(t, "seg_000.mp4", chunk)
	require.Equal(t, uint64(1), gen)

	// The segment file still exists, so a reload produces a same-named
	// segment in the next generation.
	reload, err := http.Post(f.srv.URL+"/reload_jobs", "application/json", nil)
	require.NoError(t, err)
	reload.Body.Close()

	resp := uploadResult(t, f, "seg_000.mp4", "1", "seg_000.processed.mp4", "stale output")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.False(t, body.OK, "a result from a previous generation must not complete its same-named successor")

	seg, ok := f.store.Find("seg_000.mp4")
	require.True(t, ok)
	assert.Equal(t, models.StatusQueued, seg.Status)
	assert.Empty(t, seg.ResultRef)
}

func TestChunkDownload(t *testing.T) {
	f := newFixture(t, "seg_000.mp4")

	resp, err := http.Get(f.srv.URL + "/chunks/seg_000.mp4")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "bytes-of-seg_000.mp4", string(data))

	missing, err := http.Get(f.srv.URL + "/chunks/seg_999.mp4")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestStatus(t *testing.T) {
	f := newFixture(t, "seg_000.mp4", "seg_001.mp4")
	getJob(t, f, "w1")

	resp, err := http.Get(f.srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("X-Store-Generation"))

	var segments []models.Segment
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&segments))
	require.Len(t, segments, 2)
	assert.Equal(t, models.StatusClaimed, segments[0].Status)
	assert.Equal(t, models.StatusQueued, segments[1].Status)
}

func TestReloadJobsDiscardsClaims(t *testing.T) {
	f := newFixture(t, "seg_000.mp4")
	getJob(t, f, "w1")

	resp, err := http.Post(f.srv.URL+"/reload_jobs", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Count)

	seg, _ := f.store.Find("seg_000.mp4")
	assert.Equal(t, models.StatusQueued, seg.Status, "reload discards in-flight claims")
}

func TestSplitEndpoint(t *testing.T) {
	f := newFixture(t)

	payload := fmt.Sprintf(`{"input":%q,"segment_seconds":60}`, f.inputPath)
	resp, err := http.Post(f.srv.URL+"/split", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 3, body.Count)
	assert.Len(t, f.store.Snapshot(), 3)
}

func TestMergeEndpointConflictWhileIncomplete(t *testing.T) {
	f := newFixture(t, "seg_000.mp4")

	resp, err := http.Post(f.srv.URL+"/merge", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestMergeEndpoint(t *testing.T) {
	f := newFixture(t, "seg_000.mp4")
	getJob(t, f, "w1")
	uploadResult(t, f, "seg_000.mp4", "1", "seg_000.processed.mp4", "x").Body.Close()

	resp, err := http.Post(f.srv.URL+"/merge", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Path string `json:"path"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, strings.HasSuffix(body.Path, "final_merged.mp4"))
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
