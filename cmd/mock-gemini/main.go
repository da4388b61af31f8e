// Package main implements a mock Gemini server for end-to-end testing.
// It serves generateContent responses from fixture files, routing by the model
// in the request path, so civicreport can be exercised offline and
// deterministically.
//
// Usage:
//
//	mock-gemini -fixtures /path/to/fixtures -port 8089 -rate-limit 2
//
// Fixture files are named by model (e.g., "gemini-2.0-flash.txt" maps to model
// "gemini-2.0-flash"). The file content is returned as the candidate text.
//
// Sequential fixtures: If numbered files exist (e.g., "gemini-2.0-flash.1.txt",
// "gemini-2.0-flash.2.txt"), the Nth call to that model returns the Nth fixture.
// After exhausting numbered fixtures, the base file is used as a repeating
// fallback.
//
// Rate limiting: with -rate-limit N the first N calls to each model are
// answered with HTTP 429, which exercises the client back-off.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// --- generateContent types ---

type generateRequest struct {
	Contents []struct {
		Parts []struct {
			Text       string `json:"text,omitempty"`
			InlineData *struct {
				MimeType string `json:"mimeType"`
				Data     string `json:"data"`
			} `json:"inlineData,omitempty"`
		} `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type generateResponse struct {
	Candidates    []candidate   `json:"candidates"`
	UsageMetadata usageMetadata `json:"usageMetadata"`
	ModelVersion  string        `json:"modelVersion"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason"`
	Index        int     `json:"index"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type errorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// --- Server ---

// capturedRequest stores the key fields of an incoming request for test verification.
type capturedRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	ImageMime   string  `json:"image_mime,omitempty"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_output_tokens"`
	CallIndex   int     `json:"call_index"` // 1-indexed per-model call number
	RateLimited bool    `json:"rate_limited"`
	Timestamp   int64   `json:"timestamp"`
}

type server struct {
	fixtures    map[string][]string // model name → ordered fixture contents (sequential)
	rateLimited int64               // leading calls per model answered with 429
	calls       atomic.Int64        // total calls served
	logger      *slog.Logger

	// Per-model call counters for sequential fixture selection.
	modelCalls   map[string]*atomic.Int64
	modelCallsMu sync.Mutex

	modelRequests   map[string][]capturedRequest
	modelRequestsMu sync.Mutex
}

func newServer(fixtures map[string][]string, rateLimited int64, logger *slog.Logger) *server {
	if logger == nil {
		logger = slog.Default()
	}
	return &server{
		fixtures:      fixtures,
		rateLimited:   rateLimited,
		logger:        logger,
		modelCalls:    make(map[string]*atomic.Int64),
		modelRequests: make(map[string][]capturedRequest),
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /v1beta/models/{action}", s.handleGenerate)
	mux.HandleFunc("GET /v1beta/models", s.handleModels)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /requests", s.handleRequests)
	return mux
}

func (s *server) captureRequest(c capturedRequest) {
	s.modelRequestsMu.Lock()
	defer s.modelRequestsMu.Unlock()
	s.modelRequests[c.Model] = append(s.modelRequests[c.Model], c)
}

// getModelCounter returns the call counter for a model, creating it lazily.
func (s *server) getModelCounter(model string) *atomic.Int64 {
	s.modelCallsMu.Lock()
	defer s.modelCallsMu.Unlock()
	if c, ok := s.modelCalls[model]; ok {
		return c
	}
	c := &atomic.Int64{}
	s.modelCalls[model] = c
	return c
}

func main() {
	fixtureDir := flag.String("fixtures", "", "directory containing fixture response files")
	port := flag.Int("port", 8089, "port to listen on")
	rateLimited := flag.Int64("rate-limit", 0, "answer the first N calls per model with HTTP 429")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// Allow env var override
	if envDir := os.Getenv("MOCK_GEMINI_FIXTURES"); envDir != "" && *fixtureDir == "" {
		*fixtureDir = envDir
	}
	if *fixtureDir == "" {
		*fixtureDir = "/fixtures"
	}

	fixtures, err := loadFixtures(*fixtureDir)
	if err != nil {
		logger.Error("Failed to load fixtures", "dir", *fixtureDir, "error", err)
		os.Exit(1)
	}
	for model, seq := range fixtures {
		logger.Info("Loaded fixtures", "model", model, "count", len(seq))
	}

	s := newServer(fixtures, *rateLimited, logger)

	addr := fmt.Sprintf(":%d", *port)
	logger.Info("Mock Gemini server listening", "addr", addr, "rate_limit", *rateLimited)
	srv := &http.Server{Addr: addr, Handler: s.routes(), ReadHeaderTimeout: 10 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	model, method, ok := strings.Cut(r.PathValue("action"), ":")
	if !ok || method != "generateContent" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("unknown method %q", r.PathValue("action")))
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", fmt.Sprintf("invalid request body: %v", err))
		return
	}

	callNum := s.calls.Add(1)
	seq, ok := s.fixtures[model]
	if !ok {
		s.logger.Warn("No fixture for model", "call", callNum, "model", model)
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("models/%s is not found", model))
		return
	}

	callIndex := s.getModelCounter(model).Add(1) // 1-indexed
	limited := callIndex <= s.rateLimited

	captured := capturedRequest{
		Model:       model,
		Temperature: req.GenerationConfig.Temperature,
		MaxTokens:   req.GenerationConfig.MaxOutputTokens,
		CallIndex:   int(callIndex),
		RateLimited: limited,
		Timestamp:   time.Now().UnixMilli(),
	}
	for _, c := range req.Contents {
		for _, p := range c.Parts {
			if p.Text != "" {
				captured.Prompt = p.Text
			}
			if p.InlineData != nil {
				captured.ImageMime = p.InlineData.MimeType
			}
		}
	}
	s.captureRequest(captured)

	if limited {
		s.logger.Info("Rate limiting call", "call", callNum, "model", model, "call_index", callIndex)
		writeError(w, http.StatusTooManyRequests, "RESOURCE_EXHAUSTED", "Resource has been exhausted (e.g. check quota).")
		return
	}

	// Fixtures are consumed only by calls that get an answer.
	answered := int(callIndex - max(s.rateLimited, 0) - 1)
	text := seq[len(seq)-1] // repeat last fixture
	if answered < len(seq) {
		text = seq[answered]
	}

	writeJSON(w, http.StatusOK, generateResponse{
		Candidates: []candidate{{
			Content:      content{Role: "model", Parts: []part{{Text: text}}},
			FinishReason: "STOP",
		}},
		UsageMetadata: usageMetadata{
			PromptTokenCount:     len(captured.Prompt) / 4, // rough estimate
			CandidatesTokenCount: len(text) / 4,
			TotalTokenCount:      (len(captured.Prompt) + len(text)) / 4,
		},
		ModelVersion: model,
	})
	s.logger.Info("Responded", "call", callNum, "model", model, "call_index", callIndex, "bytes", len(text))
}

// handleModels lists the models that have fixtures.
func (s *server) handleModels(w http.ResponseWriter, _ *http.Request) {
	type modelEntry struct {
		Name                       string   `json:"name"`
		SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
	}
	names := make([]string, 0, len(s.fixtures))
	for name := range s.fixtures {
		names = append(names, name)
	}
	sort.Strings(names)

	models := make([]modelEntry, 0, len(names))
	for _, name := range names {
		models = append(models, modelEntry{
			Name:                       "models/" + name,
			SupportedGenerationMethods: []string{"generateContent"},
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}

// handleStats returns call counts for test assertions.
func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.modelCallsMu.Lock()
	callsByModel := make(map[string]int64, len(s.modelCalls))
	for model, counter := range s.modelCalls {
		callsByModel[model] = counter.Load()
	}
	s.modelCallsMu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"total_calls":    s.calls.Load(),
		"calls_by_model": callsByModel,
	})
}

// handleRequests returns captured requests for test assertions.
// Query params:
//   - model: filter by model name (optional)
//   - call: filter by call index, 1-indexed (optional)
func (s *server) handleRequests(w http.ResponseWriter, r *http.Request) {
	modelFilter := r.URL.Query().Get("model")
	callFilter, callErr := strconv.Atoi(r.URL.Query().Get("call"))

	s.modelRequestsMu.Lock()
	result := make(map[string][]capturedRequest)
	for model, reqs := range s.modelRequests {
		if modelFilter != "" && model != modelFilter {
			continue
		}
		for _, req := range reqs {
			if callErr == nil && req.CallIndex != callFilter {
				continue
			}
			result[model] = append(result[model], req)
		}
	}
	s.modelRequestsMu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"requests_by_model": result})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Error.Code = status
	body.Error.Status = code
	body.Error.Message = message
	writeJSON(w, status, body)
}

// numberedFileRe matches files like "gemini-2.0-flash.1.txt".
var numberedFileRe = regexp.MustCompile(`^(.+)\.(\d+)\.(txt|json)$`)

// loadFixtures reads .txt and .json files from dir and returns a map of
// model→content sequence. Numbered files come first in numeric order, then the
// base file as the fallback.
func loadFixtures(dir string) (map[string][]string, error) {
	baseFiles := make(map[string]string)
	numberedFiles := make(map[string]map[int]string)

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		ext := filepath.Ext(d.Name())
		if d.IsDir() || (ext != ".txt" && ext != ".json") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if ext == ".json" && !json.Valid(data) {
			return fmt.Errorf("invalid JSON in %s", path)
		}
		text := strings.TrimRight(string(data), "\n")

		if matches := numberedFileRe.FindStringSubmatch(d.Name()); matches != nil {
			model := matches[1]
			index, _ := strconv.Atoi(matches[2])
			if numberedFiles[model] == nil {
				numberedFiles[model] = make(map[int]string)
			}
			numberedFiles[model][index] = text
			return nil
		}

		baseFiles[strings.TrimSuffix(d.Name(), ext)] = text
		return nil
	})
	if err != nil {
		return nil, err
	}

	allModels := make(map[string]bool)
	for m := range baseFiles {
		allModels[m] = true
	}
	for m := range numberedFiles {
		allModels[m] = true
	}

	fixtures := make(map[string][]string)
	for model := range allModels {
		var seq []string

		if numbered, ok := numberedFiles[model]; ok {
			indices := make([]int, 0, len(numbered))
			for idx := range numbered {
				indices = append(indices, idx)
			}
			sort.Ints(indices)
			for _, idx := range indices {
				seq = append(seq, numbered[idx])
			}
		}

		if base, ok := baseFiles[model]; ok {
			seq = append(seq, base)
		}

		if len(seq) > 0 {
			fixtures[model] = seq
		}
	}

	if len(fixtures) == 0 {
		return nil, fmt.Errorf("no fixture files found in %s", dir)
	}
	return fixtures, nil
}
