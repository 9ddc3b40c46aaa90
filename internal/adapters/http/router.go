package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/car-knowledge-assistant/internal/config"
	"github.com/kirillkom/car-knowledge-assistant/internal/core/ports"
	"github.com/kirillkom/car-knowledge-assistant/internal/observability/metrics"
)

const (
	serviceName    = "api"
	maxUploadBytes = 64 << 20
)

// Service is everything the HTTP surface needs from the core.
type Service interface {
	ports.Assistant
	ports.IngestionScheduler
	ports.IngestionReader
	ports.CorpusUploader
	ports.IndexInspector
}

type Option func(*Router)

func WithMetrics(m *metrics.HTTPServerMetrics) Option {
	return func(rt *Router) { rt.metrics = m }
}

// WithLLMMode sets the generator name reported by GET /.
func WithLLMMode(mode string) Option {
	return func(rt *Router) { rt.llmMode = mode }
}

type Router struct {
	cfg     config.Config
	svc     Service
	metrics *metrics.HTTPServerMetrics
	llmMode string
}

func NewRouter(cfg config.Config, svc Service, opts ...Option) *Router {
	rt := &Router{cfg: cfg, svc: svc}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() (http.Handler, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", rt.root)
	mux.HandleFunc("/healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}
	mux.HandleFunc("/v1/index", rt.indexStats)
	mux.HandleFunc("/v1/ingestions/", rt.getIngestion)
	mux.HandleFunc("/v1/corpus", rt.uploadCorpus)
	mux.HandleFunc("/embed", rt.embed)
	mux.HandleFunc("/search", rt.search)
	mux.HandleFunc("/ask", rt.ask)

	var handler http.Handler = mux
	if rt.cfg.APIValidateRequests {
		validator, err := newRequestValidator()
		if err != nil {
			return nil, err
		}
		handler = validator.middleware(handler)
	}
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, time.Duration(rt.cfg.APIBackpressureWaitMs)*time.Millisecond, rt.onReject("overloaded"))
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, rt.onReject("rate_limited"))
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler, nil
}

func (rt *Router) onReject(reason string) func() {
	return func() {
		if rt.metrics != nil {
			rt.metrics.RecordRejected(serviceName, reason)
		}
	}
}

func (rt *Router) root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Volkswagen manual assistant is running.",
		"llm_mode": rt.llmMode,
		"endpoints": []string{
			"POST /embed",
			"POST /search",
			"POST /ask",
			"POST /v1/corpus",
			"GET /v1/index",
			"GET /v1/ingestions/{run_id}",
			"GET /healthz",
		},
	})
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) indexStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, rt.svc.IndexStats())
}

func (rt *Router) embed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	async, _ := strconv.ParseBool(r.URL.Query().Get("async"))
	if async {
		run, err := rt.svc.EnqueueIngest(r.Context())
		if rt.metrics != nil {
			rt.metrics.RecordIngest(serviceName, "async", 0, err)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"status": string(run.Status),
			"run_id": run.ID,
		})
		return
	}

	result, err := rt.svc.Ingest(r.Context())
	if rt.metrics != nil {
		count := 0
		if result != nil {
			count = result.Count
		}
		rt.metrics.RecordIngest(serviceName, "sync", count, err)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) getIngestion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/ingestions/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "run id is required"})
		return
	}

	run, err := rt.svc.IngestionRun(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (rt *Router) uploadCorpus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "corpus file is too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	if err := rt.svc.UploadCorpus(r.Context(), fileHeader.Filename, file); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "Corpus stored",
		"filename": fileHeader.Filename,
	})
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	start := time.Now()
	result, err := rt.svc.Search(r.Context(), req.Query, req.TopK)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordRAGObservation(serviceName, "search", len(result.Results), time.Since(start))
	}
	writeJSON(w, http.StatusOK, result)
}

type askRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

type blockedResponse struct {
	Question string `json:"question"`
	Status   string `json:"status"`
	Reason   string `json:"reason"`
}

func (rt *Router) ask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	start := time.Now()
	result, err := rt.svc.Ask(r.Context(), req.Question, req.TopK)
	if err != nil {
		writeError(w, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordGatewayDecision(serviceName, string(result.Decision.Action), result.Decision.Reason)
	}
	if result.Blocked() {
		writeJSON(w, http.StatusOK, blockedResponse{
			Question: req.Question,
			Status:   "blocked",
			Reason:   result.Decision.Reason,
		})
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordAnswerCache(serviceName, result.Answer.Cached)
		if !result.Answer.Cached {
			rt.metrics.RecordRAGObservation(serviceName, "ask", len(result.Answer.Sources), time.Since(start))
		}
	}
	writeJSON(w, http.StatusOK, result.Answer)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
