package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Haoxincode/coursechat/internal/domain"
	"github.com/Haoxincode/coursechat/internal/domain/chat"
	domusage "github.com/Haoxincode/coursechat/internal/domain/usage"
	"github.com/Haoxincode/coursechat/internal/logger"
	chatuc "github.com/Haoxincode/coursechat/internal/usecase/chat"
	documentuc "github.com/Haoxincode/coursechat/internal/usecase/document"
	healthuc "github.com/Haoxincode/coursechat/internal/usecase/health"
	usageuc "github.com/Haoxincode/coursechat/internal/usecase/usage"
)

const (
	maxPageSize          = 100
	maxDocumentBodyBytes = 256 << 10
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// HistoryReader lists the stored turns of a session.
type HistoryReader interface {
	List(ctx context.Context, sessionID string) ([]chat.Turn, error)
}

// Server serves the coursechat HTTP API.
type Server struct {
	chat          *chatuc.Service
	documents     *documentuc.Service
	history       HistoryReader
	usage         *usageuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	chat *chatuc.Service,
	documents *documentuc.Service,
	history HistoryReader,
	usage *usageuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		chat:      chat,
		documents: documents,
		history:   history,
		usage:     usage,
		health:    health,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, CodeDocumentNotFound),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrAlreadyExists, http.StatusConflict, CodeDocumentAlreadyExists),
		sentinelHandler(domain.ErrInvalidDocument, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrInvalidCursor, http.StatusBadRequest, CodeBadRequest),
		sentinelHandler(domain.ErrInvalidSession, http.StatusBadRequest, CodeBadRequest),
		sentinelHandler(domain.ErrNoDocuments, http.StatusServiceUnavailable, CodeNoDocuments),
		sentinelHandler(domain.ErrTokenQuotaExceeded, http.StatusPaymentRequired, CodeTokenQuotaExceeded),
		sentinelHandler(domain.ErrLLMProviderError, http.StatusBadGateway, CodeLLMProviderError),
	}
	return s
}

// Routes registers every endpoint on r.
func (s *Server) Routes(r chi.Router) {
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "method not allowed")
	})

	r.Post("/api/chat/stream", s.StreamChat)

	r.Get("/api/documents", s.ListDocuments)
	r.Post("/api/documents", s.CreateDocument)
	r.Get("/api/documents/{id}", s.GetDocument)
	r.Delete("/api/documents/{id}", s.DeleteDocument)

	r.Get("/api/sessions/{id}/history", s.GetHistory)

	r.Get("/usage", s.GetUsage)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// Handler returns a router with every endpoint registered and no middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	s.Routes(r)
	return r
}

// ListDocuments handles GET /api/documents.
func (s *Server) ListDocuments(w http.ResponseWriter, r *http.Request) {
	var (
		limit  *int
		cursor *string
	)
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		s.invalidParam(w, err)
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "cursor", r.URL.Query(), &cursor); err != nil {
		s.invalidParam(w, err)
		return
	}
	if limit != nil && (*limit < 1 || *limit > maxPageSize) {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "limit must be between 1 and 100")
		return
	}

	docs, next, err := s.documents.List(r.Context(), derefString(cursor), derefInt(limit))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	resp := DocumentListResponse{Items: make([]DocumentSummary, len(docs))}
	for i := range docs {
		resp.Items[i] = documentToSummary(&docs[i])
	}
	if next != "" {
		resp.NextCursor = &next
		resp.HasMore = true
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateDocument handles POST /api/documents.
func (s *Server) CreateDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxDocumentBodyBytes)

	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, CodeBadRequest, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body")
		return
	}

	doc, err := s.documents.Create(r.Context(), req.ID, req.Name, req.Content)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	logger.FromContextOr(r.Context(), s.logger).Info("Document created",
		zap.String("document_id", doc.ID()),
		zap.Int("size", len(doc.Content())),
	)
	writeJSON(w, http.StatusCreated, documentToResponse(&doc))
}

// GetDocument handles GET /api/documents/{id}.
func (s *Server) GetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	doc, err := s.documents.Get(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, documentToResponse(&doc))
}

// DeleteDocument handles DELETE /api/documents/{id}.
func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	if err := s.documents.Delete(r.Context(), id); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetHistory handles GET /api/sessions/{id}/history.
func (s *Server) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := chat.ValidateSessionID(id); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	if s.history == nil {
		writeJSON(w, http.StatusOK, HistoryResponse{SessionID: id, Turns: []chat.Turn{}})
		return
	}

	turns, err := s.history.List(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{SessionID: id, Turns: turns})
}

// GetUsage handles GET /usage.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	var raw *string
	if err := runtime.BindQueryParameter("form", true, false, "period", r.URL.Query(), &raw); err != nil {
		s.invalidParam(w, err)
		return
	}
	period, err := domusage.ParsePeriod(derefString(raw))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	report := s.usage.GetReport(r.Context(), period)
	writeJSON(w, http.StatusOK, usageToResponse(&report))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, healthToResponse(report))
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var id string
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Required: true})
	if err != nil {
		s.invalidParam(w, err)
		return "", false
	}
	return id, true
}

func (s *Server) invalidParam(w http.ResponseWriter, err error) {
	s.logger.Debug("invalid request parameter", zap.Error(err))
	writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrDocumentNotFound,
		domain.ErrNotFound,
		domain.ErrAlreadyExists,
		domain.ErrInvalidCursor,
		domain.ErrInvalidSession,
		domain.ErrNoDocuments,
		domain.ErrTokenQuotaExceeded,
		domain.ErrLLMProviderError,
	}
	// Validation messages describe the caller's input and are safe to echo.
	if errors.Is(err, domain.ErrInvalidDocument) {
		return err.Error()
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContextOr(r.Context(), s.logger)
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
