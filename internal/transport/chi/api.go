package chi

import (
	"time"

	"github.com/Haoxincode/coursechat/internal/domain/chat"
	domdoc "github.com/Haoxincode/coursechat/internal/domain/document"
	domusage "github.com/Haoxincode/coursechat/internal/domain/usage"
	healthuc "github.com/Haoxincode/coursechat/internal/usecase/health"
)

// ErrorCode is a machine-readable error identifier.
type ErrorCode string

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest            ErrorCode = "bad_request"
	CodeUnauthorized          ErrorCode = "unauthorized"
	CodeValidationFailed      ErrorCode = "validation_failed"
	CodeNotFound              ErrorCode = "not_found"
	CodeDocumentNotFound      ErrorCode = "document_not_found"
	CodeDocumentAlreadyExists ErrorCode = "document_already_exists"
	CodeNoDocuments           ErrorCode = "no_documents"
	CodeTokenQuotaExceeded    ErrorCode = "token_quota_exceeded"
	CodeLLMProviderError      ErrorCode = "llm_provider_error"
	CodeMethodNotAllowed      ErrorCode = "method_not_allowed"
	CodeInternalError         ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-chat error.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ChatErrorResponse is the body of a chat request rejected before streaming.
// The chat UI reads Error; Code is for programmatic clients.
type ChatErrorResponse struct {
	Error string    `json:"error"`
	Code  ErrorCode `json:"code"`
}

// ChatRequest is the body of POST /api/chat/stream.
type ChatRequest struct {
	Messages    []chat.UIMessage `json:"messages"`
	ChatID      string           `json:"chatId,omitempty"`
	SessionID   string           `json:"sessionId,omitempty"`
	DocumentIDs []string         `json:"documentIds,omitempty"`
}

// CreateDocumentRequest is the body of POST /api/documents.
type CreateDocumentRequest struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// DocumentResponse is a full document.
type DocumentResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// DocumentSummary is a document without its content, as listed.
type DocumentSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// DocumentListResponse is a page of documents.
type DocumentListResponse struct {
	Items      []DocumentSummary `json:"items"`
	NextCursor *string           `json:"nextCursor,omitempty"`
	HasMore    bool              `json:"hasMore"`
}

// HistoryResponse lists the stored turns of a session.
type HistoryResponse struct {
	SessionID string      `json:"sessionId"`
	Turns     []chat.Turn `json:"turns"`
}

// UsageResponse is the body of GET /usage.
type UsageResponse struct {
	Period        string       `json:"period"`
	Provider      string       `json:"provider"`
	PeriodStartAt *time.Time   `json:"periodStartAt,omitempty"`
	PeriodEndAt   *time.Time   `json:"periodEndAt,omitempty"`
	Usage         UsageMetrics `json:"usage"`
	Budget        BudgetStatus `json:"budget"`
}

// UsageMetrics holds the counters of a period.
type UsageMetrics struct {
	Requests         int  `json:"requests"`
	Tokens           int  `json:"tokens"`
	CostMillidollars *int `json:"costMillidollars,omitempty"`
}

// BudgetStatus describes the token budget of a period. TokensLimit 0 means unlimited.
type BudgetStatus struct {
	TokensLimit     int        `json:"tokensLimit"`
	TokensRemaining int        `json:"tokensRemaining"`
	IsExhausted     bool       `json:"isExhausted"`
	ResetsAt        *time.Time `json:"resetsAt,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func documentToResponse(doc *domdoc.Document) DocumentResponse {
	return DocumentResponse{
		ID:        doc.ID(),
		Name:      doc.Name(),
		Content:   doc.Content(),
		CreatedAt: time.UnixMilli(doc.CreatedAt()).UTC(),
	}
}

func documentToSummary(doc *domdoc.Document) DocumentSummary {
	return DocumentSummary{
		ID:        doc.ID(),
		Name:      doc.Name(),
		Size:      len(doc.Content()),
		CreatedAt: time.UnixMilli(doc.CreatedAt()).UTC(),
	}
}

func usageToResponse(report *domusage.Report) UsageResponse {
	resp := UsageResponse{
		Period:   string(report.Period()),
		Provider: report.Provider(),
		Usage: UsageMetrics{
			Requests: report.Metrics().Requests(),
			Tokens:   report.Metrics().Tokens(),
		},
		Budget: BudgetStatus{
			TokensLimit:     report.Budget().TokensLimit(),
			TokensRemaining: report.Budget().TokensRemaining(),
			IsExhausted:     report.Budget().IsExhausted(),
		},
	}

	if cost := report.Metrics().CostMillidollars(); cost > 0 {
		resp.Usage.CostMillidollars = &cost
	}
	if report.PeriodStart() > 0 {
		start := time.UnixMilli(report.PeriodStart()).UTC()
		end := time.UnixMilli(report.PeriodEnd()).UTC()
		resp.PeriodStartAt = &start
		resp.PeriodEndAt = &end
	}
	if report.Budget().ResetsAt() > 0 {
		resetsAt := time.UnixMilli(report.Budget().ResetsAt()).UTC()
		resp.Budget.ResetsAt = &resetsAt
	}
	return resp
}

func healthToResponse(report healthuc.Report) HealthResponse {
	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	return HealthResponse{Status: string(report.Status), Checks: checks}
}
