package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Haoxincode/coursechat/internal/domain"
	"github.com/Haoxincode/coursechat/internal/logger"
	"github.com/Haoxincode/coursechat/internal/stream"
	chatuc "github.com/Haoxincode/coursechat/internal/usecase/chat"
)

const maxChatBodyBytes = 1 << 20

// Client-facing messages for chat requests rejected before streaming.
const (
	msgEmptyMessages  = "Messages cannot be empty"
	msgInvalidFormat  = "Invalid message format"
	msgEmptyContent   = "Message content is empty"
	msgInvalidSession = "Invalid session id"
	msgNoDocuments    = "No course documents are available"
	msgDocNotFound    = "Course document not found"
	msgQuotaExceeded  = "Token budget exhausted. Please try again later."
	msgProviderError  = "The AI service is unavailable. Please try again."
	msgSendFailed     = "Failed to send message. Please try again."
)

type chatErrorRule struct {
	sentinel error
	status   int
	code     ErrorCode
	message  string
}

var chatErrorRules = []chatErrorRule{
	{domain.ErrEmptyMessages, http.StatusBadRequest, CodeBadRequest, msgEmptyMessages},
	{domain.ErrInvalidMessages, http.StatusBadRequest, CodeBadRequest, msgInvalidFormat},
	{domain.ErrEmptyContent, http.StatusBadRequest, CodeBadRequest, msgEmptyContent},
	{domain.ErrInvalidSession, http.StatusBadRequest, CodeBadRequest, msgInvalidSession},
	{domain.ErrDocumentNotFound, http.StatusNotFound, CodeDocumentNotFound, msgDocNotFound},
	{domain.ErrNoDocuments, http.StatusServiceUnavailable, CodeNoDocuments, msgNoDocuments},
	{domain.ErrTokenQuotaExceeded, http.StatusPaymentRequired, CodeTokenQuotaExceeded, msgQuotaExceeded},
	{domain.ErrLLMProviderError, http.StatusBadGateway, CodeLLMProviderError, msgProviderError},
}

// StreamChat handles POST /api/chat/stream.
//
// Failures before the first event are answered with a JSON error and a status
// code. After that the response is an event stream, failures arrive as an
// error event, and the stream always ends with the [DONE] marker.
func (s *Server) StreamChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContextOr(ctx, s.logger)

	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	var body ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		log.Debug("undecodable chat request", zap.Error(err))
		writeChatError(w, http.StatusBadRequest, CodeBadRequest, msgInvalidFormat)
		return
	}

	if domain.UsageFromContext(ctx) == nil {
		ctx, _ = domain.NewContextWithUsage(ctx)
	}

	// Streams outlive the server write timeout.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		log.Debug("clear write deadline", zap.Error(err))
	}

	sink := stream.NewSSEWriter(w)
	err := s.chat.Stream(ctx, chatuc.Request{
		Messages:    body.Messages,
		ChatID:      body.ChatID,
		SessionID:   body.SessionID,
		DocumentIDs: body.DocumentIDs,
	}, sink)

	if err != nil && !sink.Started() {
		s.handleChatError(ctx, w, err)
		return
	}
	if err != nil {
		log.Warn("chat stream aborted", zap.Error(err))
	}
	if cerr := sink.Close(); cerr != nil {
		log.Debug("close event stream", zap.Error(cerr))
	}
}

func (s *Server) handleChatError(ctx context.Context, w http.ResponseWriter, err error) {
	log := logger.FromContextOr(ctx, s.logger)

	if errors.Is(err, context.Canceled) {
		log.Info("chat request canceled before streaming")
		return
	}
	for _, rule := range chatErrorRules {
		if errors.Is(err, rule.sentinel) {
			log.Warn("chat request rejected", zap.Int("status", rule.status), zap.Error(err))
			writeChatError(w, rule.status, rule.code, rule.message)
			return
		}
	}
	log.Error("chat request failed", zap.Error(err))
	writeChatError(w, http.StatusInternalServerError, CodeInternalError, msgSendFailed)
}

func writeChatError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ChatErrorResponse{Error: message, Code: code})
}
