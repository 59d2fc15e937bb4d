package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Haoxincode/coursechat/internal/domain"
	"github.com/Haoxincode/coursechat/internal/domain/answer"
	"github.com/Haoxincode/coursechat/internal/domain/chat"
	"github.com/Haoxincode/coursechat/internal/domain/idmap"
	"github.com/Haoxincode/coursechat/internal/logger"
	"github.com/Haoxincode/coursechat/internal/metrics"
	"github.com/Haoxincode/coursechat/internal/stream"
)

// Service answers chat turns as a UI message stream.
type Service struct {
	docs    DocumentSource
	llm     domain.AnswerStreamer
	history HistoryWriter
	opts    []stream.Option
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string
}

// New creates a chat service. history may be nil (turns are not stored).
// opts are applied to every stream adapter (throttle, event counter, logger).
func New(
	docs DocumentSource, llm domain.AnswerStreamer, history HistoryWriter,
	logger *zap.Logger, opts ...stream.Option,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		docs:    docs,
		llm:     llm,
		history: history,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
		newID:   func() string { return "msg-" + uuid.NewString() },
	}
}

// Stream validates the request, opens the LLM stream and runs it through the
// adapter into sink. Errors returned before the first sink write leave the
// response untouched, so the caller can still answer with a status code.
// Once streaming has started, failures reach the client as an error event and
// Stream returns nil unless the sink itself failed.
func (s *Service) Stream(ctx context.Context, req Request, sink stream.Sink) error {
	msgs, err := validate(req)
	if err != nil {
		return err
	}

	docs, err := s.docs.ForChat(ctx, req.DocumentIDs)
	if err != nil {
		return fmt.Errorf("course documents: %w", err)
	}

	docIDs := make([]string, len(docs))
	for i := range docs {
		docIDs[i] = docs[i].ID()
	}
	mapper := idmap.New(docIDs)

	log := logger.FromContextOr(ctx, s.logger)
	log.Debug("Document id mapping created", zap.Int("max_id", mapper.MaxID()))

	src, err := s.llm.StreamAnswer(ctx, BuildPrompt(docs, mapper, msgs))
	if err != nil {
		return fmt.Errorf("open answer stream: %w", err)
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			log.Warn("Failed to close answer stream", zap.Error(cerr))
		}
	}()

	messageID := s.newID()
	t := &turn{
		svc:       s,
		src:       src,
		mapper:    mapper,
		messageID: messageID,
		session:   req.Session(),
		question:  chat.LastUserContent(msgs),
		log:       log,
	}

	opts := make([]stream.Option, 0, len(s.opts)+5)
	opts = append(opts, stream.WithLogger(log))
	opts = append(opts, s.opts...)
	opts = append(opts,
		stream.WithDocIDMapper(mapper),
		stream.WithMessageID(func() string { return messageID }),
		stream.WithOnStart(t.onStart),
		stream.WithOnComplete(t.onComplete),
	)

	state, err := stream.NewAdapter(opts...).Run(ctx, src, sink)
	metrics.StreamsTotal.WithLabelValues(string(state)).Inc()
	if err != nil {
		return fmt.Errorf("stream %s: %w", messageID, err)
	}
	return nil
}

func validate(req Request) ([]chat.Message, error) {
	if len(req.Messages) == 0 {
		return nil, domain.ErrEmptyMessages
	}
	if id := req.Session(); id != "" {
		if err := chat.ValidateSessionID(id); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidSession, err)
		}
	}

	msgs, err := chat.ToModelMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidMessages, err)
	}
	if len(msgs) == 0 {
		return nil, domain.ErrEmptyContent
	}
	return msgs, nil
}

// turn holds the per-request state the adapter callbacks need.
type turn struct {
	svc       *Service
	src       domain.AnswerStream
	mapper    *idmap.Mapper[string]
	messageID string
	session   string
	question  string
	log       *zap.Logger
}

func (t *turn) onStart(_ context.Context) error {
	t.log.Info("Chat stream started",
		zap.String("message_id", t.messageID),
		zap.String("session_id", t.session),
		zap.Int("documents", t.mapper.MaxID()),
	)
	return nil
}

func (t *turn) onComplete(ctx context.Context, final answer.Answer) (map[string]any, error) {
	usage := t.src.Usage()
	domain.UsageFromContext(ctx).Add(usage)

	resp := final.Normalize(t.mapper)
	meta := map[string]any{
		"confidence":   resp.Confidence,
		"sourcesCount": len(final.Sources),
		"totalTokens":  usage.TotalTokens,
	}

	if t.session != "" && t.svc.history != nil {
		err := t.svc.history.Append(ctx, t.session, chat.Turn{
			MessageID: t.messageID,
			Question:  t.question,
			Response:  resp,
			Metadata:  meta,
			CreatedAt: t.svc.now().UnixMilli(),
		})
		// History is best effort: the answer has already been delivered.
		if err != nil && !errors.Is(err, context.Canceled) {
			t.log.Warn("Failed to store chat turn",
				zap.String("message_id", t.messageID),
				zap.String("session_id", t.session),
				zap.Error(err),
			)
		}
	}

	t.log.Info("Chat stream completed",
		zap.String("message_id", t.messageID),
		zap.Int("sources", len(resp.Sources)),
		zap.Int("total_tokens", usage.TotalTokens),
	)
	return meta, nil
}
