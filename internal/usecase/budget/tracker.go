package budget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Haoxincode/coursechat/internal/domain"
)

// Action defines behavior when the token budget is exceeded.
type Action string

const (
	// ActionWarn logs a warning but allows the request.
	ActionWarn Action = "warn"
	// ActionReject blocks the request.
	ActionReject Action = "reject"
)

// Store is the persistence interface for budget counters.
// Implementations must be idempotent (IncrBy can be called repeatedly).
type Store interface {
	IncrBy(ctx context.Context, key string, val int64) error
	Get(ctx context.Context, key string) (int64, error)
}

// counters is the usage of one period.
type counters struct {
	tokens   int64
	requests int64
}

// Tracker is an in-memory LLM token budget with optional write-behind persistence.
// Check never leaves the process; Record updates memory first, then the store.
type Tracker struct {
	mu             sync.Mutex
	daily          counters
	monthly        counters
	dailyLimit     int64
	monthlyLimit   int64
	action         Action
	provider       string
	prefix         string
	lastDayReset   time.Time
	lastMonthReset time.Time
	now            func() time.Time
	store          Store
	logger         *zap.Logger
}

// NewTracker creates a tracker with the given limits (0 = unlimited).
// An empty prefix uses domain.KeyPrefix.
func NewTracker(
	provider, prefix string, dailyLimit, monthlyLimit int64,
	action Action, logger *zap.Logger,
) *Tracker {
	if prefix == "" {
		prefix = domain.KeyPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracker{
		dailyLimit:   dailyLimit,
		monthlyLimit: monthlyLimit,
		action:       action,
		provider:     provider,
		prefix:       prefix,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger,
	}
	t.lastDayReset = truncateToDay(t.now())
	t.lastMonthReset = truncateToMonth(t.now())
	return t
}

// WithStore attaches a persistence store and loads the current counters.
func (t *Tracker) WithStore(ctx context.Context, store Store) *Tracker {
	t.store = store
	t.loadFromStore(ctx)
	return t
}

func (t *Tracker) loadFromStore(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.daily = t.load(ctx, t.dailyKey(now))
	t.monthly = t.load(ctx, t.monthlyKey(now))

	t.logger.Info("Budget loaded from store",
		zap.String("provider", t.provider),
		zap.Int64("daily_used", t.daily.tokens),
		zap.Int64("monthly_used", t.monthly.tokens),
	)
}

func (t *Tracker) load(ctx context.Context, key string) counters {
	var c counters
	var err error
	if c.tokens, err = t.store.Get(ctx, key); err != nil {
		t.logger.Warn("Failed to load token budget from store", zap.String("key", key), zap.Error(err))
	}
	if c.requests, err = t.store.Get(ctx, key+":requests"); err != nil {
		t.logger.Warn("Failed to load request count from store", zap.String("key", key), zap.Error(err))
	}
	return c
}

func (t *Tracker) dailyKey(at time.Time) string {
	return fmt.Sprintf("%sbudget:%s:daily:%s", t.prefix, t.provider, at.Format("2006-01-02"))
}

func (t *Tracker) monthlyKey(at time.Time) string {
	return fmt.Sprintf("%sbudget:%s:monthly:%s", t.prefix, t.provider, at.Format("2006-01"))
}

// Check verifies the budget allows a new request. In-memory only.
func (t *Tracker) Check(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetIfNeeded()

	dailyExceeded := t.dailyLimit > 0 && t.daily.tokens >= t.dailyLimit
	monthlyExceeded := t.monthlyLimit > 0 && t.monthly.tokens >= t.monthlyLimit

	if !dailyExceeded && !monthlyExceeded {
		return nil
	}

	if t.action == ActionReject {
		return domain.ErrTokenQuotaExceeded
	}

	t.logger.Warn("Token budget exceeded",
		zap.String("provider", t.provider),
		zap.Int64("daily_used", t.daily.tokens),
		zap.Int64("daily_limit", t.dailyLimit),
		zap.Int64("monthly_used", t.monthly.tokens),
		zap.Int64("monthly_limit", t.monthlyLimit),
	)
	return nil
}

// Record registers one completed request and the tokens it consumed.
func (t *Tracker) Record(tokens int64) {
	t.mu.Lock()
	t.resetIfNeeded()
	t.daily.tokens += tokens
	t.daily.requests++
	t.monthly.tokens += tokens
	t.monthly.requests++
	store := t.store
	now := t.now()
	dailyKey := t.dailyKey(now)
	monthlyKey := t.monthlyKey(now)
	t.mu.Unlock()

	if store == nil {
		return
	}

	// Write-behind on a background context so a canceled request still counts.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, key := range []string{dailyKey, monthlyKey} {
		if tokens > 0 {
			if err := store.IncrBy(ctx, key, tokens); err != nil {
				t.logger.Warn("Failed to persist token budget", zap.String("key", key), zap.Error(err))
			}
		}
		if err := store.IncrBy(ctx, key+":requests", 1); err != nil {
			t.logger.Warn("Failed to persist request count", zap.String("key", key), zap.Error(err))
		}
	}
}

// RemainingDaily returns tokens left in the daily budget (-1 if unlimited).
func (t *Tracker) RemainingDaily() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetIfNeeded()
	return remaining(t.dailyLimit, t.daily.tokens)
}

// RemainingMonthly returns tokens left in the monthly budget (-1 if unlimited).
func (t *Tracker) RemainingMonthly() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetIfNeeded()
	return remaining(t.monthlyLimit, t.monthly.tokens)
}

func remaining(limit, used int64) int64 {
	if limit == 0 {
		return -1
	}
	if left := limit - used; left > 0 {
		return left
	}
	return 0
}

// DailyLimit returns the daily token cap.
func (t *Tracker) DailyLimit() int64 { return t.dailyLimit }

// MonthlyLimit returns the monthly token cap.
func (t *Tracker) MonthlyLimit() int64 { return t.monthlyLimit }

// DailyUsed returns tokens consumed today.
func (t *Tracker) DailyUsed() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetIfNeeded()
	return t.daily.tokens
}

// MonthlyUsed returns tokens consumed this month.
func (t *Tracker) MonthlyUsed() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetIfNeeded()
	return t.monthly.tokens
}

// DailyRequests returns completed requests today.
func (t *Tracker) DailyRequests() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetIfNeeded()
	return t.daily.requests
}

// MonthlyRequests returns completed requests this month.
func (t *Tracker) MonthlyRequests() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetIfNeeded()
	return t.monthly.requests
}

// resetIfNeeded zeroes counters when the day or month rolls over.
func (t *Tracker) resetIfNeeded() {
	now := t.now()
	today := truncateToDay(now)
	thisMonth := truncateToMonth(now)

	if today.After(t.lastDayReset) {
		t.daily = counters{}
		t.lastDayReset = today
	}
	if thisMonth.After(t.lastMonthReset) {
		t.monthly = counters{}
		t.lastMonthReset = thisMonth
	}
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncateToMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
