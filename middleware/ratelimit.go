package middleware

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/mtgscribe/gateway/apierr"
	"github.com/mtgscribe/gateway/config"
	"github.com/mtgscribe/gateway/costengine"
	"github.com/mtgscribe/gateway/models"
	"github.com/mtgscribe/gateway/provider"
	"github.com/mtgscribe/gateway/redisclient"
	"github.com/mtgscribe/gateway/tokenledger"
	"github.com/rs/zerolog"
)

// RateLimiter implements admission-chain steps 1, 3, 4 and 5: the
// IP-rolling-window limiter, the per-tier daily request-count limiter,
// the per-tier daily token-budget check, and the global cost-budget
// gate. Every counter is a fixed-window (UTC minute or day) key on the
// KV store, incremented with Incr's atomic Incr+Expire-on-first-write
// semantics — race-safe without a multi-key transaction, per spec §5.
type RateLimiter struct {
	kv      redisclient.Store
	cfg     *config.Config
	ledger  *tokenledger.Ledger
	cost    *costengine.Engine
	logger  zerolog.Logger
}

func NewRateLimiter(kv redisclient.Store, cfg *config.Config, ledger *tokenledger.Ledger, cost *costengine.Engine, logger zerolog.Logger) *RateLimiter {
	return &RateLimiter{kv: kv, cfg: cfg, ledger: ledger, cost: cost, logger: logger.With().Str("component", "rate-limiter").Logger()}
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeRateLimitError(w http.ResponseWriter, apiErr *apierr.Error) {
	if apiErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(apiErr.RetryAfter))
	}
	WriteError(w, apiErr)
}

// IPLimiter is admission-chain step 1: ≤ R_ip requests per minute per
// source address, rejecting with 429 + Retry-After on breach.
func (rl *RateLimiter) IPLimiter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		limit := rl.cfg.TierTable[models.TierAnonymous].IPPerMinute
		windowKey := fmt.Sprintf("rl_ip:%s:%s", ip, time.Now().UTC().Format("200601021504"))

		count, err := rl.kv.Incr(r.Context(), windowKey, time.Minute)
		if err != nil {
			rl.logger.Warn().Err(err).Msg("ip limiter: kv incr failed, allowing request")
			next.ServeHTTP(w, r)
			return
		}
		if count > int64(limit) {
			writeRateLimitError(w, apierr.RateLimited("too many requests from this address", 60))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func quotaKey(p *models.Principal, ip string) (string, models.Tier) {
	if p != nil {
		return fmt.Sprintf("user:%s", p.UserID), p.Tier
	}
	return fmt.Sprintf("ip:%s", ip), models.TierAnonymous
}

// TierRequestQuota is admission-chain step 3: ≤ R_day(tier) chat
// requests per calendar day, keyed by principal (or IP for anonymous).
// Sets X-RateLimit-{Limit,Remaining,Reset} on every response it counts;
// when the KV increment fails the request is let through without them.
func (rl *RateLimiter) TierRequestQuota(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := PrincipalFromContext(r.Context())
		key, tier := quotaKey(p, clientIP(r))
		limits := rl.cfg.Limits(tier)

		now := time.Now().UTC()
		dayEnd := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 0, time.UTC)
		ttl := dayEnd.Sub(now) + time.Second
		rlKey := fmt.Sprintf("rl_day:%s:%s", key, now.Format("20060102"))

		count, err := rl.kv.Incr(r.Context(), rlKey, ttl)
		if err != nil {
			rl.logger.Warn().Err(err).Msg("tier quota: kv incr failed, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		remaining := int64(limits.RequestsPerDay) - count
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limits.RequestsPerDay))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		w.Header().Set("X-RateLimit-Reset", dayEnd.Format(time.RFC3339))

		if count > int64(limits.RequestsPerDay) {
			retryAfter := int(math.Ceil(ttl.Seconds()))
			writeRateLimitError(w, apierr.RateLimited("daily request quota exceeded for this tier", retryAfter))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// chatRequestBody is the minimal shape the token-budget check needs:
// just the message length, read without consuming the body for
// downstream handlers. The schema validator re-reads and fully
// validates the same body later in the chain.
type chatRequestBody struct {
	Message string `json:"message"`
}

// TokenBudget is admission-chain step 4: reads the user-day token
// bucket and rejects with 429 if used+estimate would exceed the tier's
// daily token cap. estimated_total = ceil(len(message)/4) + max_output(tier).
func (rl *RateLimiter) TokenBudget(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := PrincipalFromContext(r.Context())
		tier := EffectiveTier(r.Context())
		limits := rl.cfg.Limits(tier)

		msgLen, body, err := peekMessageLength(r)
		if err != nil {
			WriteError(w, apierr.New(apierr.KindValidation, "malformed request body"))
			return
		}
		r.Body = body

		estimate := int64(provider.EstimateTokensFromLength(msgLen)) + int64(limits.MaxOutputTokens)

		var userID string
		if p != nil {
			userID = p.UserID
		}
		var used int64
		if userID != "" {
			used, err = rl.ledger.UsageToday(r.Context(), userID)
			if err != nil {
				rl.logger.Warn().Err(err).Msg("token budget: ledger read failed, allowing request")
				used = 0
			}
		}

		w.Header().Set("X-Tokens-Limit", strconv.Itoa(limits.TokensPerDay))
		remaining := int64(limits.TokensPerDay) - used
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-Tokens-Used", strconv.FormatInt(used, 10))
		w.Header().Set("X-Tokens-Remaining", strconv.FormatInt(remaining, 10))

		if used+estimate > int64(limits.TokensPerDay) {
			writeRateLimitError(w, apierr.RateLimited("daily token budget exceeded for this tier", secondsUntilMidnightUTC()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GlobalBudgetGate is admission-chain step 5: rejects with 503 when
// today's global spend plus this request's pre-flight cost estimate
// would exceed GLOBAL_DAILY_BUDGET.
func (rl *RateLimiter) GlobalBudgetGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tier := EffectiveTier(r.Context())
		limits := rl.cfg.Limits(tier)

		msgLen, body, err := peekMessageLength(r)
		if err != nil {
			WriteError(w, apierr.New(apierr.KindValidation, "malformed request body"))
			return
		}
		r.Body = body

		estimate, err := rl.cost.Estimate(msgLen, limits.MaxOutputTokens, rl.cfg.UpstreamModel)
		if err != nil {
			rl.logger.Warn().Err(err).Msg("global budget gate: estimate failed, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		afford, err := rl.cost.CanAfford(r.Context(), estimate)
		if err != nil {
			rl.logger.Warn().Err(err).Msg("global budget gate: affordability check failed, allowing request")
			next.ServeHTTP(w, r)
			return
		}
		if !afford {
			WriteError(w, apierr.New(apierr.KindBudgetExceeded, "the daily service budget has been reached, try again tomorrow"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secondsUntilMidnightUTC() int {
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	return int(math.Ceil(midnight.Sub(now).Seconds()))
}
