package agent

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"cairn/internal/hooks"
	"cairn/internal/metrics"
	"cairn/internal/provider"
)

// retryState tracks recovery across the attempts of one turn.
type retryState struct {
	model        string
	attempt      int
	maxRetries   int
	usedFallback bool
	compacted    bool
}

// onFailure decides how a turn continues after a failed model call. It
// returns the delay before the next attempt, or the error to raise.
// messages may be replaced by an emergency compaction.
func (a *Agent) onFailure(ctx context.Context, t *thread, st *retryState, messages *[]provider.Message, err error) (time.Duration, error) {
	class := provider.Classify(err)
	logger := log.With().Str("thread_id", t.id).Str("model", st.model).Str("class", string(class)).
		Int("attempt", st.attempt).Logger()

	if class == provider.ClassContextLength && st.attempt == 0 && !st.compacted {
		st.compacted = true
		compacted, ok := a.compact(ctx, t, *messages, "context_length", a.compactor.Emergency)
		if ok {
			*messages = compacted
			metrics.RetriesTotal.WithLabelValues(string(class), "compact").Inc()
			logger.Warn().Err(err).Msg("context rejected, retrying after emergency compaction")
			return 0, nil
		}
	}

	if st.attempt >= st.maxRetries {
		logger.Error().Err(err).Msg("generation failed, retries exhausted")
		return 0, normalize(err)
	}

	hc := hooks.NewContext(hooks.GenerationFailure, t.id)
	hc.Failure = &hooks.FailureContext{
		Model:         st.model,
		FallbackModel: a.opts.FallbackModel,
		Attempt:       st.attempt,
		MaxRetries:    st.maxRetries,
		Class:         string(class),
		Message:       err.Error(),
	}
	out := a.hooks.Trigger(ctx, hc)

	fallback := a.opts.FallbackModel
	canFallback := fallback != "" && !st.usedFallback && fallback != st.model
	if out.Fallback != nil && !*out.Fallback {
		canFallback = false
	}
	hookFallback := out.Fallback != nil && *out.Fallback

	st.attempt++
	switch {
	case canFallback && (hookFallback || (!out.Retry && class.RetryEligible())):
		logger.Warn().Err(err).Str("fallback_model", fallback).Msg("switching to fallback model")
		st.model = fallback
		st.usedFallback = true
		metrics.RetriesTotal.WithLabelValues(string(class), "fallback").Inc()
		return out.RetryDelay, nil
	case out.Retry || class.RetryEligible():
		delay := out.RetryDelay
		if delay <= 0 {
			delay = a.backoff(err, st.attempt)
		}
		logger.Warn().Err(err).Dur("delay", delay).Msg("retrying generation")
		metrics.RetriesTotal.WithLabelValues(string(class), "retry").Inc()
		return delay, nil
	default:
		logger.Error().Err(err).Msg("generation failed")
		return 0, normalize(err)
	}
}

// backoff returns the provider's retry-after hint, or an exponential delay
// from RetryDelay capped at MaxRetryDelay.
func (a *Agent) backoff(err error, attempt int) time.Duration {
	if d := provider.RetryAfter(err); d > 0 {
		return min(d, MaxRetryDelay)
	}
	d := a.opts.RetryDelay << (attempt - 1)
	if d <= 0 || d > MaxRetryDelay {
		return MaxRetryDelay
	}
	return d
}
