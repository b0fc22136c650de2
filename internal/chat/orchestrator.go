// Package chat drives a prompt through validation, rate limiting, upstream
// streaming, and the memory commit that follows a completed stream.
package chat

import (
	"context"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/novahq/nova/internal/groq"
	"github.com/novahq/nova/internal/memory"
	"github.com/novahq/nova/internal/observability"
	"github.com/novahq/nova/internal/ratelimit"
	"github.com/novahq/nova/internal/reliability"
)

// BaseSystemPrompt is the persona prepended to every upstream conversation.
const BaseSystemPrompt = `
You are NOVA, a calm, intelligent, friendly, and confident assistant.
You feel human and speak naturally.
Rules:
- Never mention you are an AI, model, Groq, or any APIs
- Avoid illegal, harmful, or explicit content
- Adapt response length to the conversation
- Be warm, helpful, and a bit playful when it fits
`

// MaxMessageRunes bounds a prompt's length in Unicode code points, not bytes.
const MaxMessageRunes = 3000

// Canned replies returned for prompts that never reach the upstream.
const (
	ReplyEmptyMessage = "Say something 🙂"
	ReplyTooLong      = "Message too long."
	ReplyRateLimited  = "Chill for a sec ⏳"
)

// Outcome classifies how a prompt left the pipeline.
type Outcome string

const (
	OutcomeStreamed      Outcome = "streamed"
	OutcomeRejectedInput Outcome = "rejected_input"
	OutcomeRejectedRate  Outcome = "rejected_rate"
)

// Prompt is one user turn plus its sampling overrides. Nil overrides keep
// the upstream defaults.
type Prompt struct {
	Message     string
	Model       string
	Temperature *float64
	MaxTokens   *int
}

// Result reports a prompt's terminal state. Reply carries the canned answer
// for rejected prompts; Text carries the accumulated assistant reply for
// streamed ones, including any partial text left by a failed transport.
type Result struct {
	Outcome Outcome
	Reply   string
	Text    string
}

// Orchestrator owns the prompt pipeline shared by every transport surface.
type Orchestrator struct {
	limiter  *ratelimit.Limiter
	store    memory.Store
	streamer groq.Streamer
	stats    *observability.Stats
	metrics  *observability.Metrics
}

func NewOrchestrator(limiter *ratelimit.Limiter, store memory.Store, streamer groq.Streamer, stats *observability.Stats, metrics *observability.Metrics) *Orchestrator {
	return &Orchestrator{
		limiter:  limiter,
		store:    store,
		streamer: streamer,
		stats:    stats,
		metrics:  metrics,
	}
}

// Chat validates the prompt, charges the identity's rate budget, streams the
// assistant reply fragment by fragment through emit, and commits the exchange
// once the stream completes normally. Rejections return a Result without an
// error. Transport failures return the partial Result alongside the error;
// by then an in-band error fragment has already been delivered, so nothing is
// committed to memory.
func (o *Orchestrator) Chat(ctx context.Context, identity string, p Prompt, emit groq.DeltaHandler) (Result, error) {
	msg := strings.TrimSpace(p.Message)
	if msg == "" {
		o.metrics.ChatOutcomes.WithLabelValues(string(OutcomeRejectedInput)).Inc()
		return Result{Outcome: OutcomeRejectedInput, Reply: ReplyEmptyMessage}, nil
	}
	if utf8.RuneCountInString(msg) > MaxMessageRunes {
		o.metrics.ChatOutcomes.WithLabelValues(string(OutcomeRejectedInput)).Inc()
		return Result{Outcome: OutcomeRejectedInput, Reply: ReplyTooLong}, nil
	}
	if !o.limiter.Admit(identity) {
		o.stats.RecordBlocked()
		o.metrics.ChatOutcomes.WithLabelValues(string(OutcomeRejectedRate)).Inc()
		return Result{Outcome: OutcomeRejectedRate, Reply: ReplyRateLimited}, nil
	}

	// The request counts exactly once, and only once it is admitted this far.
	o.stats.RecordRequest()
	o.metrics.ChatOutcomes.WithLabelValues(string(OutcomeStreamed)).Inc()

	history, err := o.store.History(ctx, identity)
	if err != nil {
		log.Printf("chat: load history for %s: %v", identity, err)
		history = nil
	}
	messages := make([]groq.Message, 0, len(history)+2)
	messages = append(messages, groq.Message{Role: "system", Content: BaseSystemPrompt})
	for _, turn := range history {
		messages = append(messages, groq.Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, groq.Message{Role: memory.RoleUser, Content: msg})

	o.metrics.ActiveStreams.Inc()
	defer o.metrics.ActiveStreams.Dec()

	start := time.Now()
	sawFirst := false
	relay := func(delta string) error {
		if !sawFirst {
			sawFirst = true
			o.metrics.ObserveFirstFragmentLatency(time.Since(start))
		}
		if emit == nil {
			return nil
		}
		return emit(delta)
	}

	comp, err := o.streamer.StreamCompletion(ctx, groq.CompletionRequest{
		ModelAlias:  p.Model,
		Messages:    messages,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	}, relay)
	o.metrics.ObserveStreamDuration(time.Since(start))
	if err != nil {
		kind := reliability.Classify(err)
		o.metrics.UpstreamErrors.WithLabelValues(kind).Inc()
		if !reliability.IsCancel(err) {
			log.Printf("chat: stream for %s failed (%s): %v", identity, kind, err)
		}
		return Result{Outcome: OutcomeStreamed, Text: comp.Text}, err
	}

	// An empty reply still commits; only a broken stream leaves memory alone.
	if err := o.store.CommitExchange(ctx, identity, msg, comp.Text); err != nil {
		log.Printf("chat: commit exchange for %s: %v", identity, err)
	}
	o.metrics.ActiveIdentities.Set(float64(o.store.ActiveIdentities()))
	return Result{Outcome: OutcomeStreamed, Text: comp.Text}, nil
}

// Reset drops the identity's conversation history. Unknown identities are a
// no-op.
func (o *Orchestrator) Reset(ctx context.Context, identity string) error {
	if err := o.store.Reset(ctx, identity); err != nil {
		return err
	}
	o.metrics.ActiveIdentities.Set(float64(o.store.ActiveIdentities()))
	return nil
}
