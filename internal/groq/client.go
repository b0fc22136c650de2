package groq

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/novahq/nova/internal/policy"
)

// ErrorFragmentPrefix marks the in-band fragment emitted when a stream dies
// so clients can tell it apart from assistant content.
const ErrorFragmentPrefix = "\n\nError: "

const doneSentinel = "[DONE]"

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream status %d", e.Code)
	}
	return fmt.Sprintf("upstream status %d: %s", e.Code, e.Body)
}

func (e *StatusError) HTTPStatus() int { return e.Code }

// IdleTimeoutError reports a stream aborted after upstream silence.
type IdleTimeoutError struct {
	After time.Duration
}

func (e *IdleTimeoutError) Error() string {
	return fmt.Sprintf("no upstream data for %s", e.After)
}

func (e *IdleTimeoutError) Timeout() bool { return true }

// Client streams chat completions from a Groq-compatible HTTP endpoint.
type Client struct {
	url         string
	apiKey      string
	idleTimeout time.Duration
	httpClient  *http.Client
}

func NewClient(url, apiKey string, idleTimeout time.Duration) *Client {
	if idleTimeout <= 0 {
		idleTimeout = 60 * time.Second
	}
	return &Client{
		url:         strings.TrimSpace(url),
		apiKey:      strings.TrimSpace(apiKey),
		idleTimeout: idleTimeout,
		// No client-level timeout: that would cap total stream duration.
		// The idle watchdog bounds upstream silence instead.
		httpClient: &http.Client{},
	}
}

type completionPayload struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// StreamCompletion opens the completion stream and forwards each decoded
// fragment to onDelta. On transport failure one in-band error fragment is
// delivered (unless the caller's context is already dead) and the error is
// returned; no retry is attempted. The returned Completion carries whatever
// text accumulated before the failure.
func (c *Client) StreamCompletion(ctx context.Context, req CompletionRequest, onDelta DeltaHandler) (Completion, error) {
	payload := completionPayload{
		Model:       ResolveModel(req.ModelAlias),
		Messages:    req.Messages,
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
		Stream:      true,
	}
	if req.Temperature != nil {
		payload.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		payload.MaxTokens = *req.MaxTokens
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Completion{}, fmt.Errorf("marshal request: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var timedOut atomic.Bool
	watchdog := time.AfterFunc(c.idleTimeout, func() {
		timedOut.Store(true)
		cancel()
	})
	defer watchdog.Stop()

	comp, err := c.open(streamCtx, body, onDelta, watchdog, &timedOut)
	if err != nil {
		c.emitErrorFragment(ctx, onDelta, err)
	}
	return comp, err
}

func (c *Client) open(ctx context.Context, body []byte, onDelta DeltaHandler, watchdog *time.Timer, timedOut *atomic.Bool) (Completion, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Completion{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Completion{}, c.transportErr("send request", err, timedOut)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return Completion{}, &StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(detail))}
	}

	return c.consumeFrames(res.Body, onDelta, watchdog, timedOut)
}

func (c *Client) consumeFrames(body io.Reader, onDelta DeltaHandler, watchdog *time.Timer, timedOut *atomic.Bool) (Completion, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var out strings.Builder
	for scanner.Scan() {
		watchdog.Reset(c.idleTimeout)
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == doneSentinel {
			return Completion{Text: out.String()}, nil
		}
		delta, ok := decodeDelta(data)
		if !ok || delta == "" {
			// Partial or malformed frames are expected from network
			// chunking; skip them without killing the stream.
			continue
		}
		out.WriteString(delta)
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return Completion{Text: out.String()}, fmt.Errorf("deliver fragment: %w", err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return Completion{Text: out.String()}, c.transportErr("read stream", err, timedOut)
	}
	return Completion{Text: out.String()}, nil
}

func decodeDelta(data string) (string, bool) {
	var chunk streamChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return "", false
	}
	if len(chunk.Choices) == 0 {
		return "", false
	}
	return chunk.Choices[0].Delta.Content, true
}

func (c *Client) transportErr(op string, err error, timedOut *atomic.Bool) error {
	if timedOut.Load() {
		return &IdleTimeoutError{After: c.idleTimeout}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// emitErrorFragment delivers the human-readable failure to the consumer as
// a final in-band fragment. Skipped when the consumer is already gone.
func (c *Client) emitErrorFragment(ctx context.Context, onDelta DeltaHandler, err error) {
	if onDelta == nil || ctx.Err() != nil {
		return
	}
	msg, _ := policy.RedactSecrets(err.Error())
	_ = onDelta(ErrorFragmentPrefix + msg)
}
