package groq

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func frame(content string) string {
	return "data: {\"choices\":[{\"delta\":{\"content\":\"" + content + "\"}}]}\n\n"
}

func TestClientStreamsFragments(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, frame("A"))
		io.WriteString(w, frame("B"))
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "gsk_test", time.Second)
	var got []string
	comp, err := c.StreamCompletion(context.Background(), CompletionRequest{
		ModelAlias: "fast",
		Messages:   []Message{{Role: "user", Content: "hi"}},
	}, func(delta string) error {
		got = append(got, delta)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamCompletion() error = %v", err)
	}
	if comp.Text != "AB" {
		t.Fatalf("comp.Text = %q, want %q", comp.Text, "AB")
	}
	if len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Fatalf("fragments = %v, want [A B]", got)
	}
}

func TestClientSendsAuthAndDefaults(t *testing.T) {
	authCh := make(chan string, 1)
	payloadCh := make(chan completionPayload, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCh <- r.Header.Get("Authorization")
		var p completionPayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		payloadCh <- p
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "gsk_test", time.Second)
	_, err := c.StreamCompletion(context.Background(), CompletionRequest{
		ModelAlias: "smart",
		Messages: []Message{
			{Role: "system", Content: "persona"},
			{Role: "user", Content: "hi"},
		},
	}, nil)
	if err != nil {
		t.Fatalf("StreamCompletion() error = %v", err)
	}

	if auth := <-authCh; auth != "Bearer gsk_test" {
		t.Fatalf("Authorization = %q, want %q", auth, "Bearer gsk_test")
	}
	p := <-payloadCh
	if p.Model != "llama-3.1-70b-versatile" {
		t.Fatalf("model = %q, want smart alias target", p.Model)
	}
	if !p.Stream {
		t.Fatalf("stream = false, want true")
	}
	if p.Temperature != 0.65 {
		t.Fatalf("temperature = %v, want default 0.65", p.Temperature)
	}
	if p.MaxTokens != 1024 {
		t.Fatalf("max_tokens = %d, want default 1024", p.MaxTokens)
	}
	if len(p.Messages) != 2 || p.Messages[0].Role != "system" || p.Messages[1].Content != "hi" {
		t.Fatalf("messages = %+v, want system+user pair", p.Messages)
	}
}

func TestClientHonorsExplicitSampling(t *testing.T) {
	payloadCh := make(chan completionPayload, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p completionPayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		payloadCh <- p
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer ts.Close()

	temp := 0.2
	maxTokens := 64
	c := NewClient(ts.URL, "gsk_test", time.Second)
	_, err := c.StreamCompletion(context.Background(), CompletionRequest{
		Messages:    []Message{{Role: "user", Content: "hi"}},
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	}, nil)
	if err != nil {
		t.Fatalf("StreamCompletion() error = %v", err)
	}

	p := <-payloadCh
	if p.Temperature != 0.2 {
		t.Fatalf("temperature = %v, want 0.2", p.Temperature)
	}
	if p.MaxTokens != 64 {
		t.Fatalf("max_tokens = %d, want 64", p.MaxTokens)
	}
	if p.Model != "llama-3.1-8b-instant" {
		t.Fatalf("model = %q, want fast fallback for empty alias", p.Model)
	}
}

func TestClientSkipsMalformedFrames(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, frame("A"))
		io.WriteString(w, "data: {garbage\n\n")
		io.WriteString(w, frame("B"))
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "gsk_test", time.Second)
	var got []string
	comp, err := c.StreamCompletion(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	}, func(delta string) error {
		got = append(got, delta)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamCompletion() error = %v", err)
	}
	if comp.Text != "AB" {
		t.Fatalf("comp.Text = %q, want %q", comp.Text, "AB")
	}
	if len(got) != 2 {
		t.Fatalf("fragments = %v, want exactly the two valid deltas", got)
	}
}

func TestClientStopsAtDoneSentinel(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, frame("A"))
		io.WriteString(w, "data: [DONE]\n\n")
		io.WriteString(w, frame("ignored"))
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "gsk_test", time.Second)
	comp, err := c.StreamCompletion(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	}, nil)
	if err != nil {
		t.Fatalf("StreamCompletion() error = %v", err)
	}
	if comp.Text != "A" {
		t.Fatalf("comp.Text = %q, want %q", comp.Text, "A")
	}
}

func TestClientSurfacesUpstreamStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model melted", http.StatusBadGateway)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "gsk_test", time.Second)
	var got []string
	_, err := c.StreamCompletion(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	}, func(delta string) error {
		got = append(got, delta)
		return nil
	})
	if err == nil {
		t.Fatalf("StreamCompletion() error = nil, want status error")
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadGateway {
		t.Fatalf("error = %v, want StatusError with 502", err)
	}
	if len(got) != 1 || !strings.HasPrefix(got[0], ErrorFragmentPrefix) {
		t.Fatalf("fragments = %v, want one in-band error fragment", got)
	}
}

func TestClientIdleTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		io.WriteString(w, frame("A"))
		flusher.Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "gsk_test", 100*time.Millisecond)
	var got []string
	comp, err := c.StreamCompletion(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	}, func(delta string) error {
		got = append(got, delta)
		return nil
	})
	if err == nil {
		t.Fatalf("StreamCompletion() error = nil, want idle timeout")
	}
	var ite *IdleTimeoutError
	if !errors.As(err, &ite) {
		t.Fatalf("error = %v, want IdleTimeoutError", err)
	}
	if comp.Text != "A" {
		t.Fatalf("comp.Text = %q, want partial %q", comp.Text, "A")
	}
	if len(got) != 2 || !strings.HasPrefix(got[1], ErrorFragmentPrefix) {
		t.Fatalf("fragments = %v, want delta then error fragment", got)
	}
}

func TestClientCanceledConsumerGetsNoErrorFragment(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		io.WriteString(w, frame("A"))
		flusher.Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewClient(ts.URL, "gsk_test", time.Second)
	var got []string
	_, err := c.StreamCompletion(ctx, CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	}, func(delta string) error {
		got = append(got, delta)
		cancel()
		return nil
	})
	if err == nil {
		t.Fatalf("StreamCompletion() error = nil, want cancellation")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled in chain", err)
	}
	for _, f := range got {
		if strings.HasPrefix(f, ErrorFragmentPrefix) {
			t.Fatalf("error fragment %q delivered to a canceled consumer", f)
		}
	}
}

func TestResolveModel(t *testing.T) {
	cases := []struct {
		alias string
		want  string
	}{
		{"fast", "llama-3.1-8b-instant"},
		{"smart", "llama-3.1-70b-versatile"},
		{"ultra", "mixtral-8x22b-instruct"},
		{"", "llama-3.1-8b-instant"},
		{"turbo", "llama-3.1-8b-instant"},
	}
	for _, tc := range cases {
		if got := ResolveModel(tc.alias); got != tc.want {
			t.Fatalf("ResolveModel(%q) = %q, want %q", tc.alias, got, tc.want)
		}
	}
}
