package groq

import (
	"context"
	"strings"

	"github.com/novahq/nova/internal/policy"
)

// MockStreamer yields scripted fragments without any network. Not safe for
// concurrent use; it records requests for assertions.
type MockStreamer struct {
	Fragments []string
	Err       error

	Requests []CompletionRequest
}

func NewMockStreamer(fragments ...string) *MockStreamer {
	return &MockStreamer{Fragments: fragments}
}

func (m *MockStreamer) StreamCompletion(ctx context.Context, req CompletionRequest, onDelta DeltaHandler) (Completion, error) {
	m.Requests = append(m.Requests, req)

	select {
	case <-ctx.Done():
		return Completion{}, ctx.Err()
	default:
	}

	var out strings.Builder
	for _, f := range m.Fragments {
		out.WriteString(f)
		if onDelta != nil {
			if err := onDelta(f); err != nil {
				return Completion{Text: out.String()}, err
			}
		}
	}

	if m.Err != nil {
		if onDelta != nil && ctx.Err() == nil {
			msg, _ := policy.RedactSecrets(m.Err.Error())
			_ = onDelta(ErrorFragmentPrefix + msg)
		}
		return Completion{Text: out.String()}, m.Err
	}
	return Completion{Text: out.String()}, nil
}
