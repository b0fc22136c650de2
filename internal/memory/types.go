package memory

import "context"

// Turn is a single conversational message, immutable once created.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MaxExchanges is how many user/assistant exchanges an identity keeps;
// stored history is capped at twice this many turns.
const MaxExchanges = 20

// Store holds per-identity conversation history.
type Store interface {
	// History returns the identity's turns, oldest first. Unseen identities
	// get an empty history.
	History(ctx context.Context, identity string) ([]Turn, error)

	// CommitExchange appends a completed user/assistant pair and truncates
	// the history to the trailing window, dropping the oldest turns.
	CommitExchange(ctx context.Context, identity, userText, assistantText string) error

	// Reset forgets the identity entirely. Resetting an unseen identity is
	// not an error.
	Reset(ctx context.Context, identity string) error

	// ActiveIdentities reports how many identities currently hold history.
	ActiveIdentities() int

	Close() error
}
