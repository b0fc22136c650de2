package reliability

import (
	"context"
	"errors"
)

// Stream failure kinds, used as metrics labels and in logs.
const (
	KindTimeout  = "timeout"
	KindCanceled = "canceled"
	KindStatus   = "status"
	KindNetwork  = "network"
)

type httpStatusCarrier interface {
	HTTPStatus() int
}

type timeoutCarrier interface {
	Timeout() bool
}

// Classify maps an upstream stream failure to a stable kind. Returns the
// empty string for nil.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	var sc httpStatusCarrier
	if errors.As(err, &sc) {
		return KindStatus
	}
	var tc timeoutCarrier
	if errors.As(err, &tc) && tc.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	return KindNetwork
}

// IsCancel reports whether the failure came from the consumer going away
// rather than from the upstream itself.
func IsCancel(err error) bool {
	return errors.Is(err, context.Canceled)
}
