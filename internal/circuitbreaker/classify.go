package circuitbreaker

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
)

// httpStatusError is an interface for errors carrying an HTTP status code.
// The middleware and client packages return errors implementing it.
type httpStatusError interface {
	HTTPStatus() int
}

// Rule is a single classification rule: the first rule whose Match
// returns true determines the FailureType.
type Rule struct {
	Match func(err error) bool
	Type  FailureType
}

// Classifier maps an error to a FailureType by evaluating an ordered
// rule list. Rules are best-effort heuristics over error types, error
// text and HTTP status codes; unmatched errors are FailureUnknown.
type Classifier struct {
	rules []Rule
}

// NewClassifier creates a classifier with the given rules evaluated in order.
func NewClassifier(rules ...Rule) *Classifier {
	return &Classifier{rules: rules}
}

// Classify returns the FailureType for err, or FailureUnknown when no
// rule matches. A nil error is FailureUnknown; callers should not
// classify successes.
func (c *Classifier) Classify(err error) FailureType {
	if err == nil {
		return FailureUnknown
	}
	for _, rule := range c.rules {
		if rule.Match(err) {
			return rule.Type
		}
	}
	return FailureUnknown
}

// DefaultClassifier returns the standard rule chain. Order matters:
// timeouts are checked before generic connection errors, and the
// specific status-based categories before the generic HTTP bucket.
func DefaultClassifier() *Classifier {
	return NewClassifier(
		Rule{Match: isTimeout, Type: FailureTimeout},
		Rule{Match: isConnectionError, Type: FailureConnection},
		Rule{Match: matchStatusOr(matchAny("auth", "unauthorized", "forbidden"), 401, 403), Type: FailureAuthentication},
		Rule{Match: matchStatusOr(matchAny("rate limit", "too many requests"), 429), Type: FailureRateLimit},
		Rule{Match: matchStatusOr(matchAny("service unavailable", "503"), 503), Type: FailureServiceUnavailable},
		Rule{Match: isHTTPError, Type: FailureHTTPError},
	)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return containsFold(err.Error(), "timeout")
}

func isConnectionError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return containsFold(err.Error(), "connection")
}

func isHTTPError(err error) bool {
	status, ok := statusOf(err)
	return ok && status >= 400 && status < 600
}

// statusOf extracts an HTTP status code from err, if any.
func statusOf(err error) (int, bool) {
	var he httpStatusError
	if errors.As(err, &he) {
		return he.HTTPStatus(), true
	}
	return 0, false
}

// matchAny matches when the error text contains any of the substrings,
// case-insensitively.
func matchAny(substrings ...string) func(error) bool {
	return func(err error) bool {
		msg := err.Error()
		for _, s := range substrings {
			if containsFold(msg, s) {
				return true
			}
		}
		return false
	}
}

// matchStatusOr matches on any of the given HTTP status codes, falling
// back to the text matcher when no status is attached.
func matchStatusOr(textMatch func(error) bool, statuses ...int) func(error) bool {
	return func(err error) bool {
		if got, ok := statusOf(err); ok {
			for _, want := range statuses {
				if got == want {
					return true
				}
			}
		}
		return textMatch(err)
	}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
