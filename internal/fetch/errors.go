package fetch

import (
	"fmt"
	"net/http"
	"strings"
)

// TransientError wraps a failure that is worth retrying, eg. timeouts and
// server errors.
type TransientError struct {
	Code int
	Err  error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient fetch error: %v", e.Err)
	}
	return fmt.Sprintf("transient fetch error: status code %d", e.Code)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// BlockedError indicates the remote side rejected the request as automated
// traffic. The caller should rotate its identity before retrying.
type BlockedError struct {
	Code int
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blocked by remote side: status code %d", e.Code)
}

// markers that commonly show up on challenge pages served with a 200
var blockMarkers = []string{
	"captcha",
	"access denied",
	"are you a human",
	"unusual traffic",
	"request blocked",
}

// LooksBlocked classifies a response as a block signal. 403, 429 and 503
// always count (anti-bot layers serve their challenges as 503), other
// responses count when the body carries a challenge marker.
func LooksBlocked(code int, body string) bool {
	if code == http.StatusForbidden || code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable {
		return true
	}
	if len(body) > 4096 {
		body = body[:4096]
	}
	bodyLC := strings.ToLower(body)
	for _, m := range blockMarkers {
		if strings.Contains(bodyLC, m) {
			return true
		}
	}
	return false
}

// retryable reports whether a status code is worth another attempt with
// the same identity.
func retryable(code int) bool {
	return code >= 500 || code == http.StatusRequestTimeout
}
