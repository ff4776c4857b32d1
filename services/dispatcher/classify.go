package dispatcher

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/samber/lo"
)

// quotaMarkers are matched case-insensitively anywhere in an error message.
// This list is the only place to touch when a provider words its quota
// errors differently.
var quotaMarkers = []string{
	"quota",
	"limit",
	"rate limit",
	"insufficient",
	"exceeded",
	"429",
	"402",
}

// IsQuotaError reports whether err reads like a quota or rate-limit failure.
// Providers expose no common typed taxonomy over HTTP, so this is a
// best-effort heuristic over the message text and nothing more.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return lo.SomeBy(quotaMarkers, func(marker string) bool {
		return strings.Contains(msg, marker)
	})
}

// isQuotaFailure is IsQuotaError minus timeouts, whose messages ("context
// deadline exceeded", "Client.Timeout exceeded") would otherwise match.
func isQuotaFailure(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return false
	}
	return IsQuotaError(err)
}
