package adapter

import "errors"

// ErrRecoverable marks source errors worth another attempt (rate limits,
// timeouts). Anything else fails the job for good.
var ErrRecoverable = errors.New("recoverable source error")
