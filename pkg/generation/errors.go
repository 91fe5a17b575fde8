package generation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	core "charm.land/fantasy"
	openai "github.com/openai/openai-go/v3"
)

// Cause classifies why a generation call failed.
type Cause string

const (
	CauseTimeout      Cause = "timeout"
	CauseRateLimited  Cause = "rate_limited"
	CauseBadResponse  Cause = "bad_response"
	CauseNetworkError Cause = "network_error"
)

// GenerationError is returned by every failed generation call.
type GenerationError struct {
	Cause      Cause
	Model      string
	StatusCode int
	Err        error
}

func (e *GenerationError) Error() string {
	msg := fmt.Sprintf("generation failed (%s)", e.Cause)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" status %d", e.StatusCode)
	}
	if e.Model != "" {
		msg += " model " + e.Model
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// CauseOf returns the cause carried by err, or "" when err is not a
// GenerationError.
func CauseOf(err error) Cause {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr.Cause
	}
	return ""
}

var (
	errNoChoices    = errors.New("response has no choices")
	errEmptyContent = errors.New("response content is empty")
)

// classify maps a transport or SDK error onto a GenerationError. callCtx is the
// per-call context whose deadline enforces the timeout.
func classify(callCtx context.Context, model string, err error) *GenerationError {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr
	}

	out := &GenerationError{Model: model, Err: err}

	var apiErr *openai.Error
	var providerErr *core.ProviderError
	var urlErr *url.Error
	var netErr net.Error

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded):
		out.Cause = CauseTimeout
	case errors.As(err, &apiErr):
		out.StatusCode = apiErr.StatusCode
		if apiErr.StatusCode == http.StatusTooManyRequests {
			out.Cause = CauseRateLimited
		} else {
			out.Cause = CauseBadResponse
		}
	case errors.As(err, &providerErr) && providerErr.StatusCode != 0:
		out.StatusCode = providerErr.StatusCode
		if providerErr.StatusCode == http.StatusTooManyRequests {
			out.Cause = CauseRateLimited
		} else {
			out.Cause = CauseBadResponse
		}
	case errors.As(err, &netErr) && netErr.Timeout():
		out.Cause = CauseTimeout
	case errors.As(err, &urlErr), errors.As(err, &netErr), errors.Is(err, context.Canceled):
		out.Cause = CauseNetworkError
	default:
		// Decoding failures and empty envelopes.
		out.Cause = CauseBadResponse
	}

	return out
}
