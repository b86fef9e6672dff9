package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	gh "github.com/google/go-github/v66/github"

	"registrar/internal/domain"
)

// classify maps a go-github error onto a domain error kind. Failures of the
// token source keep their ErrAuth kind.
func classify(op string, err error) error {
	var (
		rateErr  *gh.RateLimitError
		abuseErr *gh.AbuseRateLimitError
		respErr  *gh.ErrorResponse
	)
	switch {
	case errors.As(err, &rateErr):
		return domain.NewError(domain.ErrNetwork, err, "%s: rate limit exhausted", op)
	case errors.As(err, &abuseErr):
		return domain.NewError(domain.ErrNetwork, err, "%s: secondary rate limit", op)
	case errors.As(err, &respErr) && respErr.Response != nil:
		return classifyStatus(op, respErr.Response, respErr.Message)
	case errors.Is(err, domain.ErrAuth), errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, err)
	}
	return domain.NewError(domain.ErrNetwork, err, "%s", op)
}

func classifyStatus(op string, resp *http.Response, msg string) error {
	code := resp.StatusCode
	if msg == "" {
		msg = http.StatusText(code)
	}

	var kind error
	switch {
	case code == http.StatusUnauthorized:
		kind = domain.ErrAuth
	case code == http.StatusForbidden:
		kind = domain.ErrPermission
		if resp.Header.Get("X-RateLimit-Remaining") == "0" {
			kind = domain.ErrNetwork
		}
	case code == http.StatusNotFound:
		kind = domain.ErrNotFound
	case code == http.StatusConflict:
		kind = domain.ErrConflict
	case code == http.StatusUnprocessableEntity:
		kind = domain.ErrValidation
		if strings.Contains(strings.ToLower(msg), "sha") {
			kind = domain.ErrConflict
		}
	case code == http.StatusTooManyRequests, code >= 500:
		kind = domain.ErrNetwork
	default:
		return fmt.Errorf("%s: unexpected status %d: %s", op, code, msg)
	}
	return domain.NewError(kind, nil, "%s: %s (HTTP %d)", op, msg, code)
}
