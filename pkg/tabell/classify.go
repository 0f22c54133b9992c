package tabell

import (
	"context"
	"errors"
	"net"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/tabell-io/tabell-go/pkg/errs"
)

// classifyTransport maps a failure to obtain any response into the
// error taxonomy: deadline overruns are Timeout, everything else is
// Unavailable.
func classifyTransport(op errs.Op, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.E(op, errs.Timeout, "request exceeded its deadline")
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return errs.E(op, errs.Timeout, err)
	}

	if errors.Is(err, context.Canceled) {
		return errs.E(op, err)
	}

	return errs.E(op, errs.Unavailable, err)
}

// kindForStatus maps an HTTP error status to exactly one error kind.
func kindForStatus(status int) errs.Kind {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return errs.Validation
	case status == http.StatusUnauthorized:
		return errs.Unauthenticated
	case status == http.StatusForbidden:
		return errs.Unauthorized
	case status == http.StatusNotFound:
		return errs.NotExist
	case status == http.StatusConflict:
		return errs.Exist
	case status == http.StatusTooManyRequests:
		return errs.RateLimited
	case status >= http.StatusInternalServerError:
		return errs.Internal
	default:
		return errs.Other
	}
}

// classifyStatus turns an HTTP error response into a taxonomy error,
// preferring the backend-supplied message over the generic one. A 401
// invalidates the stored credential: whatever operation triggered it,
// the session is over.
func (c *Client) classifyStatus(op errs.Op, status int, body []byte) error {
	kind := kindForStatus(status)

	if kind == errs.Unauthenticated {
		err := c.tokens.Clear()
		if err != nil {
			c.log.Warn().Err(err).Msg("clearing stored token after 401")
		}
	}

	message, fields := parseErrorBody(body)
	if message == "" {
		message = genericMessage(kind)
	}

	if len(fields) > 0 {
		return errs.E(op, kind, errs.Fields(fields), message)
	}

	return errs.E(op, kind, message)
}

// parseErrorBody extracts the message and any field-level errors from
// an error response, tolerating both the flat and the enveloped error
// shapes.
func parseErrorBody(body []byte) (string, map[string][]string) {
	if len(body) == 0 {
		return "", nil
	}

	res := errs.ErrResponse{}

	err := json.Unmarshal(body, &res)
	if err != nil {
		return "", nil
	}

	message := res.Message
	if len(res.Issues) > 0 && message == "" {
		message = res.Issues[0]
	}

	return message, res.Errors
}

func genericMessage(kind errs.Kind) string {
	switch kind {
	case errs.Validation:
		return "the submitted values were rejected"
	case errs.Unauthenticated:
		return "your session has expired, please sign in again"
	case errs.Unauthorized:
		return "you do not have permission for this operation"
	case errs.NotExist:
		return "the requested item was not found"
	case errs.Exist:
		return "the item conflicts with an existing one"
	case errs.RateLimited:
		return "too many requests, please wait and try again"
	case errs.Internal:
		return "the server failed to process the request"
	case errs.Timeout:
		return "the request timed out"
	case errs.Unavailable:
		return "the server could not be reached"
	default:
		return "the request failed"
	}
}
