package dispatch

import (
	"context"
	"errors"

	"github.com/aws/smithy-go"
)

// transientCodes are API error codes worth exactly one retry. Everything not
// listed here (access denied, missing resource, validation) is permanent.
var transientCodes = map[string]struct{}{
	"Throttling":                     {},
	"ThrottlingException":            {},
	"TooManyRequestsException":       {},
	"RequestLimitExceeded":           {},
	"RequestTimeout":                 {},
	"RequestTimeoutException":        {},
	"ServiceUnavailable":             {},
	"ServiceUnavailableException":    {},
	"InternalError":                  {},
	"InternalServiceError":           {},
	"ProvisionedThroughputExceededException": {},
}

// transient classifies a handler error deterministically from its type and
// code, never from guesswork: timeouts and rate limits retry, the rest fail
// outright.
func transient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if _, ok := transientCodes[apiErr.ErrorCode()]; ok {
			return true
		}
		return apiErr.ErrorFault() == smithy.FaultServer
	}
	return false
}
