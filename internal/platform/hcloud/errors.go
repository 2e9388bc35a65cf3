package hcloud

import (
	"errors"
	"slices"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
)

// Error codes grouped by how callers react to them.
var (
	// retried with backoff while an action holds the resource
	lockedCodes = []hcloud.ErrorCode{
		hcloud.ErrorCodeLocked,
		hcloud.ErrorCodeConflict,
		hcloud.ErrorCodeResourceLocked,
		hcloud.ErrorCodeResourceUnavailable,
		hcloud.ErrorCodeResourceInUse,
	}
	// surfaced immediately
	fatalCodes = []hcloud.ErrorCode{
		hcloud.ErrorCodeNotFound,
		hcloud.ErrorCodeInvalidInput,
		hcloud.ErrorCodeInvalidServerType,
		hcloud.ErrorCodeUniquenessError,
	}
)

func errorCode(err error) (hcloud.ErrorCode, bool) {
	var apiErr hcloud.Error
	if err == nil || !errors.As(err, &apiErr) {
		return "", false
	}
	return apiErr.Code, true
}

func hasCode(err error, codes ...hcloud.ErrorCode) bool {
	code, ok := errorCode(err)
	return ok && slices.Contains(codes, code)
}

func isResourceLocked(err error) bool { return hasCode(err, lockedCodes...) }

func isInvalidParameter(err error) bool { return hasCode(err, fatalCodes...) }

// IsNotFound reports an API not_found error.
func IsNotFound(err error) bool { return hasCode(err, hcloud.ErrorCodeNotFound) }

// IsUniquenessError reports a create that collided with an existing resource.
func IsUniquenessError(err error) bool { return hasCode(err, hcloud.ErrorCodeUniquenessError) }

// IsRateLimited reports that the API token hit its request limit.
func IsRateLimited(err error) bool { return hasCode(err, hcloud.ErrorCodeRateLimitExceeded) }
