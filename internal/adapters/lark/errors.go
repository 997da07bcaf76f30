package lark

import (
	"errors"
	"fmt"
)

// ErrToken is returned when a tenant access token cannot be obtained.
var ErrToken = errors.New("tenant access token unavailable")

// APIError is a non-zero code returned by the Open API.
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lark api error: code=%d msg=%s", e.Code, e.Msg)
}

// IsAPIError reports whether err carries an Open API error with the given code.
func IsAPIError(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
