package provider

import "fmt"

// TransportError means the provider was never reached or returned nothing
// usable: network failure, timeout, or a non-2xx status with no parseable
// body. The user sees a generic connectivity message.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("provider %s unreachable: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ResponseError means the provider answered but the payload was an error or
// missing the expected reply fields. Upstream carries the provider's own
// error message when one was available.
type ResponseError struct {
	Provider string
	Upstream string
}

func (e *ResponseError) Error() string {
	if e.Upstream == "" {
		return fmt.Sprintf("provider %s returned a malformed response", e.Provider)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Upstream)
}
