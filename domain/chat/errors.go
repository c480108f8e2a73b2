package chat

import "fmt"

// MalformedRequestError is a client error detected by the request normalizer
// before any upstream call is made. It maps to a 4xx response.
type MalformedRequestError struct {
	Field  string
	Reason string
}

func (e *MalformedRequestError) Error() string {
	return fmt.Sprintf("malformed request: %s %s", e.Field, e.Reason)
}

// ProtocolError reports an upstream stream that violates the function-call
// delta contract, e.g. a second call opening while one is still accumulating.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("upstream protocol error: %s", e.Reason)
}
