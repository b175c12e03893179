package remote

import "fmt"

// TransportError reports a failure to reach the remote service or a non-2xx
// HTTP response: the request never produced a usable business payload.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// RemoteRejectedError reports that the remote was reachable and answered,
// but its payload carries a business error code.
type RemoteRejectedError struct {
	Op   string
	Code int
	Msg  string
}

func (e *RemoteRejectedError) Error() string {
	return fmt.Sprintf("%s: remote rejected (code %d): %s", e.Op, e.Code, e.Msg)
}
