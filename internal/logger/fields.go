package logger

// Standard field keys used across ntlmgate log statements.
//
// Keeping these as constants avoids drift between the HTTP layer and the
// handshake core when filtering logs downstream.
const (
	KeyRequestID = "request_id"
	KeyClientIP  = "client_ip"
	KeyMethod    = "method"
	KeyPath      = "path"
	KeyStatus    = "status"
	KeyToken     = "state"
	KeyUser      = "user"
	KeyDomain    = "domain"
	KeyError     = "error"
)
