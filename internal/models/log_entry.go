package models

// RequestInfo stores context about the HTTP request that triggered a log entry.
type RequestInfo struct {
	Method     string `json:"method"`
	Path       string `json:"path"`
	RemoteAddr string `json:"remote_addr"`
	UserAgent  string `json:"user_agent"`
}

// ErrorInfo is the structured error shape used in logs, task state and API
// responses. Kind classifies the error (for example "unknown_request_type",
// "handler_execution_error", "graph_node_error"); Message is human readable.
// Raw stack traces are never carried here.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Error implements the error interface so an ErrorInfo can be returned
// directly where convenient.
func (e ErrorInfo) Error() string {
	if e.Kind == "" {
		return e.Message
	}
	return e.Kind + ": " + e.Message
}
