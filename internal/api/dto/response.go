package dto

// Response statuses.
const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// Envelope wraps every JSON response.
type Envelope struct {
	Status string     `json:"status"`
	Data   any        `json:"data,omitempty"`
	Error  *ErrorBody `json:"error,omitempty"`
}

// ErrorBody is the public part of a failed request.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// OK wraps data in a success envelope.
func OK(data any) Envelope {
	return Envelope{Status: StatusOK, Data: data}
}

// Failure builds an error envelope.
func Failure(code, message string, details map[string]any) Envelope {
	return Envelope{Status: StatusError, Error: &ErrorBody{Code: code, Message: message, Details: details}}
}
