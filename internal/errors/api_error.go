package errors

// APIError is the failure envelope every route returns. The mobile and web
// clients key off the success flag, so it is always present and false here.
type APIError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// NewAPIError creates a new APIError with the given message.
func NewAPIError(message string) *APIError {
	return &APIError{
		Success: false,
		Error:   message,
	}
}
