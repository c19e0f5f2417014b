// Package apperror defines the client-safe error taxonomy returned by HTTP
// handlers and middleware.
//
// Every failure a client is allowed to see is an *Error carrying an explicit
// status code. The API error boundary recognises these through wrapping with
// As and writes Serialize() as the response body. Any other error is treated
// as unexpected: it is logged server-side and answered with a generic 500.
//
// Usage:
//
//	if v == nil {
//	    return apperror.NotFound("value not found", "value.GetByID")
//	}
package apperror
