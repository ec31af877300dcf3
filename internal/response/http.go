// Package response holds the JSON envelopes returned by the HTTP API.
package response

type APIResponse[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Count   *int   `json:"count,omitempty"`
	Data    T      `json:"data"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// OK wraps data in a successful response.
func OK[T any](data T, message string) *APIResponse[T] {
	return &APIResponse[T]{Success: true, Message: message, Data: data}
}

// List is OK for slices. It also reports the number of elements, and a nil
// slice is sent as an empty array.
func List[T any](data []T, message string) *APIResponse[[]T] {
	if data == nil {
		data = []T{}
	}
	n := len(data)
	return &APIResponse[[]T]{Success: true, Message: message, Count: &n, Data: data}
}
