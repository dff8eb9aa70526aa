package apikeys

import (
	"context"
)

// HTTPFramework is the request/response surface the middleware stages need.
// Implementations exist for net/http (gorilla/mux) and Fiber, so every stage
// is written once. r and w are the framework's native request and response.
type HTTPFramework interface {
	GetRequestHeader(r interface{}, key string) string
	GetRequestParam(r interface{}, key string) string
	GetRequestPath(r interface{}) string
	GetRequestMethod(r interface{}) string
	GetRequestContext(r interface{}) context.Context

	// SetRequestContext replaces the request context so later stages and the
	// handler observe values attached by earlier stages.
	SetRequestContext(r interface{}, ctx context.Context)

	ReadBody(r interface{}) ([]byte, error)
	SetResponseHeader(w interface{}, key, value string)
	WriteJSON(w interface{}, status int, body interface{}) error
}
