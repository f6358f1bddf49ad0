package middleware

import "net/http"

// Chain wraps a handler with the given middlewares so that the first one in
// the list runs first at request time.
func Chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
