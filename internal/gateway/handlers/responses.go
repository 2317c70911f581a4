// Package handlers implements the gateway's HTTP endpoints.
package handlers

import (
	"net/http"

	"github.com/go-chi/render"
)

// ErrResponse is the uniform error body rendered by all handlers.
type ErrResponse struct {
	Err            error  `json:"-"`
	HTTPStatusCode int    `json:"-"`
	StatusText     string `json:"status"`
	ErrorText      string `json:"error,omitempty"`
}

// Render implements render.Renderer.
func (e *ErrResponse) Render(_ http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

// ErrBadRequest wraps a client error with a description.
func ErrBadRequest(err error, text string) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusBadRequest,
		StatusText:     text,
		ErrorText:      err.Error(),
	}
}

// ErrInternal wraps a server-side failure.
func ErrInternal(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusInternalServerError,
		StatusText:     "internal server error",
		ErrorText:      err.Error(),
	}
}

// ErrNotFound is the uniform 404 response.
var ErrNotFound render.Renderer = &ErrResponse{
	HTTPStatusCode: http.StatusNotFound,
	StatusText:     "resource not found",
}

// ErrForbidden is the uniform 403 response.
var ErrForbidden render.Renderer = &ErrResponse{
	HTTPStatusCode: http.StatusForbidden,
	StatusText:     "forbidden",
}

// ErrConflict wraps a state conflict such as cancelling a finished job.
func ErrConflict(text string) render.Renderer {
	return &ErrResponse{
		HTTPStatusCode: http.StatusConflict,
		StatusText:     text,
	}
}
