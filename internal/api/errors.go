package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sublarr/sublarr/internal/errkind"
	"github.com/sublarr/sublarr/internal/store"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// respondError maps the error taxonomy onto HTTP statuses: bad input is
// 400, missing rows 404, claim races 409, upstream trouble 502, and
// everything untagged 500.
func respondError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrClaimLost):
		status = http.StatusConflict
	default:
		switch errkind.Classify(err) {
		case errkind.Configuration, errkind.ContentInvalid:
			status = http.StatusBadRequest
		case errkind.Contention:
			status = http.StatusConflict
		case errkind.TransientExternal, errkind.PermanentExternal:
			status = http.StatusBadGateway
		}
	}
	return c.JSON(status, errorBody{Error: err.Error(), Kind: errkind.Classify(err).String()})
}

func badRequest(c echo.Context, format string, args ...any) error {
	return respondError(c, errkind.Newf(errkind.Configuration, format, args...))
}
