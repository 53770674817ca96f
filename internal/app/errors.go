package app

import (
	"net/http"

	"rex/api/internal/store"
)

const (
	msgRoleRequired  = "You are not authorized to perform this action. Please contact your administrator for permission before trying again."
	msgScopeRequired = "Your client has not been granted permission to access this resource. Please request the necessary access scopes and try again."
	msgNoRoute       = "The method you have attempted to use is not supported by this resource."
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Code    int    `json:"code"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func newErrorResponse(err *store.Error) errorResponse {
	return errorResponse{
		Code:    err.Status,
		Error:   http.StatusText(err.Status),
		Message: err.Message,
	}
}

func parseError(what string) *store.Error {
	return store.BadRequest("The " + what + " you provided could not be parsed. Please check it and try again.")
}
