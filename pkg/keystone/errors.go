// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package keystone

import "fmt"

// StatusCode classifies authentication failures
type StatusCode int

const (
	// StatusOK means no error
	StatusOK StatusCode = iota
	// StatusMissingCredentials means that the request lacked usable credentials (empty fields, unknown region)
	StatusMissingCredentials
	// StatusWrongCredentials means that the identity service rejected the credentials
	StatusWrongCredentials
	// StatusNoPermission means that the user is not authorized for any (or the requested) project
	StatusNoPermission
	// StatusNotAvailable means that the identity service could not be used
	StatusNotAvailable
)

func (c StatusCode) String() string {
	switch c {
	case StatusOK:
		return "ok"
	case StatusMissingCredentials:
		return "missing credentials"
	case StatusWrongCredentials:
		return "wrong credentials"
	case StatusNoPermission:
		return "no permission"
	case StatusNotAvailable:
		return "not available"
	default:
		return fmt.Sprintf("status(%d)", int(c))
	}
}

// AuthenticationError extends the error interface with a status code
type AuthenticationError interface {
	error
	StatusCode() StatusCode
}

type authenticationError struct {
	msg        string
	statusCode StatusCode
}

// NewAuthenticationError creates a new error instance
func NewAuthenticationError(statusCode StatusCode, format string, args ...any) AuthenticationError {
	return &authenticationError{msg: fmt.Sprintf(format, args...), statusCode: statusCode}
}

func (e *authenticationError) Error() string {
	return e.msg
}

func (e *authenticationError) StatusCode() StatusCode {
	return e.statusCode
}
