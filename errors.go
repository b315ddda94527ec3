// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package oscar

import (
	"errors"
	"fmt"
)

// Errors returned by the session plumbing.
var (
	// ErrCredentialUnavailable is reported when the credential resolver has
	// no usable secret for an account whose protocol requires one.
	ErrCredentialUnavailable = errors.New("oscar: no usable credential for account")

	// ErrDuplicateConnection is returned when a connection is requested for a
	// singleton service that already has a live or pending connection.
	ErrDuplicateConnection = errors.New("oscar: connection for service already exists")

	// ErrSessionClosed is returned by operations on a session that has been
	// torn down.
	ErrSessionClosed = errors.New("oscar: session is closed")

	// ErrNotConnected is returned when an operation needs a service
	// connection that does not exist.
	ErrNotConnected = errors.New("oscar: service not connected")

	// ErrNoCredential is reported by credential resolvers that have no entry
	// for the account.
	ErrNoCredential = errors.New("oscar: credential not found")
)

// AuthFailureReason classifies a terminal authentication failure.
type AuthFailureReason uint8

// Authentication failure reasons mapped from server error codes.
// Any code without an explicit mapping is reported as AuthFailed.
const (
	AuthFailed AuthFailureReason = iota
	IncorrectCredentials
	SuspendedAccount
	AuthRateLimited
	AuthServiceUnavailable
	ClientTooOld
)

// String returns the human readable reason forwarded to the notifier.
func (r AuthFailureReason) String() string {
	switch r {
	case IncorrectCredentials:
		return "incorrect screen name or password"
	case SuspendedAccount:
		return "account suspended"
	case AuthRateLimited:
		return "connecting too frequently, wait and try again"
	case AuthServiceUnavailable:
		return "authentication service unavailable"
	case ClientTooOld:
		return "client version too old"
	}
	return "authentication failed"
}

// AuthFailure is the terminal error produced when the authorizer rejects a
// login. No retry is attempted for any reason; the caller must start a new
// session explicitly.
type AuthFailure struct {
	Reason AuthFailureReason
	Code   uint16
}

// Error satisfies the error interface.
func (f *AuthFailure) Error() string {
	return fmt.Sprintf("oscar: %s (error 0x%04x)", f.Reason, f.Code)
}

// Is lets errors.Is match failures by reason: a target with zero Code
// matches any failure with the same reason.
func (f *AuthFailure) Is(target error) bool {
	t, ok := target.(*AuthFailure)
	if !ok {
		return false
	}
	if t.Code != 0 && t.Code != f.Code {
		return false
	}
	return t.Reason == f.Reason
}

// newAuthFailure maps a server error code from an authorization reply onto a
// reason. The mapping covers the codes the original client distinguished;
// everything else is the generic reason.
func newAuthFailure(code uint16) *AuthFailure {
	f := &AuthFailure{Code: code}
	switch code {
	case 0x0001, 0x0004, 0x0005:
		f.Reason = IncorrectCredentials
	case 0x0011:
		f.Reason = SuspendedAccount
	case 0x0014:
		f.Reason = AuthServiceUnavailable
	case 0x0018, 0x001D:
		f.Reason = AuthRateLimited
	case 0x001C:
		f.Reason = ClientTooOld
	default:
		f.Reason = AuthFailed
	}
	return f
}
