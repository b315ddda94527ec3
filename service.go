// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package oscar

//go:generate go run -tags=tools golang.org/x/tools/cmd/stringer -type=ServiceType -linecomment

// ServiceType is the enumerated purpose of a connection within a session.
type ServiceType uint8

// The service connection types.
const (
	Auth    ServiceType = iota // auth
	BOS                        // bos
	ChatNav                    // chatnav
	Chat                       // chat
	Admin                      // admin
	Email                      // email
	Icon                       // icon
)

// Singleton reports whether at most one connection of this type may exist
// per session. Chat connections are keyed by room and may coexist.
func (s ServiceType) Singleton() bool {
	return s != Chat
}

// DefaultPort returns the port used when a redirect names a host without an
// explicit port.
func (s ServiceType) DefaultPort() uint16 {
	// Every OSCAR service historically listened on 5190; the constant is per
	// service so a deployment can be overridden in one place.
	return 5190
}

// Service group identifiers as they appear in redirect and service-request
// frames.
const (
	groupBOS     uint16 = 0x0001
	groupAdmin   uint16 = 0x0007
	groupChatNav uint16 = 0x000D
	groupChat    uint16 = 0x000E
	groupIcon    uint16 = 0x0010
	groupAuth    uint16 = 0x0017
	groupEmail   uint16 = 0x0018
)

// group returns the wire identifier used to request this service from the
// server.
func (s ServiceType) group() uint16 {
	switch s {
	case Auth:
		return groupAuth
	case BOS:
		return groupBOS
	case ChatNav:
		return groupChatNav
	case Chat:
		return groupChat
	case Admin:
		return groupAdmin
	case Email:
		return groupEmail
	case Icon:
		return groupIcon
	}
	return 0
}

// serviceForGroup resolves a redirect's service group identifier.
func serviceForGroup(g uint16) (ServiceType, bool) {
	switch g {
	case groupAuth:
		return Auth, true
	case groupBOS:
		return BOS, true
	case groupChatNav:
		return ChatNav, true
	case groupChat:
		return Chat, true
	case groupAdmin:
		return Admin, true
	case groupEmail:
		return Email, true
	case groupIcon:
		return Icon, true
	}
	return 0, false
}
