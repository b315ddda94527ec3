// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package snac

// SNAC families (foodgroups).
const (
	FamOService uint16 = 0x0001
	FamLocate   uint16 = 0x0002
	FamBuddy    uint16 = 0x0003
	FamICBM     uint16 = 0x0004
	FamAdmin    uint16 = 0x0007
	FamChatNav  uint16 = 0x000D
	FamChat     uint16 = 0x000E
	FamBART     uint16 = 0x0010
	FamBUCP     uint16 = 0x0017
	FamEmail    uint16 = 0x0018
)

// OService subtypes.
const (
	OServiceErr            uint16 = 0x0001
	OServiceClientReady    uint16 = 0x0002
	OServiceHostReady      uint16 = 0x0003
	OServiceServiceRequest uint16 = 0x0004
	OServiceRedirect       uint16 = 0x0005
	OServiceRateRequest    uint16 = 0x0006
	OServiceRateParams     uint16 = 0x0007
	OServiceRateAck        uint16 = 0x0008
	OServiceRateChange     uint16 = 0x000A
	OServiceMOTD           uint16 = 0x0013
)

// BUCP (authorization) subtypes.
const (
	BUCPErr            uint16 = 0x0001
	BUCPLoginRequest   uint16 = 0x0002
	BUCPLoginReply     uint16 = 0x0003
	BUCPChallengeReq   uint16 = 0x0006
	BUCPChallengeReply uint16 = 0x0007
)

// Locate subtypes.
const (
	LocateSetInfo uint16 = 0x0004
)

// Buddy subtypes.
const (
	BuddyArrived  uint16 = 0x000B
	BuddyDeparted uint16 = 0x000C
)

// ICBM subtypes.
const (
	ICBMErr      uint16 = 0x0001
	ICBMOutgoing uint16 = 0x0006
	ICBMIncoming uint16 = 0x0007
	ICBMEvil     uint16 = 0x0009
	ICBMTyping   uint16 = 0x0014
)

// ChatNav subtypes.
const (
	ChatNavErr           uint16 = 0x0001
	ChatNavRightsRequest uint16 = 0x0002
	ChatNavCreateRoom    uint16 = 0x0008
	ChatNavInfoReply     uint16 = 0x0009
)

// Chat subtypes.
const (
	ChatRoomInfoUpdate uint16 = 0x0002
	ChatUsersJoined    uint16 = 0x0003
	ChatUsersLeft      uint16 = 0x0004
	ChatChannelMsg     uint16 = 0x0006
)

// TLV types shared by the connection plumbing.
const (
	TLVScreenName  uint16 = 0x0001
	TLVClientID    uint16 = 0x0003
	TLVReconnectTo uint16 = 0x0005
	TLVAuthCookie  uint16 = 0x0006
	TLVErrorCode   uint16 = 0x0008
	TLVServiceID   uint16 = 0x000D
	TLVPasswordMD5 uint16 = 0x0025
)
