// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package oscar

import (
	"encoding/binary"
	"fmt"

	"mellium.im/oscar/rendezvous"
	"mellium.im/oscar/snac"
	"mellium.im/oscar/tlv"
)

// chatExchange is the public chat exchange rooms are created on.
const chatExchange uint16 = 0x0004

// TLV types used by chat navigation and chat rooms.
const (
	chatTLVRoomInfo   uint16 = 0x0004
	chatTLVSender     uint16 = 0x0003
	chatTLVMessage    uint16 = 0x0005
	chatTLVMessageTxt uint16 = 0x0001
	chatTLVReflect    uint16 = 0x0006
	chatNavTLVName    uint16 = 0x00D3
)

// A ChatRoom identifies one chat room: the human readable name plus the
// exchange and instance the server assigned when the room was created.
type ChatRoom struct {
	Name     string
	Exchange uint16
	Instance uint16

	// cookie is the server's room identifier, used to request the room's
	// dedicated service connection and to key the connection in the session.
	cookie string
}

// joinChat starts the multi step join: make sure a chat navigation
// connection exists, then ask it to create (or look up) the room. Requests
// made before chat navigation is ready queue in order. Loop goroutine only.
func (sess *Session) joinChat(name string) error {
	if c, ok := sess.conns[connKey{svc: ChatNav}]; ok {
		return sess.sendCreateRoom(c, name)
	}
	sess.pendingRooms = append(sess.pendingRooms, name)
	if sess.pendingOpen[connKey{svc: ChatNav}] {
		return nil
	}
	return sess.requestService(ChatNav)
}

// drainPendingRooms sends the queued create requests once chat navigation is
// ready, preserving request order.
func (sess *Session) drainPendingRooms(c *Conn) {
	rooms := sess.pendingRooms
	sess.pendingRooms = nil
	for _, name := range rooms {
		if err := sess.sendCreateRoom(c, name); err != nil {
			sess.logger.Debug("chat room create failed", "room", name, "err", err)
		}
	}
}

// sendCreateRoom writes SNAC(0xD,8) on the chat navigation connection. The
// server replies with the room's cookie and instance, which arrive in
// handleChatNavInfo.
func (sess *Session) sendCreateRoom(c *Conn, name string) error {
	const createCookie = "create"
	b := binary.BigEndian.AppendUint16(nil, chatExchange)
	b = append(b, byte(len(createCookie)))
	b = append(b, createCookie...)
	b = binary.BigEndian.AppendUint16(b, 0xFFFF) // instance: any
	b = append(b, 0x01)                          // detail level
	b = binary.BigEndian.AppendUint16(b, 0x0001) // tlv count
	b = tlv.AppendString(b, chatNavTLVName, name)
	return c.WriteSNAC(snac.Header{
		Family:    snac.FamChatNav,
		Subtype:   snac.ChatNavCreateRoom,
		RequestID: sess.nextReqID(),
	}, b)
}

// handleChatNavInfo processes the create reply SNAC(0xD,9), extracts the
// room identity, and asks the primary connection for a chat service redirect
// for that room.
func (sess *Session) handleChatNavInfo(s *snac.SNAC) error {
	l, err := tlv.Decode(s.Body)
	if err != nil {
		return err
	}
	v, ok := l.Get(chatTLVRoomInfo)
	if !ok {
		return fmt.Errorf("oscar: chat info reply without room block")
	}
	room, err := parseRoomInfo(v)
	if err != nil {
		return err
	}
	return sess.requestChatService(room)
}

// parseRoomInfo decodes a room info block: exchange, length prefixed cookie,
// instance, detail level, and a counted TLV list carrying the display name.
func parseRoomInfo(v []byte) (ChatRoom, error) {
	var room ChatRoom
	if len(v) < 3 {
		return room, fmt.Errorf("oscar: short room info")
	}
	room.Exchange = binary.BigEndian.Uint16(v[0:2])
	n := int(v[2])
	if len(v) < 3+n+5 {
		return room, fmt.Errorf("oscar: truncated room info")
	}
	room.cookie = string(v[3 : 3+n])
	v = v[3+n:]
	room.Instance = binary.BigEndian.Uint16(v[0:2])
	count := int(binary.BigEndian.Uint16(v[3:5]))
	v = v[5:]
	for i := 0; i < count && len(v) >= 4; i++ {
		t := binary.BigEndian.Uint16(v[0:2])
		vn := int(binary.BigEndian.Uint16(v[2:4]))
		if len(v) < 4+vn {
			break
		}
		if t == chatNavTLVName {
			room.Name = string(v[4 : 4+vn])
		}
		v = v[4+vn:]
	}
	if room.Name == "" {
		room.Name = room.cookie
	}
	return room, nil
}

// requestChatService sends SNAC(1,4) on the primary connection asking for a
// redirect to the room's chat service. The redirect arrives asynchronously;
// rooms are correlated to redirects in order.
func (sess *Session) requestChatService(room ChatRoom) error {
	c, ok := sess.conns[connKey{svc: BOS}]
	if !ok {
		return ErrNotConnected
	}
	b := binary.BigEndian.AppendUint16(nil, groupChat)
	info := binary.BigEndian.AppendUint16(nil, room.Exchange)
	info = append(info, byte(len(room.cookie)))
	info = append(info, room.cookie...)
	info = binary.BigEndian.AppendUint16(info, room.Instance)
	b = tlv.Append(b, 0x0001, info)
	if err := c.WriteSNAC(snac.Header{
		Family:    snac.FamOService,
		Subtype:   snac.OServiceServiceRequest,
		RequestID: sess.nextReqID(),
	}, b); err != nil {
		return err
	}
	sess.pendingJoins = append(sess.pendingJoins, room)
	return nil
}

// handleChatMessage processes SNAC(0xE,6) on a chat room connection: the
// sender's user info and the message block ride in TLVs beside the cookie
// and channel.
func (c *Conn) handleChatMessage(s *snac.SNAC) error {
	if c.room == nil {
		return fmt.Errorf("oscar: chat message on non-chat connection")
	}
	if len(s.Body) < 10 {
		return fmt.Errorf("oscar: short chat message")
	}
	l, err := tlv.Decode(s.Body[10:])
	if err != nil {
		return err
	}
	sv, ok := l.Get(chatTLVSender)
	if !ok {
		return fmt.Errorf("oscar: chat message without sender")
	}
	sender, _, err := parseUserInfo(sv)
	if err != nil {
		return err
	}
	mv, ok := l.Get(chatTLVMessage)
	if !ok {
		return fmt.Errorf("oscar: chat message without message block")
	}
	ml, err := tlv.Decode(mv)
	if err != nil {
		return err
	}
	text, ok := ml.Get(chatTLVMessageTxt)
	if !ok {
		return fmt.Errorf("oscar: chat message without text")
	}
	c.sess.notifier.ChatMessage(*c.room, sender.Name, string(text))
	return nil
}

// sendChatMessage writes a message to a joined room. Loop goroutine only.
func (sess *Session) sendChatMessage(room ChatRoom, text string) error {
	c, ok := sess.conns[connKey{svc: Chat, room: room.cookie}]
	if !ok {
		return ErrNotConnected
	}
	cookie, err := rendezvous.NewCookie()
	if err != nil {
		return err
	}
	b := append([]byte(nil), cookie[:]...)
	b = binary.BigEndian.AppendUint16(b, 0x0003) // public room channel
	b = tlv.Append(b, chatTLVReflect, nil)
	msg := tlv.AppendString(nil, chatTLVMessageTxt, text)
	b = tlv.Append(b, chatTLVMessage, msg)
	return c.WriteSNAC(snac.Header{
		Family:    snac.FamChat,
		Subtype:   snac.ChatChannelMsg,
		RequestID: sess.nextReqID(),
	}, b)
}

// handleChatRoster processes the joined and left notifications a chat
// connection receives. The payloads are back to back user info blocks.
func (c *Conn) handleChatRoster(s *snac.SNAC, online bool) error {
	b := s.Body
	for len(b) > 0 {
		info, rest, err := parseUserInfo(b)
		if err != nil {
			return err
		}
		info.Online = online
		c.sess.notifier.Presence(info)
		b = rest
	}
	return nil
}
