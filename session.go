// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package oscar

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mellium.im/oscar/flap"
	"mellium.im/oscar/mux"
	"mellium.im/oscar/rendezvous"
	"mellium.im/oscar/screenname"
	"mellium.im/oscar/snac"
	"mellium.im/oscar/tlv"
)

// negotiateTimeout bounds each synchronous negotiation step of a new service
// connection.
const negotiateTimeout = 30 * time.Second

// A Session is one logical login: the set of service connections, the buddy
// presence table, and the peer to peer channels that share a single
// authentication.
//
// All inbound traffic is dispatched on one goroutine per session, in arrival
// order per connection. Public methods are safe for concurrent use; they
// forward work to the dispatch goroutine and wait for the result.
type Session struct {
	account  screenname.Name
	registry *Registry
	notifier Notifier
	logger   *slog.Logger
	dialer   *Dialer
	resolver CredentialResolver
	cache    Cache
	clientID string
	authAddr string

	loopc     chan func()
	done      chan struct{}
	closeOnce sync.Once

	stateMu sync.Mutex
	state   SessionState

	// Everything below is owned by the dispatch goroutine.
	conns        map[connKey]*Conn
	pendingOpen  map[connKey]bool
	buddies      map[string]BuddyInfo
	pendingRooms []string
	pendingJoins []ChatRoom
	pendingSvcs  []ServiceType
	rdv          *rendezvous.Manager
	loginCookie  []byte

	reqID atomic.Uint32
}

func newSession(r *Registry, account screenname.Name) *Session {
	sess := &Session{
		account:     account,
		registry:    r,
		notifier:    r.cfg.Notifier,
		logger:      r.cfg.Logger.With("account", account.Norm()),
		dialer:      r.cfg.Dialer,
		resolver:    r.cfg.Credentials,
		cache:       r.cfg.Cache,
		clientID:    r.cfg.ClientID,
		authAddr:    r.cfg.AuthAddr,
		loopc:       make(chan func()),
		done:        make(chan struct{}),
		state:       Connecting,
		conns:       make(map[connKey]*Conn),
		pendingOpen: make(map[connKey]bool),
		buddies:     make(map[string]BuddyInfo),
	}
	sess.rdv = rendezvous.NewManager(rendezvous.Config{
		Announce:   sess.announceRendezvous,
		Consent:    sess.notifier.Consent,
		Notify:     sess.notifier.Rendezvous,
		ListenAddr: r.cfg.RendezvousAddr,
		Logger:     sess.logger,
	})
	return sess
}

// Account returns the screen name this session was started for.
func (sess *Session) Account() screenname.Name {
	return sess.account
}

// State returns the session's lifecycle state.
func (sess *Session) State() SessionState {
	sess.stateMu.Lock()
	defer sess.stateMu.Unlock()
	return sess.state
}

func (sess *Session) setState(state SessionState, reason error) {
	sess.stateMu.Lock()
	sess.state = state
	sess.stateMu.Unlock()
	sess.notifier.StateChange(state, reason)
}

// post hands f to the dispatch goroutine. It reports false once the session
// is closed.
func (sess *Session) post(f func()) bool {
	select {
	case sess.loopc <- f:
		return true
	case <-sess.done:
		return false
	}
}

// do runs f on the dispatch goroutine and waits for its result.
func (sess *Session) do(f func() error) error {
	errc := make(chan error, 1)
	if !sess.post(func() { errc <- f() }) {
		return ErrSessionClosed
	}
	select {
	case err := <-errc:
		return err
	case <-sess.done:
		return ErrSessionClosed
	}
}

// run is the dispatch goroutine.
func (sess *Session) run() {
	for {
		select {
		case f := <-sess.loopc:
			f()
		case <-sess.done:
			return
		}
	}
}

// nextReqID returns a fresh SNAC request id. Request ids are session scoped
// and issued from negotiation goroutines as well as the dispatch goroutine.
func (sess *Session) nextReqID() uint32 {
	return sess.reqID.Add(1)
}

// start kicks off the asynchronous credential lookup. The resolver runs on
// its own goroutine so a resolver that answers synchronously cannot deadlock
// the dispatch loop; nothing connects until the secret is in hand.
func (sess *Session) start(ctx context.Context) {
	go sess.resolver.Resolve(ctx, sess.account.Norm(), func(secret string, err error) {
		sess.post(func() { sess.credentialResolved(secret, err) })
	})
}

func (sess *Session) credentialResolved(secret string, err error) {
	if err != nil {
		if errors.Is(err, ErrNoCredential) {
			err = ErrCredentialUnavailable
		}
		sess.teardown(err)
		return
	}
	sess.setState(Authenticating, nil)

	key := connKey{svc: Auth}
	sess.pendingOpen[key] = true
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), negotiateTimeout)
		defer cancel()
		nc, err := sess.dialer.DialService(ctx, Auth, sess.authAddr)
		if err != nil {
			sess.post(func() { sess.authDone("", nil, err) })
			return
		}
		c := newConn(sess, Auth, nc)
		bosAddr, cookie, err := c.negotiateAuth(sess.account.String(), secret, sess.clientID, time.Now().Add(negotiateTimeout))
		c.close()
		sess.post(func() { sess.authDone(bosAddr, cookie, err) })
	}()
}

func (sess *Session) authDone(bosAddr string, cookie []byte, err error) {
	delete(sess.pendingOpen, connKey{svc: Auth})
	if err != nil {
		sess.teardown(err)
		return
	}
	sess.loginCookie = cookie
	if err := sess.openConn(BOS, bosAddr, cookie, nil); err != nil {
		sess.teardown(err)
	}
}

// openConn dials and negotiates a service connection off the dispatch
// goroutine, then installs it. Loop goroutine only.
func (sess *Session) openConn(svc ServiceType, addr string, cookie []byte, room *ChatRoom) error {
	key := connKey{svc: svc}
	if room != nil {
		key.room = room.cookie
	}
	if svc.Singleton() || room != nil {
		if _, ok := sess.conns[key]; ok || sess.pendingOpen[key] {
			return ErrDuplicateConnection
		}
	}
	sess.pendingOpen[key] = true
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), negotiateTimeout)
		defer cancel()
		nc, err := sess.dialer.DialService(ctx, svc, addr)
		if err != nil {
			sess.post(func() { sess.serviceOpened(nil, key, room, err) })
			return
		}
		c := newConn(sess, svc, nc)
		c.key = key
		c.room = room
		err = c.negotiateService(cookie, time.Now().Add(negotiateTimeout))
		if err != nil {
			c.close()
			c = nil
		}
		if !sess.post(func() { sess.serviceOpened(c, key, room, err) }) && c != nil {
			// The session tore down while we negotiated.
			c.close()
		}
	}()
	return nil
}

// serviceOpened installs a freshly negotiated connection. Loop goroutine
// only.
func (sess *Session) serviceOpened(c *Conn, key connKey, room *ChatRoom, err error) {
	delete(sess.pendingOpen, key)
	if err != nil {
		if key.svc == BOS {
			sess.teardown(err)
			return
		}
		sess.logger.Debug("service connection failed", "service", key.svc, "err", err)
		return
	}
	c.mux = sess.buildMux(c)
	sess.conns[key] = c
	go c.readLoop()

	switch key.svc {
	case BOS:
		if err := sess.advertiseCaps(c); err != nil {
			sess.logger.Debug("capability advertisement failed", "err", err)
		}
		sess.setState(Online, nil)
	case ChatNav:
		sess.drainPendingRooms(c)
	case Chat:
		sess.notifier.ChatJoined(*room)
	}
}

// advertiseCaps publishes this client's peer to peer capabilities so buddies
// know direct IM, file transfer, and chat invitations will be understood.
func (sess *Session) advertiseCaps(c *Conn) error {
	caps := marshalCaps(CapChat | CapDirectIM | CapSendFile)
	body := tlv.Append(nil, locateTLVCaps, caps)
	return c.WriteSNAC(snac.Header{
		Family:    snac.FamLocate,
		Subtype:   snac.LocateSetInfo,
		RequestID: sess.nextReqID(),
	}, body)
}

// buildMux wires the handler table for one service connection.
func (sess *Session) buildMux(c *Conn) *mux.ServeMux {
	opts := []mux.Option{
		mux.HandleFunc(snac.FamOService, snac.OServiceRateChange, func(_ mux.ResponseWriter, s *snac.SNAC) error {
			return c.applyRateChange(s.Body)
		}),
		mux.HandleFunc(snac.FamOService, snac.OServiceMOTD, func(_ mux.ResponseWriter, _ *snac.SNAC) error {
			return nil
		}),
	}
	switch c.svc {
	case BOS:
		opts = append(opts,
			mux.HandleFunc(snac.FamOService, snac.OServiceRedirect, func(_ mux.ResponseWriter, s *snac.SNAC) error {
				return sess.handleRedirect(s)
			}),
			mux.Buddy(mux.HandlerFunc(func(_ mux.ResponseWriter, s *snac.SNAC) error {
				return sess.handleBuddyNotification(s)
			})),
			mux.ICBM(mux.HandlerFunc(func(_ mux.ResponseWriter, s *snac.SNAC) error {
				if s.Subtype == snac.ICBMTyping {
					return sess.handleTyping(s)
				}
				return sess.handleIncomingICBM(s)
			})),
		)
	case ChatNav:
		opts = append(opts,
			mux.HandleFunc(snac.FamChatNav, snac.ChatNavInfoReply, func(_ mux.ResponseWriter, s *snac.SNAC) error {
				return sess.handleChatNavInfo(s)
			}),
		)
	case Chat:
		opts = append(opts,
			mux.HandleFunc(snac.FamChat, snac.ChatChannelMsg, func(_ mux.ResponseWriter, s *snac.SNAC) error {
				return c.handleChatMessage(s)
			}),
			mux.HandleFunc(snac.FamChat, snac.ChatUsersJoined, func(_ mux.ResponseWriter, s *snac.SNAC) error {
				return c.handleChatRoster(s, true)
			}),
			mux.HandleFunc(snac.FamChat, snac.ChatUsersLeft, func(_ mux.ResponseWriter, s *snac.SNAC) error {
				return c.handleChatRoster(s, false)
			}),
		)
	}
	return mux.New(opts...)
}

// handleRedirect opens the connection a SNAC(1,5) redirect points at.
// Chat redirects are correlated to pending joins in request order.
func (sess *Session) handleRedirect(s *snac.SNAC) error {
	l, err := tlv.Decode(s.Body)
	if err != nil {
		return err
	}
	group, ok := l.Uint16(snac.TLVServiceID)
	if !ok {
		return errors.New("oscar: redirect without service id")
	}
	host := l.String(snac.TLVReconnectTo)
	cookie, ok := l.Get(snac.TLVAuthCookie)
	if host == "" || !ok {
		return errors.New("oscar: redirect without host or cookie")
	}

	if group == groupChat {
		if len(sess.pendingJoins) == 0 {
			return errors.New("oscar: chat redirect with no pending join")
		}
		room := sess.pendingJoins[0]
		sess.pendingJoins = sess.pendingJoins[1:]
		return sess.openConn(Chat, host, cookie, &room)
	}
	svc, ok := serviceForGroup(group)
	if !ok {
		sess.logger.Debug("redirect for unknown service group", "group", group)
		return nil
	}
	for i, pending := range sess.pendingSvcs {
		if pending == svc {
			sess.pendingSvcs = append(sess.pendingSvcs[:i], sess.pendingSvcs[i+1:]...)
			break
		}
	}
	delete(sess.pendingOpen, connKey{svc: svc})
	return sess.openConn(svc, host, cookie, nil)
}

// handleBuddyNotification folds a SNAC(3,0xB) arrival or SNAC(3,0xC)
// departure into the presence table and notifies.
func (sess *Session) handleBuddyNotification(s *snac.SNAC) error {
	info, _, err := parseUserInfo(s.Body)
	if err != nil {
		return err
	}
	info.Online = s.Subtype == snac.BuddyArrived
	if info.Online && len(info.IconChecksum) > 0 && sess.cache != nil {
		key := iconCacheKey(info.Name)
		if cached, ok := sess.cache.Get(key); ok && string(cached) == string(info.IconChecksum) {
			// Icon unchanged since it was last fetched.
			info.IconRequested = true
		} else {
			sess.cache.Set(key, info.IconChecksum)
		}
	}
	if info.Online {
		sess.buddies[info.Name.Norm()] = info
	} else {
		delete(sess.buddies, info.Name.Norm())
	}
	sess.notifier.Presence(info)
	return nil
}

// requestService asks the server for a redirect to an additional service.
// Loop goroutine only.
func (sess *Session) requestService(svc ServiceType) error {
	switch svc {
	case Auth, BOS, Chat:
		return errors.New("oscar: service cannot be requested directly")
	}
	key := connKey{svc: svc}
	if _, ok := sess.conns[key]; ok {
		return ErrDuplicateConnection
	}
	awaiting := false
	for _, pending := range sess.pendingSvcs {
		if pending == svc {
			awaiting = true
			break
		}
	}
	// pendingOpen without a queued redirect wait means a dial is already in
	// flight; a request still waiting on a redirect may be re-sent, since
	// the server is free to drop the first one.
	if sess.pendingOpen[key] && !awaiting {
		return ErrDuplicateConnection
	}
	c, ok := sess.conns[connKey{svc: BOS}]
	if !ok {
		return ErrNotConnected
	}
	body := binary.BigEndian.AppendUint16(nil, svc.group())
	if err := c.WriteSNAC(snac.Header{
		Family:    snac.FamOService,
		Subtype:   snac.OServiceServiceRequest,
		RequestID: sess.nextReqID(),
	}, body); err != nil {
		return err
	}
	sess.pendingOpen[key] = true
	if !awaiting {
		sess.pendingSvcs = append(sess.pendingSvcs, svc)
	}
	return nil
}

// connClosed handles a connection failing or being closed by the server.
// Loop goroutine only. Losing the primary connection (or the authorizer
// mid-login) ends the session; losing an auxiliary service does not.
func (sess *Session) connClosed(c *Conn, err error) {
	if c.closed {
		return
	}
	c.close()
	delete(sess.conns, c.key)
	switch c.svc {
	case BOS, Auth:
		if sess.State() != Disconnecting {
			sess.teardown(err)
		}
	default:
		sess.logger.Debug("service connection closed", "service", c.svc, "err", err)
	}
}

// teardown ends the session: every connection is closed, peer channels are
// cancelled, and exactly one terminal state change is delivered. Safe to
// call repeatedly; only the first call has any effect. Loop goroutine only.
func (sess *Session) teardown(reason error) {
	if sess.State() >= Disconnecting {
		return
	}
	sess.setState(Disconnecting, nil)
	for key, c := range sess.conns {
		// Best effort polite sign-off; the close is what matters.
		_ = c.writeFrame(flap.SignOff, nil)
		c.close()
		delete(sess.conns, key)
	}
	sess.rdv.CloseAll()
	sess.registry.remove(sess)
	sess.setState(Disconnected, reason)
	sess.closeOnce.Do(func() { close(sess.done) })
}

// End closes the session deliberately. Ending an already closed session is a
// no-op.
func (sess *Session) End() error {
	err := sess.do(func() error {
		sess.teardown(nil)
		return nil
	})
	if errors.Is(err, ErrSessionClosed) {
		return nil
	}
	return err
}

// SendIM sends an instant message to a buddy over the primary connection.
func (sess *Session) SendIM(peer screenname.Name, text string) error {
	return sess.do(func() error { return sess.sendIM(peer, text) })
}

// SendTyping sends a typing started or stopped notification to a buddy.
func (sess *Session) SendTyping(peer screenname.Name, typing bool) error {
	return sess.do(func() error { return sess.sendTyping(peer, typing) })
}

// SendKeepalive writes a keepalive frame on the primary connection.
func (sess *Session) SendKeepalive() error {
	return sess.do(func() error {
		c, ok := sess.conns[connKey{svc: BOS}]
		if !ok {
			return ErrNotConnected
		}
		return c.writeFrame(flap.KeepAlive, nil)
	})
}

// JoinChat joins (creating if necessary) the named chat room on the public
// exchange. The join is asynchronous; the notifier's ChatJoined fires when
// the room's connection is ready.
func (sess *Session) JoinChat(name string) error {
	return sess.do(func() error { return sess.joinChat(name) })
}

// SendChatMessage sends a message to a joined chat room.
func (sess *Session) SendChatMessage(room ChatRoom, text string) error {
	return sess.do(func() error { return sess.sendChatMessage(room, text) })
}

// RequestService asks the server for a connection to an auxiliary service
// such as the buddy icon or email service. The connection opens
// asynchronously when the redirect arrives.
func (sess *Session) RequestService(svc ServiceType) error {
	return sess.do(func() error { return sess.requestService(svc) })
}

// ProposeDirectIM offers a peer a direct IM channel.
func (sess *Session) ProposeDirectIM(peer screenname.Name) (*rendezvous.Session, error) {
	var rs *rendezvous.Session
	err := sess.do(func() error {
		var err error
		rs, err = sess.rdv.Propose(peer, rendezvous.DirectIM)
		return err
	})
	return rs, err
}

// ProposeFile offers a peer a file over a new transfer channel.
func (sess *Session) ProposeFile(peer screenname.Name, name string, size uint64) (*rendezvous.Session, error) {
	var rs *rendezvous.Session
	err := sess.do(func() error {
		var err error
		rs, err = sess.rdv.ProposeFile(peer, name, size)
		return err
	})
	return rs, err
}

// CancelRendezvous cancels a peer channel by cookie. Unknown and already
// cancelled cookies are a no-op.
func (sess *Session) CancelRendezvous(cookie rendezvous.Cookie) error {
	return sess.do(func() error { return sess.rdv.Cancel(cookie) })
}

// Buddies returns a snapshot of the online buddies.
func (sess *Session) Buddies() []BuddyInfo {
	var out []BuddyInfo
	_ = sess.do(func() error {
		out = make([]BuddyInfo, 0, len(sess.buddies))
		for _, b := range sess.buddies {
			out = append(out, b)
		}
		return nil
	})
	return out
}

// writeBOS writes a SNAC on the primary connection. Loop goroutine only.
func (sess *Session) writeBOS(h snac.Header, body []byte) error {
	c, ok := sess.conns[connKey{svc: BOS}]
	if !ok {
		return ErrNotConnected
	}
	return c.WriteSNAC(h, body)
}
