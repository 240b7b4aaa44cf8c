package chat

import (
	"sync"
	"time"

	"SuperChat/logger"
	"SuperChat/tools/errs"
	"SuperChat/tools/safe"
	"SuperChat/tools/security"

	"github.com/gorilla/websocket"
)

// WsConn is one websocket session. A user may hold several at a time; each
// gets its own snowflake id, send queue and write pump.
type WsConn struct {
	SnowID     string
	UserID     string
	Authorized bool
	Identity   *security.Identity
	Token      string

	Conn     *websocket.Conn
	SendChan chan []byte

	CreatedAt time.Time
	UpdatedAt time.Time
	Heartbeat time.Time
	TTL       time.Duration
	ExpireAt  time.Time

	closeOnce sync.Once
	done      chan struct{}
}

func (w *WsConn) markClosed() {
	w.closeOnce.Do(func() { close(w.done) })
}

type ManagerConf struct {
	UnauthTTL     time.Duration // grace window before an unauthenticated session is swept
	AuthTTL       time.Duration // idle lifetime of an authenticated session, refreshed by heartbeat
	SweepEvery    time.Duration
	MaxPerUser    int
	SendQueueSize int
	PingInterval  time.Duration
	WriteWait     time.Duration

	// OnUserOnline fires when a user gains their first local session,
	// OnUserOffline when the last one goes away.
	OnUserOnline  func(userID string)
	OnUserOffline func(userID string)

	Clock func() time.Time
}

func (c *ManagerConf) norm() {
	if c.UnauthTTL <= 0 {
		c.UnauthTTL = 60 * time.Second
	}
	if c.AuthTTL <= 0 {
		c.AuthTTL = 2 * time.Hour
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = 10 * time.Second
	}
	if c.MaxPerUser <= 0 {
		c.MaxPerUser = 5
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 256
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// ConnManager indexes live sessions by connection id and by user.
type ConnManager struct {
	mu     sync.RWMutex
	bySnow map[string]*WsConn
	byUser map[string]map[string]*WsConn

	conf     ManagerConf
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewConnManager(conf ManagerConf) *ConnManager {
	conf.norm()
	m := &ConnManager{
		bySnow: make(map[string]*WsConn),
		byUser: make(map[string]map[string]*WsConn),
		conf:   conf,
		stopCh: make(chan struct{}),
	}
	safe.Go(m.sweeper)
	return m
}

// AddUnauth registers a fresh connection before authentication. It only
// lives in the snow index; until AUTH succeeds it cannot receive routed
// traffic and it expires on the short unauth TTL.
func (m *ConnManager) AddUnauth(snowID string, conn *websocket.Conn) *WsConn {
	now := m.conf.Clock()
	w := &WsConn{
		SnowID:    snowID,
		Conn:      conn,
		SendChan:  make(chan []byte, m.conf.SendQueueSize),
		CreatedAt: now,
		UpdatedAt: now,
		Heartbeat: now,
		TTL:       m.conf.UnauthTTL,
		ExpireAt:  now.Add(m.conf.UnauthTTL),
		done:      make(chan struct{}),
	}
	m.mu.Lock()
	m.bySnow[snowID] = w
	m.mu.Unlock()
	return w
}

// BindUser promotes a pending connection to an authenticated session.
// Rejects unknown connections and nil identities. If the user is at the
// session cap the oldest session is evicted first.
func (m *ConnManager) BindUser(snowID string, ident *security.Identity, token string) error {
	if ident == nil || ident.Subject == "" {
		return errs.ErrUnauthorized.WrapMsg("bind without identity")
	}
	var evicted *WsConn
	var firstSession bool
	var unboundFrom string

	m.mu.Lock()
	w, ok := m.bySnow[snowID]
	if !ok {
		m.mu.Unlock()
		return errs.ErrRecordNotFound.WrapMsg("connection not registered", "snowID", snowID)
	}
	userID := ident.Subject
	// A re-auth under a different subject must leave the old user's index
	// first, or the old user's traffic lands on the rebound socket.
	if w.UserID != "" && w.UserID != userID {
		if old := m.byUser[w.UserID]; old != nil {
			delete(old, snowID)
			if len(old) == 0 {
				delete(m.byUser, w.UserID)
				unboundFrom = w.UserID
			}
		}
	}
	set := m.byUser[userID]
	if set == nil {
		set = make(map[string]*WsConn)
		m.byUser[userID] = set
		firstSession = true
	}
	// a re-auth of an already-indexed session does not grow the set
	if _, already := set[snowID]; !already && len(set) >= m.conf.MaxPerUser {
		evicted = oldestOf(set)
		if evicted != nil {
			delete(set, evicted.SnowID)
			delete(m.bySnow, evicted.SnowID)
		}
	}
	now := m.conf.Clock()
	w.UserID = userID
	w.Identity = ident
	w.Token = token
	w.Authorized = true
	w.UpdatedAt = now
	w.Heartbeat = now
	w.TTL = m.conf.AuthTTL
	w.ExpireAt = now.Add(m.conf.AuthTTL)
	set[snowID] = w
	m.mu.Unlock()

	if evicted != nil {
		logger.Log.Sugar().Infow("evict oldest session", "userID", userID, "snowID", evicted.SnowID)
		m.teardown(evicted)
	}
	if unboundFrom != "" && m.conf.OnUserOffline != nil {
		m.conf.OnUserOffline(unboundFrom)
	}
	if firstSession && m.conf.OnUserOnline != nil {
		m.conf.OnUserOnline(userID)
	}
	return nil
}

func oldestOf(set map[string]*WsConn) *WsConn {
	var oldest *WsConn
	for _, c := range set {
		if oldest == nil || c.CreatedAt.Before(oldest.CreatedAt) {
			oldest = c
		}
	}
	return oldest
}

// RemoveBySnow unregisters a session. Safe to call more than once.
func (m *ConnManager) RemoveBySnow(snowID string) {
	var lastOf string
	m.mu.Lock()
	w, ok := m.bySnow[snowID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.bySnow, snowID)
	if w.UserID != "" {
		if set := m.byUser[w.UserID]; set != nil {
			delete(set, snowID)
			if len(set) == 0 {
				delete(m.byUser, w.UserID)
				lastOf = w.UserID
			}
		}
	}
	m.mu.Unlock()

	m.teardown(w)
	if lastOf != "" && m.conf.OnUserOffline != nil {
		m.conf.OnUserOffline(lastOf)
	}
}

func (m *ConnManager) teardown(w *WsConn) {
	w.markClosed()
	if w.Conn != nil {
		_ = w.Conn.Close()
	}
}

// Heartbeat refreshes the liveness deadline of a session.
func (m *ConnManager) Heartbeat(snowID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.bySnow[snowID]
	if !ok {
		return errs.ErrRecordNotFound.WrapMsg("connection not registered", "snowID", snowID)
	}
	now := m.conf.Clock()
	w.Heartbeat = now
	w.UpdatedAt = now
	w.ExpireAt = now.Add(w.TTL)
	return nil
}

// AttachPongHandler refreshes liveness on protocol-level pong as well.
func (m *ConnManager) AttachPongHandler(conn *websocket.Conn, snowID string) {
	conn.SetPongHandler(func(string) error {
		_ = m.Heartbeat(snowID)
		return nil
	})
}

func (m *ConnManager) GetBySnow(snowID string) (*WsConn, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.bySnow[snowID]
	return w, ok
}

func (m *ConnManager) ListUserConns(userID string) []*WsConn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.byUser[userID]
	out := make([]*WsConn, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

func (m *ConnManager) UserOnline(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byUser[userID]) > 0
}

// Push enqueues without blocking; a session with a full queue is dropped
// rather than allowed to stall the caller.
func (m *ConnManager) Push(w *WsConn, data []byte) bool {
	select {
	case <-w.done:
		return false
	default:
	}
	select {
	case w.SendChan <- data:
		return true
	default:
		logger.Log.Sugar().Warnw("send queue full, dropping session", "snowID", w.SnowID, "userID", w.UserID)
		go m.RemoveBySnow(w.SnowID)
		return false
	}
}

// PushUser fans data out to every live session of the user and reports how
// many accepted it.
func (m *ConnManager) PushUser(userID string, data []byte) int {
	n := 0
	for _, w := range m.ListUserConns(userID) {
		if m.Push(w, data) {
			n++
		}
	}
	return n
}

func (m *ConnManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bySnow)
}

// StartWritePump owns all writes on the socket: queued frames plus the
// periodic protocol ping. One pump per connection keeps per-recipient
// ordering intact.
func (m *ConnManager) StartWritePump(w *WsConn) {
	safe.Go(func() {
		ticker := time.NewTicker(m.conf.PingInterval)
		defer func() {
			ticker.Stop()
			_ = w.Conn.Close()
		}()
		for {
			select {
			case data, ok := <-w.SendChan:
				if !ok {
					return
				}
				_ = w.Conn.SetWriteDeadline(time.Now().Add(m.conf.WriteWait))
				if err := w.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
					logger.Log.Sugar().Debugw("write failed", "snowID", w.SnowID, "err", err)
					m.RemoveBySnow(w.SnowID)
					return
				}
			case <-ticker.C:
				_ = w.Conn.SetWriteDeadline(time.Now().Add(m.conf.WriteWait))
				if err := w.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					m.RemoveBySnow(w.SnowID)
					return
				}
			case <-w.done:
				return
			}
		}
	})
}

func (m *ConnManager) sweeper() {
	ticker := time.NewTicker(m.conf.SweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.SweepOnce(m.conf.Clock())
		case <-m.stopCh:
			return
		}
	}
}

// SweepOnce drops every session whose deadline has passed.
func (m *ConnManager) SweepOnce(now time.Time) int {
	m.mu.RLock()
	expired := make([]string, 0)
	for id, w := range m.bySnow {
		if now.After(w.ExpireAt) {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range expired {
		logger.Log.Sugar().Infow("sweep expired session", "snowID", id)
		m.RemoveBySnow(id)
	}
	return len(expired)
}

func (m *ConnManager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.mu.Lock()
	conns := make([]*WsConn, 0, len(m.bySnow))
	for _, w := range m.bySnow {
		conns = append(conns, w)
	}
	m.bySnow = make(map[string]*WsConn)
	m.byUser = make(map[string]map[string]*WsConn)
	m.mu.Unlock()
	for _, w := range conns {
		m.teardown(w)
	}
}
