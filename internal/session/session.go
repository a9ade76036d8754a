// Package session manages MCP sessions: capability negotiation state, the
// subscription set driving resource-change notifications, and the TTL
// sweep spec.md §4.1 requires ("Sessions for stateless HTTP are persisted
// and periodically swept"). It is grounded on the teacher's
// runtime/agent/session/inmem/store.go clone-on-read in-memory cache,
// backed here by internal/store's durable mcp_sessions table rather than
// being purely in-memory, since spec.md requires persistence across
// stateless HTTP requests.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oss-mcp/research-engine/internal/mcpproto"
	"github.com/oss-mcp/research-engine/internal/store"
)

// ErrSessionNotFound mirrors store.ErrSessionNotFound under this package's
// name so callers need not import internal/store directly.
var ErrSessionNotFound = store.ErrSessionNotFound

// ErrSessionEnded is returned when an operation targets a session already
// torn down, per the teacher's session.ErrSessionEnded sentinel.
var ErrSessionEnded = errors.New("session: already ended")

// Session is the in-process view of a connected MCP client, cached from
// (and written through to) the durable store row.
type Session struct {
	ID              string
	Transport       store.TransportKind
	ProtocolVersion string
	Capabilities    mcpproto.Capabilities
	Principal       *string
	Subscriptions   map[string]struct{} // resource URIs this session subscribes to
	CreatedAt       time.Time
	LastSeenAt      time.Time
}

func (s Session) clone() Session {
	out := s
	if s.Principal != nil {
		p := *s.Principal
		out.Principal = &p
	}
	if len(s.Subscriptions) > 0 {
		out.Subscriptions = make(map[string]struct{}, len(s.Subscriptions))
		for k := range s.Subscriptions {
			out.Subscriptions[k] = struct{}{}
		}
	}
	return out
}

// Manager caches sessions in memory and persists every mutation to the
// store, so a stateless HTTP request that lands on this process can load a
// session created by an earlier request on the same or a different process
// instance (once restarted against the same DB file).
type Manager struct {
	st  *store.Store
	ttl time.Duration

	mu       sync.RWMutex
	sessions map[string]Session
}

// NewManager creates a session Manager; ttl is the inactivity window after
// which Sweep deletes a session (spec.md §4.1 default 3600s).
func NewManager(st *store.Store, ttl time.Duration) *Manager {
	return &Manager{st: st, ttl: ttl, sessions: make(map[string]Session)}
}

// Create negotiates a new session for transport/protocolVersion, persists
// it, and caches it, per spec.md §4.1 initialize().
func (m *Manager) Create(ctx context.Context, transport store.TransportKind, protocolVersion string, caps mcpproto.Capabilities, principal *string) (Session, error) {
	now := time.Now().UTC()
	sess := Session{
		ID:              uuid.NewString(),
		Transport:       transport,
		ProtocolVersion: protocolVersion,
		Capabilities:    caps,
		Principal:       principal,
		Subscriptions:   make(map[string]struct{}),
		CreatedAt:       now,
		LastSeenAt:      now,
	}
	if err := m.persist(ctx, sess); err != nil {
		return Session{}, err
	}
	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()
	return sess.clone(), nil
}

// Load returns a session, checking the in-process cache before falling
// back to the store (e.g. after a process restart or on a different
// worker goroutine that never saw Create).
func (m *Manager) Load(ctx context.Context, id string) (Session, error) {
	m.mu.RLock()
	cached, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return cached.clone(), nil
	}

	row, err := m.st.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	sess := fromRow(row)
	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()
	return sess.clone(), nil
}

// Touch updates last-seen, both in cache and in the store, extending the
// session's TTL window. Called on every request that carries a session id.
func (m *Manager) Touch(ctx context.Context, id string) error {
	now := time.Now().UTC()
	if err := m.st.TouchSession(ctx, id, now); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	m.mu.Lock()
	if sess, ok := m.sessions[id]; ok {
		sess.LastSeenAt = now
		m.sessions[id] = sess
	}
	m.mu.Unlock()
	return nil
}

// Subscribe adds uri to the session's subscription set and persists it.
func (m *Manager) Subscribe(ctx context.Context, id, uri string) error {
	return m.mutateSubscriptions(ctx, id, func(subs map[string]struct{}) {
		subs[uri] = struct{}{}
	})
}

// Unsubscribe removes uri from the session's subscription set.
func (m *Manager) Unsubscribe(ctx context.Context, id, uri string) error {
	return m.mutateSubscriptions(ctx, id, func(subs map[string]struct{}) {
		delete(subs, uri)
	})
}

func (m *Manager) mutateSubscriptions(ctx context.Context, id string, mutate func(map[string]struct{})) error {
	sess, err := m.Load(ctx, id)
	if err != nil {
		return err
	}
	if sess.Subscriptions == nil {
		sess.Subscriptions = make(map[string]struct{})
	}
	mutate(sess.Subscriptions)
	sess.LastSeenAt = time.Now().UTC()
	if err := m.persist(ctx, sess); err != nil {
		return err
	}
	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()
	return nil
}

// End removes a session from both cache and store, per client disconnect
// or explicit session_end.
func (m *Manager) End(ctx context.Context, id string) error {
	if err := m.st.DeleteSession(ctx, id); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

// Sweep deletes every session whose last-seen exceeds the manager's TTL,
// from both store and cache, and returns the deleted ids.
func (m *Manager) Sweep(ctx context.Context) ([]string, error) {
	ids, err := m.st.SweepExpiredSessions(ctx, m.ttl)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	m.mu.Lock()
	for _, id := range ids {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	return ids, nil
}

// Run starts the periodic sweep loop, ticking every interval until ctx is
// canceled, per spec.md §4.1 "running every cleanup-interval (default
// 600s)".
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = m.Sweep(ctx)
		}
	}
}

func (m *Manager) persist(ctx context.Context, sess Session) error {
	capsJSON, err := json.Marshal(sess.Capabilities)
	if err != nil {
		return err
	}
	subs := make([]string, 0, len(sess.Subscriptions))
	for uri := range sess.Subscriptions {
		subs = append(subs, uri)
	}
	subsJSON, err := json.Marshal(subs)
	if err != nil {
		return err
	}
	return m.st.PutSession(ctx, store.SessionRow{
		ID:              sess.ID,
		Transport:       sess.Transport,
		Capabilities:    capsJSON,
		Subscriptions:   subsJSON,
		Principal:       sess.Principal,
		ProtocolVersion: sess.ProtocolVersion,
		CreatedAt:       sess.CreatedAt,
		LastSeenAt:      sess.LastSeenAt,
	})
}

func fromRow(row *store.SessionRow) Session {
	sess := Session{
		ID:              row.ID,
		Transport:       row.Transport,
		ProtocolVersion: row.ProtocolVersion,
		Principal:       row.Principal,
		Subscriptions:   make(map[string]struct{}),
		CreatedAt:       row.CreatedAt,
		LastSeenAt:      row.LastSeenAt,
	}
	_ = json.Unmarshal(row.Capabilities, &sess.Capabilities)
	var subs []string
	_ = json.Unmarshal(row.Subscriptions, &subs)
	for _, uri := range subs {
		sess.Subscriptions[uri] = struct{}{}
	}
	return sess
}
