// Package connmgr owns every open database connection.
//
// There is at most one connection per configuration name. A caller gets
// exclusive use of it through a Lease; a second caller for the same name
// waits until the first releases, while callers for different names run
// in parallel. A connection that timed out or broke is discarded on
// release and reopened by the next lease.
package connmgr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/koustreak/sqlgate/internal/config"
	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/errs"
	"github.com/koustreak/sqlgate/internal/logger"
	"golang.org/x/sync/errgroup"
)

// Resolver looks up a configuration by name. *config.Registry implements it.
type Resolver interface {
	Resolve(name string) (config.Entry, error)
}

// Opener opens a new connection for entry.
type Opener func(ctx context.Context, entry config.Entry) (database.Conn, error)

// pingTimeout bounds the health check of a cached connection.
const pingTimeout = 5 * time.Second

// Manager hands out leases on per-configuration connections.
// It is safe for concurrent use.
type Manager struct {
	resolver Resolver
	open     Opener
	log      *logger.Logger
	now      func() time.Time

	mu     sync.Mutex
	slots  map[string]*slot
	closed bool
}

// slot holds the connection for one configuration name. sem carries a
// single token; conn and lastUsed are only touched by its holder.
type slot struct {
	name     string
	sem      chan struct{}
	conn     database.Conn
	lastUsed time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger for connection lifecycle events.
func WithLogger(l *logger.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// New returns a Manager that resolves names through resolver and opens
// connections with open.
func New(resolver Resolver, open Opener, opts ...Option) *Manager {
	m := &Manager{
		resolver: resolver,
		open:     open,
		log:      logger.Nop(),
		now:      time.Now,
		slots:    make(map[string]*slot),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Lease blocks until the connection for name is free, then returns it.
// The cached connection is pinged first and replaced if broken.
//
// Errors: config_not_found for an unknown name, query_timeout when ctx
// ends while waiting, connection_error when no connection can be opened.
// The caller MUST call Release.
func (m *Manager) Lease(ctx context.Context, name string) (*Lease, error) {
	entry, err := m.resolver.Resolve(name)
	if err != nil {
		return nil, err
	}

	s, err := m.slot(entry.Name)
	if err != nil {
		return nil, err
	}

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, errs.Wrap(errs.ErrKindTimeout, fmt.Sprintf("waiting for connection %q", entry.Name), ctx.Err())
	}

	if m.isClosed() {
		<-s.sem
		return nil, errs.New(errs.ErrKindConnectionFailed, "connection manager is closed")
	}
	if err := m.ensureOpen(ctx, s, entry); err != nil {
		<-s.sem
		return nil, err
	}
	return &Lease{m: m, s: s, entry: entry}, nil
}

// WithConn leases the connection for name, runs fn and releases with fn's
// error.
func (m *Manager) WithConn(ctx context.Context, name string, fn func(conn database.Conn, entry config.Entry) error) error {
	lease, err := m.Lease(ctx, name)
	if err != nil {
		return err
	}
	err = fn(lease.Conn(), lease.Entry())
	lease.Release(err)
	return err
}

func (m *Manager) slot(name string) (*slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errs.New(errs.ErrKindConnectionFailed, "connection manager is closed")
	}
	s, ok := m.slots[name]
	if !ok {
		s = &slot{name: name, sem: make(chan struct{}, 1)}
		m.slots[name] = s
	}
	return s, nil
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// ensureOpen runs with s's token held.
func (m *Manager) ensureOpen(ctx context.Context, s *slot, entry config.Entry) error {
	if s.conn != nil {
		err := m.ping(ctx, s.conn)
		if err == nil {
			return nil
		}
		m.log.WarnWith("cached connection failed health check", err, map[string]interface{}{
			"config": s.name,
		})
		m.discard(s)
	}

	start := m.now()
	conn, err := m.open(ctx, entry)
	if err != nil {
		return errs.Wrap(errs.ErrKindConnectionFailed, fmt.Sprintf("cannot connect to %q", entry.Name), err)
	}
	s.conn = conn
	s.lastUsed = m.now()

	m.log.InfoWith("connection opened", map[string]interface{}{
		"config":   s.name,
		"dialect":  entry.Dialect.String(),
		"target":   entry.Target(),
		"duration": m.now().Sub(start).String(),
	})
	return nil
}

// ping checks conn on its own deadline, detached from ctx, so that a
// caller close to its own deadline does not evict a healthy connection.
func (m *Manager) ping(ctx context.Context, conn database.Conn) error {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pingTimeout)
	defer cancel()
	return conn.Ping(pctx)
}

func (m *Manager) discard(s *slot) {
	if s.conn == nil {
		return
	}
	if err := s.conn.Close(); err != nil {
		m.log.WarnWith("error closing connection", err, map[string]interface{}{"config": s.name})
	}
	s.conn = nil
}

// Close closes the connection for name, waiting for any current lease to
// be released. The next Lease reopens it.
func (m *Manager) Close(ctx context.Context, name string) error {
	m.mu.Lock()
	s, ok := m.slots[name]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return m.closeSlot(ctx, s)
}

func (m *Manager) closeSlot(ctx context.Context, s *slot) error {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return errs.Wrap(errs.ErrKindTimeout, fmt.Sprintf("waiting to close connection %q", s.name), ctx.Err())
	}
	defer func() { <-s.sem }()

	if s.conn != nil {
		m.log.InfoWith("connection closed", map[string]interface{}{
			"config": s.name,
			"idle":   m.now().Sub(s.lastUsed).String(),
		})
	}
	m.discard(s)
	return nil
}

// CloseAll closes every connection in parallel and refuses further leases.
// It waits for outstanding leases up to ctx's deadline.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	slots := make([]*slot, 0, len(m.slots))
	for _, s := range m.slots {
		slots = append(slots, s)
	}
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range slots {
		g.Go(func() error { return m.closeSlot(gctx, s) })
	}
	return g.Wait()
}

// --- leases ---

// Lease is exclusive use of one configuration's connection.
type Lease struct {
	m     *Manager
	s     *slot
	entry config.Entry
	once  sync.Once
}

// Conn returns the leased connection. It must not be used after Release.
func (l *Lease) Conn() database.Conn { return l.s.conn }

// Entry returns the configuration the connection was opened from.
func (l *Lease) Entry() config.Entry { return l.entry }

// Release returns the connection. err is the outcome of the work done
// with it: a query_timeout or connection_error means the session state
// is unknown, and the connection is closed instead of kept. Extra calls
// are no-ops.
func (l *Lease) Release(err error) {
	l.once.Do(func() {
		if errs.IsTimeout(err) || errs.IsConnectionFailed(err) {
			l.m.log.WarnWith("discarding connection", err, map[string]interface{}{
				"config": l.s.name,
			})
			l.m.discard(l.s)
		} else {
			l.s.lastUsed = l.m.now()
		}
		<-l.s.sem
	})
}
