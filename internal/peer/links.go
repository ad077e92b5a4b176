package peer

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/eldermesh/sectionnet/internal/address"
	"github.com/eldermesh/sectionnet/internal/neterr"
	"github.com/eldermesh/sectionnet/internal/wire"
)

// maxConcurrentDials bounds how many outbound QUIC handshakes the whole
// pool may have in flight at once, so a membership churn event that
// suddenly needs many fresh links doesn't open hundreds of handshakes
// simultaneously.
const maxConcurrentDials = 16

// Link is a lazy, long-lived connection bundle to a single peer. It holds
// at most one live wire.Connection at a time and reopens it transparently
// on send failure, the way franz-go's brokerCxn reconnects a dead broker
// connection rather than handing the caller a permanently-broken handle.
type Link struct {
	peer    Peer
	dialer  wire.Dialer
	dialSem *semaphore.Weighted

	mu   sync.Mutex
	conn wire.Connection
}

func newLink(p Peer, dialer wire.Dialer, dialSem *semaphore.Weighted) *Link {
	return &Link{peer: p, dialer: dialer, dialSem: dialSem}
}

// OnNewConn is invoked whenever SendWith establishes a fresh connection, so
// callers can attach a response listener to it before any bytes go out.
type OnNewConn func(wire.Connection)

// SendWith writes payload on the current connection, opening a new one
// first if none exists or the last attempt indicated the connection is
// dead. onNewConn, if non-nil, runs exactly once per freshly dialed
// connection.
func (l *Link) SendWith(ctx context.Context, payload []byte, onNewConn OnNewConn) error {
	conn, fresh, err := l.connection(ctx)
	if err != nil {
		return &neterr.QuicP2PConnection{Peer: l.peer.String(), Err: err}
	}
	if fresh && onNewConn != nil {
		onNewConn(conn)
	}

	if err := l.writeOnce(ctx, conn, payload); err != nil {
		// The existing connection might be dead; drop it and retry once
		// against a freshly dialed one before giving up.
		l.drop(conn)
		conn, fresh, err2 := l.connection(ctx)
		if err2 != nil {
			return &neterr.QuicP2PConnection{Peer: l.peer.String(), Err: err2}
		}
		if fresh && onNewConn != nil {
			onNewConn(conn)
		}
		if err := l.writeOnce(ctx, conn, payload); err != nil {
			return &neterr.QuicP2PSend{Peer: l.peer.String(), Err: err}
		}
	}
	return nil
}

func (l *Link) writeOnce(ctx context.Context, conn wire.Connection, payload []byte) error {
	stream, err := conn.OpenStream(ctx)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer stream.Close()
	if _, err := stream.Write(payload); err != nil {
		return fmt.Errorf("write stream: %w", err)
	}
	return nil
}

// connection returns the current live connection, dialing a new one if
// needed. The bool return reports whether a fresh connection was dialed.
func (l *Link) connection(ctx context.Context) (wire.Connection, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		return l.conn, false, nil
	}
	if l.dialSem != nil {
		if err := l.dialSem.Acquire(ctx, 1); err != nil {
			return nil, false, err
		}
		defer l.dialSem.Release(1)
	}
	conn, err := l.dialer.Dial(ctx, l.peer.Addr)
	if err != nil {
		return nil, false, err
	}
	l.conn = conn
	return conn, true, nil
}

func (l *Link) drop(conn wire.Connection) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == conn {
		l.conn = nil
	}
}

// Close tears the link down, closing any live connection with the given
// reason code.
func (l *Link) Close(code wire.CloseReason, reason string) {
	l.mu.Lock()
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()
	if conn != nil {
		_ = conn.CloseWithError(code, reason)
	}
}

// Links is the connection pool keyed by peer identity (address.XorName):
// lazily created, and pruned on membership change. This mirrors
// VirtualClusterStore/CredentialStore from the teacher — an RWMutex-guarded
// map with upsert/get/delete/list — generalised to lazy value construction
// and a cleanup-by-keep-set operation instead of plain delete.
type Links struct {
	dialer  wire.Dialer
	dialSem *semaphore.Weighted

	mu    sync.RWMutex
	links map[address.XorName]*Link
	peers map[address.XorName]Peer
}

// NewLinks creates an empty pool that dials new connections via dialer,
// bounding concurrent in-flight dials across every Link it hands out.
func NewLinks(dialer wire.Dialer) *Links {
	return &Links{
		dialer:  dialer,
		dialSem: semaphore.NewWeighted(maxConcurrentDials),
		links:   make(map[address.XorName]*Link),
		peers:   make(map[address.XorName]Peer),
	}
}

// GetOrCreate returns the existing Link for p, or creates one. Idempotent:
// concurrent callers for the same peer converge on a single Link.
func (l *Links) GetOrCreate(p Peer) *Link {
	l.mu.RLock()
	link, ok := l.links[p.Name]
	l.mu.RUnlock()
	if ok {
		return link
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if link, ok := l.links[p.Name]; ok {
		return link
	}
	link = newLink(p, l.dialer, l.dialSem)
	l.links[p.Name] = link
	l.peers[p.Name] = p
	return link
}

// Cleanup drops every link whose peer is not in keep, closing its
// connection with CloseReasonStale. Called after a membership change
// evicts peers from the SectionTree.
func (l *Links) Cleanup(keep map[address.XorName]struct{}) {
	l.mu.Lock()
	var stale []*Link
	for name, link := range l.links {
		if _, ok := keep[name]; !ok {
			stale = append(stale, link)
			delete(l.links, name)
			delete(l.peers, name)
		}
	}
	l.mu.Unlock()

	for _, link := range stale {
		link.Close(wire.CloseReasonStale, "peer evicted from section tree")
		logrus.WithField("peer", link.peer).Debug("peer link cleaned up")
	}
}

// Len reports how many links are currently pooled.
func (l *Links) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.links)
}
