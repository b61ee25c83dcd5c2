package webfeed

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubConn struct {
	mu     sync.Mutex
	writes [][]byte
	failed bool
	closed bool
}

func (s *stubConn) WriteMessage(_ int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed {
		return errors.New("write failed")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.writes = append(s.writes, cp)
	return nil
}

func (s *stubConn) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubConn) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

func TestConnectionPoolBroadcast(t *testing.T) {
	pool := NewConnectionPool("f1", 0, nil)
	a := &stubConn{}
	b := &stubConn{}
	pool.Add(a)
	pool.Add(b)

	pool.Broadcast([]byte(`{"type":"message.append"}`))
	require.Equal(t, 1, a.writeCount())
	require.Equal(t, 1, b.writeCount())
	require.Equal(t, 2, pool.Count())
}

func TestConnectionPoolDropsFailingConn(t *testing.T) {
	pool := NewConnectionPool("f1", 0, nil)
	good := &stubConn{}
	bad := &stubConn{failed: true}
	pool.Add(good)
	pool.Add(bad)

	pool.Broadcast([]byte("x"))
	require.Equal(t, 1, pool.Count())
	require.True(t, bad.closed)

	pool.Broadcast([]byte("y"))
	require.Equal(t, 2, good.writeCount())
}

func TestConnectionPoolSendToOneIgnoresUnknownConn(t *testing.T) {
	pool := NewConnectionPool("f1", 0, nil)
	member := &stubConn{}
	stranger := &stubConn{}
	pool.Add(member)

	pool.SendToOne(stranger, []byte("x"))
	require.Zero(t, stranger.writeCount())

	pool.SendToOne(member, []byte("x"))
	require.Equal(t, 1, member.writeCount())
}

func TestConnectionPoolIdleCallbackFiresWhenEmpty(t *testing.T) {
	var fired atomic.Bool
	pool := NewConnectionPool("f1", 20*time.Millisecond, func() { fired.Store(true) })
	conn := &stubConn{}
	pool.Add(conn)
	pool.Remove(conn)

	require.Eventually(t, fired.Load, time.Second, 5*time.Millisecond)
	require.True(t, conn.closed)
}

func TestConnectionPoolIdleCallbackCancelledByRejoin(t *testing.T) {
	var fired atomic.Bool
	pool := NewConnectionPool("f1", 30*time.Millisecond, func() { fired.Store(true) })
	conn := &stubConn{}
	pool.Add(conn)
	pool.Remove(conn)
	pool.Add(&stubConn{})

	time.Sleep(80 * time.Millisecond)
	require.False(t, fired.Load())
}
