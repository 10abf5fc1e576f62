package zookeeper

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-zookeeper/zk"
)

// memConn is a single-session tree without watches.
type memConn struct {
	mu    sync.Mutex
	nodes map[string][]byte
}

func newMemConn() *memConn { return &memConn{nodes: make(map[string][]byte)} }

func (m *memConn) Create(path string, data []byte, flags int32, acl []zk.ACL) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[path]; ok {
		return "", zk.ErrNodeExists
	}
	m.nodes[path] = data
	return path, nil
}

func (m *memConn) Get(path string) ([]byte, *zk.Stat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.nodes[path]
	if !ok {
		return nil, nil, zk.ErrNoNode
	}
	return data, &zk.Stat{}, nil
}

func (m *memConn) Exists(path string) (bool, *zk.Stat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.nodes[path]
	return ok, &zk.Stat{}, nil
}

func (m *memConn) Delete(path string, version int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[path]; !ok {
		return zk.ErrNoNode
	}
	delete(m.nodes, path)
	return nil
}

func TestLeaderSingleHolder(t *testing.T) {
	ctx := context.Background()
	conn := newMemConn()
	a := NewLeader(conn, "/svc/leader", "a")
	b := NewLeader(conn, "/svc/leader", "b")

	if ok, err := a.IsLeader(ctx); err != nil || !ok {
		t.Fatalf("a should claim leadership: %v %v", ok, err)
	}
	if ok, err := a.IsLeader(ctx); err != nil || !ok {
		t.Fatalf("a should keep leadership: %v %v", ok, err)
	}
	if ok, err := b.IsLeader(ctx); err != nil || ok {
		t.Fatalf("b must not lead while a holds the node: %v %v", ok, err)
	}
	if ok, _, _ := conn.Exists("/svc"); !ok {
		t.Fatal("parent node not created")
	}

	if err := b.Resign(); err != nil {
		t.Fatalf("Resign by non-holder: %v", err)
	}
	if ok, _ := a.IsLeader(ctx); !ok {
		t.Fatal("non-holder resign removed the node")
	}

	if err := a.Resign(); err != nil {
		t.Fatalf("Resign: %v", err)
	}
	if ok, err := b.IsLeader(ctx); err != nil || !ok {
		t.Fatalf("b should take over: %v %v", ok, err)
	}
}

func TestLeaderHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewLeader(newMemConn(), "", "a").IsLeader(ctx); err == nil {
		t.Fatal("expected context error")
	}
}

func TestLeaderIntegration(t *testing.T) {
	servers := os.Getenv("TEST_ZK_SERVERS")
	if servers == "" {
		t.Skip("TEST_ZK_SERVERS not set")
	}
	first, err := Connect(strings.Split(servers, ","), 5*time.Second)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	second, err := Connect(strings.Split(servers, ","), 5*time.Second)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer second.Close()

	nodePath := "/minishop-test/leader-" + time.Now().Format("150405.000000")
	a := NewLeader(first, nodePath, "a")
	b := NewLeader(second, nodePath, "b")
	ctx := context.Background()

	if ok, err := a.IsLeader(ctx); err != nil || !ok {
		t.Fatalf("a: %v %v", ok, err)
	}
	if ok, err := b.IsLeader(ctx); err != nil || ok {
		t.Fatalf("b: %v %v", ok, err)
	}

	first.Close()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if ok, _ := b.IsLeader(ctx); ok {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatal("b did not take over after a's session closed")
}
