package zookeeper

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-zookeeper/zk"
)

const DefaultLeaderPath = "/minishop/fulfillment/sweeper-leader"

// Conn is the slice of *zk.Conn the leader needs.
type Conn interface {
	Create(path string, data []byte, flags int32, acl []zk.ACL) (string, error)
	Get(path string) ([]byte, *zk.Stat, error)
	Exists(path string) (bool, *zk.Stat, error)
	Delete(path string, version int32) error
}

// Leader claims an ephemeral node holding the instance id. The instance is
// leader while the node exists and carries its id; the node vanishes with the
// session, so a crashed leader is replaced on the next check.
type Leader struct {
	conn     Conn
	path     string
	instance string

	mu      sync.Mutex
	ensured bool
}

func NewLeader(conn Conn, nodePath, instance string) *Leader {
	if nodePath == "" {
		nodePath = DefaultLeaderPath
	}
	return &Leader{conn: conn, path: nodePath, instance: instance}
}

// Connect opens a session against servers.
func Connect(servers []string, sessionTimeout time.Duration) (*zk.Conn, error) {
	conn, _, err := zk.Connect(servers, sessionTimeout)
	if err != nil {
		return nil, fmt.Errorf("zookeeper: connect %s: %w", strings.Join(servers, ","), err)
	}
	return conn, nil
}

func (l *Leader) IsLeader(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureParents(); err != nil {
		return false, err
	}

	_, err := l.conn.Create(l.path, []byte(l.instance), zk.FlagEphemeral, zk.WorldACL(zk.PermAll))
	switch {
	case err == nil:
		return true, nil
	case !errors.Is(err, zk.ErrNodeExists):
		return false, fmt.Errorf("zookeeper: claim %s: %w", l.path, err)
	}

	owner, _, err := l.conn.Get(l.path)
	if errors.Is(err, zk.ErrNoNode) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("zookeeper: read %s: %w", l.path, err)
	}
	return string(owner) == l.instance, nil
}

// Resign deletes the node if this instance holds it.
func (l *Leader) Resign() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	owner, stat, err := l.conn.Get(l.path)
	if errors.Is(err, zk.ErrNoNode) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("zookeeper: read %s: %w", l.path, err)
	}
	if string(owner) != l.instance {
		return nil
	}
	if err := l.conn.Delete(l.path, stat.Version); err != nil && !errors.Is(err, zk.ErrNoNode) {
		return fmt.Errorf("zookeeper: resign %s: %w", l.path, err)
	}
	return nil
}

func (l *Leader) ensureParents() error {
	if l.ensured {
		return nil
	}
	dir := path.Dir(l.path)
	var current string
	for _, part := range strings.Split(strings.Trim(dir, "/"), "/") {
		if part == "" {
			continue
		}
		current += "/" + part
		ok, _, err := l.conn.Exists(current)
		if err != nil {
			return fmt.Errorf("zookeeper: stat %s: %w", current, err)
		}
		if ok {
			continue
		}
		if _, err := l.conn.Create(current, nil, 0, zk.WorldACL(zk.PermAll)); err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return fmt.Errorf("zookeeper: create %s: %w", current, err)
		}
	}
	l.ensured = true
	return nil
}
