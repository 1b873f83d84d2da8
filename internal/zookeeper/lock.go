// internal/zookeeper/lock.go
package zookeeper

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"

	"nexus-order/internal/pkg/logger"
)

const (
	lockRoot = "/distributed_locks" // 所有分布式锁的根节点
)

// zkLogger 把 zk 客户端的内部日志转到 zerolog
type zkLogger struct{}

func (zkLogger) Printf(format string, args ...any) {
	logger.Ctx(context.Background()).Debug().Msgf(format, args...)
}

// Connect 建立 ZooKeeper 会话
func Connect(servers []string, sessionTimeout time.Duration) (*zk.Conn, error) {
	conn, _, err := zk.Connect(servers, sessionTimeout, zk.WithLogger(zkLogger{}))
	if err != nil {
		return nil, errors.Wrapf(err, "connect zookeeper %v", servers)
	}
	return conn, nil
}

// Conn 是锁用到的 ZooKeeper 操作，*zk.Conn 满足该接口
type Conn interface {
	Exists(path string) (bool, *zk.Stat, error)
	ExistsW(path string) (bool, *zk.Stat, <-chan zk.Event, error)
	Create(path string, data []byte, flags int32, acl []zk.ACL) (string, error)
	CreateProtectedEphemeralSequential(path string, data []byte, acl []zk.ACL) (string, error)
	Children(path string) ([]string, *zk.Stat, error)
	Delete(path string, version int32) error
}

var _ Conn = (*zk.Conn)(nil)

// DistributedLock 基于临时顺序节点实现的公平互斥锁
type DistributedLock struct {
	conn     Conn
	path     string // 锁的路径，例如 /distributed_locks/order-123
	lockNode string // 成功获取锁后，自己创建的节点路径
}

// NewDistributedLock 创建锁实例，必要时创建根节点和资源节点
func NewDistributedLock(conn Conn, resourceID string) (*DistributedLock, error) {
	lockPath := LockPath(resourceID)
	for _, p := range []string{lockRoot, lockPath} {
		if err := ensureNode(conn, p); err != nil {
			return nil, err
		}
	}
	return &DistributedLock{conn: conn, path: lockPath}, nil
}

// LockPath 返回资源对应的锁节点路径
func LockPath(resourceID string) string {
	return lockRoot + "/" + resourceID
}

func ensureNode(conn Conn, path string) error {
	exists, _, err := conn.Exists(path)
	if err != nil {
		return errors.Wrapf(err, "check lock node %s", path)
	}
	if exists {
		return nil
	}
	_, err = conn.Create(path, []byte(""), 0, zk.WorldACL(zk.PermAll))
	if err != nil && !errors.Is(err, zk.ErrNodeExists) {
		return errors.Wrapf(err, "create lock node %s", path)
	}
	return nil
}

// Lock 阻塞直到获得锁、ctx 结束或超过 timeout
func (l *DistributedLock) Lock(ctx context.Context, timeout time.Duration) error {
	// 1. 在锁路径下创建一个临时顺序节点
	nodePath, err := l.createSequential()
	if err != nil {
		return err
	}
	l.lockNode = nodePath

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		// 2. 获取所有竞争者，按序号排序
		children, _, err := l.conn.Children(l.path)
		if err != nil {
			l.abandon()
			return errors.Wrap(err, "list lock contenders")
		}
		sortBySequence(children)

		// 3. 自己是最小节点即获得锁，否则监听前一个节点
		myNodeName := strings.TrimPrefix(l.lockNode, l.path+"/")
		prev, found := previousNode(children, myNodeName)
		if !found {
			l.lockNode = ""
			return errors.Errorf("lock node %s disappeared, session may have expired", myNodeName)
		}
		if prev == "" {
			return nil
		}

		exists, _, eventChan, err := l.conn.ExistsW(l.path + "/" + prev)
		if err != nil {
			l.abandon()
			return errors.Wrap(err, "watch previous lock node")
		}
		if !exists {
			continue
		}

		select {
		case <-eventChan:
			// 前一个节点有变化，重新竞争
		case <-ctx.Done():
			l.abandon()
			return ctx.Err()
		case <-deadline.C:
			l.abandon()
			return errors.Errorf("timeout waiting for lock %s", l.path)
		}
	}
}

// createSequential 资源节点可能刚被上一个持有者清理掉，此时重建后再试一次
func (l *DistributedLock) createSequential() (string, error) {
	for attempt := 0; ; attempt++ {
		nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte(""), zk.WorldACL(zk.PermAll))
		if err == nil {
			return nodePath, nil
		}
		if !errors.Is(err, zk.ErrNoNode) || attempt > 0 {
			return "", errors.Wrap(err, "create sequential node")
		}
		if err := ensureNode(l.conn, l.path); err != nil {
			return "", err
		}
	}
}

// Unlock 释放锁，没有其他竞争者时顺带删除资源节点
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return errors.New("no lock to unlock")
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && !errors.Is(err, zk.ErrNoNode) {
		return errors.Wrap(err, "delete lock node")
	}
	l.lockNode = ""

	if err := l.conn.Delete(l.path, -1); err != nil && !isCleanupRace(err) {
		logger.Ctx(context.Background()).Warn().Err(err).Str("path", l.path).Msg("Failed to remove idle lock path")
	}
	return nil
}

// isCleanupRace 资源节点仍有等待者或已被别人删除，都属于正常竞争
func isCleanupRace(err error) bool {
	return errors.Is(err, zk.ErrNotEmpty) || errors.Is(err, zk.ErrNoNode)
}

func (l *DistributedLock) abandon() {
	if err := l.Unlock(); err != nil {
		logger.Ctx(context.Background()).Warn().Err(err).Str("path", l.path).Msg("Failed to remove abandoned lock node")
	}
}

// sortBySequence 受保护节点带有 GUID 前缀，只能按末尾的 10 位序号排序
func sortBySequence(children []string) {
	sort.Slice(children, func(i, j int) bool {
		return sequenceOf(children[i]) < sequenceOf(children[j])
	})
}

func sequenceOf(node string) string {
	if len(node) < 10 {
		return node
	}
	return node[len(node)-10:]
}

// previousNode 返回排在 me 之前的节点；me 排第一时返回空串
func previousNode(sorted []string, me string) (prev string, found bool) {
	for i, child := range sorted {
		if child == me {
			if i == 0 {
				return "", true
			}
			return sorted[i-1], true
		}
	}
	return "", false
}
