package peerstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-comms/pkg/interfaces"
	"github.com/dep2p/go-comms/pkg/lib/log"
	"github.com/dep2p/go-comms/pkg/types"
)

var logger = log.Logger("core/peerstore")

// 确保实现了接口
var _ interfaces.PeerDirectory = (*BadgerDirectory)(nil)

// peerKeyPrefix 节点记录键前缀
var peerKeyPrefix = []byte("peer/")

func peerKey(id types.NodeID) []byte {
	k := make([]byte, 0, len(peerKeyPrefix)+types.NodeIDSize)
	k = append(k, peerKeyPrefix...)
	return append(k, id[:]...)
}

// BadgerOptions BadgerDirectory 选项
type BadgerOptions struct {
	// Path 数据目录，InMemory 为 true 时忽略
	Path string

	// InMemory 使用 badger 内存模式（测试用）
	InMemory bool

	// CacheSize LRU 缓存条目数
	CacheSize int

	// GCInterval value log 垃圾回收间隔（0 禁用）
	GCInterval time.Duration
}

// BadgerDirectory 基于 BadgerDB 的节点目录
//
// 读路径先查 LRU 缓存；写路径在 writeMu 下完成读改写，
// 避免并发事务冲突，写成功后刷新缓存。
type BadgerDirectory struct {
	db     *badger.DB
	cache  *lru.Cache[types.NodeID, *types.Peer]
	closed atomic.Bool

	writeMu sync.Mutex
	now     func() time.Time

	gcCtx    context.Context
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
}

// NewBadgerDirectory 打开 BadgerDB 节点目录
func NewBadgerDirectory(opts BadgerOptions) (*BadgerDirectory, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Path == "" {
			return nil, errors.New("peerstore: badger path is required")
		}
		if err := os.MkdirAll(opts.Path, 0o700); err != nil {
			return nil, fmt.Errorf("peerstore: create data dir: %w", err)
		}
		bopts = badger.DefaultOptions(opts.Path)
	}
	bopts = bopts.WithLogger(badgerLogger{})

	size := opts.CacheSize
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[types.NodeID, *types.Peer](size)
	if err != nil {
		return nil, err
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("peerstore: open badger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &BadgerDirectory{
		db:       db,
		cache:    cache,
		now:      time.Now,
		gcCtx:    ctx,
		gcCancel: cancel,
	}
	if opts.GCInterval > 0 && !opts.InMemory {
		d.startGC(opts.GCInterval)
	}
	return d, nil
}

// startGC 启动 value log 垃圾回收
func (d *BadgerDirectory) startGC(interval time.Duration) {
	d.gcWg.Add(1)
	go func() {
		defer d.gcWg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-d.gcCtx.Done():
				return
			case <-ticker.C:
				d.runGC()
			}
		}
	}()
}

// runGC 持续回收直到没有可回收的空间
func (d *BadgerDirectory) runGC() {
	for {
		if d.closed.Load() {
			return
		}
		if err := d.db.RunValueLogGC(0.5); err != nil {
			return
		}
	}
}

// Find 按 NodeID 查找节点
func (d *BadgerDirectory) Find(_ context.Context, id types.NodeID) (*types.Peer, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}
	if p, ok := d.cache.Get(id); ok {
		return p.Clone(), nil
	}

	var p *types.Peer
	err := d.db.View(func(txn *badger.Txn) error {
		var err error
		p, err = d.get(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	d.cache.Add(id, p)
	return p.Clone(), nil
}

func (d *BadgerDirectory) get(txn *badger.Txn, id types.NodeID) (*types.Peer, error) {
	item, err := txn.Get(peerKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var p *types.Peer
	err = item.Value(func(val []byte) error {
		var derr error
		p, derr = decodePeer(val)
		return derr
	})
	return p, err
}

// Upsert 插入或合并节点记录
func (d *BadgerDirectory) Upsert(_ context.Context, peer *types.Peer) error {
	if err := validate(peer); err != nil {
		return err
	}
	return d.modify(peer.NodeID, func(existing *types.Peer) (*types.Peer, error) {
		return merge(existing, peer), nil
	})
}

// MarkAddressSuccess 记录地址拨号成功
func (d *BadgerDirectory) MarkAddressSuccess(_ context.Context, id types.NodeID, addr ma.Multiaddr) error {
	return d.modify(id, func(existing *types.Peer) (*types.Peer, error) {
		if existing == nil {
			return nil, ErrNotFound
		}
		existing.MarkAddressSuccess(addr, d.now())
		return existing, nil
	})
}

// MarkAddressFailure 记录地址拨号失败
func (d *BadgerDirectory) MarkAddressFailure(_ context.Context, id types.NodeID, addr ma.Multiaddr) error {
	return d.modify(id, func(existing *types.Peer) (*types.Peer, error) {
		if existing == nil {
			return nil, ErrNotFound
		}
		existing.MarkAddressFailure(addr)
		return existing, nil
	})
}

// modify 在写锁下完成读改写，fn 收到的是可修改的记录（不存在时为 nil）
func (d *BadgerDirectory) modify(id types.NodeID, fn func(existing *types.Peer) (*types.Peer, error)) error {
	if d.closed.Load() {
		return ErrClosed
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	var updated *types.Peer
	err := d.db.Update(func(txn *badger.Txn) error {
		existing, err := d.get(txn, id)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		updated, err = fn(existing)
		if err != nil {
			return err
		}
		return txn.Set(peerKey(id), encodePeer(updated))
	})
	if err != nil {
		d.cache.Remove(id)
		return err
	}
	d.cache.Add(id, updated)
	return nil
}

// All 返回全部节点，按键序（即 NodeID 字节序）排列
func (d *BadgerDirectory) All(_ context.Context) ([]*types.Peer, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}

	var out []*types.Peer
	err := d.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{
			Prefix:         peerKeyPrefix,
			PrefetchValues: true,
			PrefetchSize:   100,
		})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				p, err := decodePeer(val)
				if err != nil {
					return err
				}
				out = append(out, p)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// Close 关闭目录
func (d *BadgerDirectory) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	d.gcCancel()
	d.gcWg.Wait()
	d.cache.Purge()
	return d.db.Close()
}

// badgerLogger 将 badger 日志接入组件 logger
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logger.Error(fmt.Sprintf(format, args...))
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	logger.Warn(fmt.Sprintf(format, args...))
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	logger.Debug(fmt.Sprintf(format, args...))
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	logger.Debug(fmt.Sprintf(format, args...))
}
