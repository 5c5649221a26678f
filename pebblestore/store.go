// Package pebblestore 基于 Pebble 的本地调用日志归档
//
// 键布局: 'c' 0x00 destination 0x00 unixNano(8 字节大端) seq(4 字节大端)，
// 同一目标内按写入时间有序，值为 JSON 编码的 sinks.Record。
package pebblestore

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/gocrud/calllog/formatting"
	"github.com/gocrud/calllog/logging"
	"github.com/gocrud/calllog/sinks"
)

// FsyncMode 写入的持久化策略
type FsyncMode int

const (
	FsyncModeUnspecified FsyncMode = iota
	// FsyncModeAlways 每次提交都同步 WAL
	FsyncModeAlways
	// FsyncModeInterval 在间隔内合并 WAL 同步
	FsyncModeInterval
	// FsyncModeNever 不主动同步
	FsyncModeNever
)

// Options 归档配置
type Options struct {
	// DataDir 数据目录，必填
	DataDir string
	Fsync   FsyncMode
	// FsyncInterval FsyncModeInterval 时的合并间隔，默认 5ms
	FsyncInterval time.Duration
	// PebbleOptions 高级调优，为空时使用默认值
	PebbleOptions *pebble.Options
}

// Store 调用日志归档，实现 processing.Sink
type Store struct {
	db        *pebble.DB
	writeSync bool
	seq       atomic.Uint32
}

// Open 打开或创建归档
func Open(opts Options) (*Store, error) {
	if opts.DataDir == "" {
		return nil, errors.New("pebblestore: Options.DataDir is required")
	}

	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}
	switch opts.Fsync {
	case FsyncModeAlways, FsyncModeNever:
	case FsyncModeInterval:
		interval := opts.FsyncInterval
		if interval <= 0 {
			interval = 5 * time.Millisecond
		}
		po.WALMinSyncInterval = func() time.Duration { return interval }
	default:
		po.WALMinSyncInterval = func() time.Duration { return 5 * time.Millisecond }
	}

	db, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, fmt.Errorf("pebblestore: open %s: %w", opts.DataDir, err)
	}
	return &Store{db: db, writeSync: opts.Fsync == FsyncModeAlways}, nil
}

// Close 关闭归档
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) InProcess() {}

func (s *Store) Write(_ context.Context, msg formatting.FormattedMessage, level logging.LogLevel, destination string) error {
	return s.Append(sinks.NewRecord(msg, level, destination))
}

// Append 写入一条记录
func (s *Store) Append(r sinks.Record) error {
	value, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("pebblestore: encode record: %w", err)
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(recordKey(r.Destination, r.Time, s.seq.Add(1)), value, nil); err != nil {
		return err
	}
	return b.Commit(s.writeOptions())
}

// Scan 读取目标在 since 之后的记录，按时间正序，limit <= 0 表示不限制
func (s *Store) Scan(destination string, since time.Time, limit int) ([]sinks.Record, error) {
	lower := recordKey(destination, since, 0)
	if since.IsZero() {
		lower = destinationPrefix(destination)
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: destinationUpper(destination),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []sinks.Record
	for iter.First(); iter.Valid(); iter.Next() {
		var r sinks.Record
		if err := json.Unmarshal(iter.Value(), &r); err != nil {
			return out, fmt.Errorf("pebblestore: decode %x: %w", iter.Key(), err)
		}
		out = append(out, r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, iter.Error()
}

// Purge 删除所有目标中早于 before 的记录，返回删除条数
func (s *Store) Purge(before time.Time) (int, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{keyPrefix, 0},
		UpperBound: []byte{keyPrefix, 1},
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	cutoff := before.UnixNano()
	b := s.db.NewBatch()
	defer b.Close()

	deleted := 0
	for iter.First(); iter.Valid(); iter.Next() {
		ts, ok := keyTime(iter.Key())
		if !ok || ts >= cutoff {
			continue
		}
		if err := b.Delete(bytes.Clone(iter.Key()), nil); err != nil {
			return 0, err
		}
		deleted++
	}
	if err := iter.Error(); err != nil {
		return 0, err
	}
	if deleted == 0 {
		return 0, nil
	}
	return deleted, b.Commit(s.writeOptions())
}

func (s *Store) writeOptions() *pebble.WriteOptions {
	if s.writeSync {
		return pebble.Sync
	}
	return pebble.NoSync
}

const keyPrefix = 'c'

func destinationPrefix(destination string) []byte {
	k := make([]byte, 0, len(destination)+3)
	k = append(k, keyPrefix, 0)
	k = append(k, destination...)
	return append(k, 0)
}

func destinationUpper(destination string) []byte {
	k := destinationPrefix(destination)
	k[len(k)-1] = 1
	return k
}

func recordKey(destination string, t time.Time, seq uint32) []byte {
	k := destinationPrefix(destination)
	k = binary.BigEndian.AppendUint64(k, uint64(t.UnixNano()))
	return binary.BigEndian.AppendUint32(k, seq)
}

// keyTime 从键尾部解析时间戳
func keyTime(key []byte) (int64, bool) {
	if len(key) < 2+1+12 {
		return 0, false
	}
	tail := key[len(key)-12:]
	return int64(binary.BigEndian.Uint64(tail[:8])), true
}
