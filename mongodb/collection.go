package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/gocrud/calllog/formatting"
	"github.com/gocrud/calllog/logging"
	"github.com/gocrud/calllog/sinks"
)

// CollectionOptions 集合后端配置
type CollectionOptions struct {
	// Client 使用的客户端名称，默认 "default"
	Client     string
	Database   string
	Collection string
	// Retention 大于 0 时按 time 字段建立 TTL 索引
	Retention time.Duration
}

func (o *CollectionOptions) setDefaults() {
	if o.Client == "" {
		o.Client = "default"
	}
	if o.Database == "" {
		o.Database = "calllog"
	}
	if o.Collection == "" {
		o.Collection = "calls"
	}
}

// CollectionSink 每条调用日志插入一个文档
type CollectionSink struct {
	coll *mongo.Collection
	opts CollectionOptions
}

// NewCollectionSink 创建集合后端
func NewCollectionSink(client *mongo.Client, opts CollectionOptions) *CollectionSink {
	opts.setDefaults()
	return &CollectionSink{
		coll: client.Database(opts.Database).Collection(opts.Collection),
		opts: opts,
	}
}

// EnsureIndexes 建立目标加时间的查询索引，以及可选的 TTL 索引
func (s *CollectionSink) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{{
		Keys: bson.D{{Key: "destination", Value: 1}, {Key: "time", Value: -1}},
	}}
	if s.opts.Retention > 0 {
		models = append(models, mongo.IndexModel{
			Keys:    bson.D{{Key: "time", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(s.opts.Retention / time.Second)),
		})
	}
	if _, err := s.coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("mongo create indexes on %s: %w", s.opts.Collection, err)
	}
	return nil
}

func (s *CollectionSink) Write(ctx context.Context, msg formatting.FormattedMessage, level logging.LogLevel, destination string) error {
	if _, err := s.coll.InsertOne(ctx, sinks.NewRecord(msg, level, destination)); err != nil {
		return fmt.Errorf("mongo insert into %s: %w", s.opts.Collection, err)
	}
	return nil
}

// Recent 按时间倒序读取目标最近的记录
func (s *CollectionSink) Recent(ctx context.Context, destination string, limit int64) ([]sinks.Record, error) {
	cursor, err := s.coll.Find(ctx,
		bson.D{{Key: "destination", Value: destination}},
		options.Find().SetSort(bson.D{{Key: "time", Value: -1}}).SetLimit(limit))
	if err != nil {
		return nil, err
	}
	var out []sinks.Record
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
