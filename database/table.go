package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/gocrud/calllog/formatting"
	"github.com/gocrud/calllog/logging"
	"github.com/gocrud/calllog/sinks"
)

// CallRecord 调用日志表结构
type CallRecord struct {
	ID          uint      `gorm:"primaryKey"`
	Time        time.Time `gorm:"index:idx_call_dest_time,priority:2"`
	Level       string    `gorm:"size:8"`
	Destination string    `gorm:"size:255;index:idx_call_dest_time,priority:1"`
	Message     string
	Template    string
	Fields      string
	Success     bool
	Fallback    bool
}

// TableName 默认表名
func (CallRecord) TableName() string {
	return "call_logs"
}

// TableOptions 数据表后端配置
type TableOptions struct {
	// Database 使用的数据库名称，默认 "default"
	Database string
}

func (o *TableOptions) setDefaults() {
	if o.Database == "" {
		o.Database = "default"
	}
}

// TableSink 每条调用日志插入一行
type TableSink struct {
	db *gorm.DB
}

// NewTableSink 创建数据表后端，调用方负责迁移
func NewTableSink(db *gorm.DB) *TableSink {
	return &TableSink{db: db}
}

func (s *TableSink) Write(ctx context.Context, msg formatting.FormattedMessage, level logging.LogLevel, destination string) error {
	row, err := toRow(sinks.NewRecord(msg, level, destination))
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert call record: %w", err)
	}
	return nil
}

// Recent 按时间倒序读取目标最近的记录
func (s *TableSink) Recent(ctx context.Context, destination string, limit int) ([]CallRecord, error) {
	var rows []CallRecord
	err := s.db.WithContext(ctx).
		Where("destination = ?", destination).
		Order("time DESC").Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Purge 删除早于 before 的记录，返回删除行数
func (s *TableSink) Purge(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("time < ?", before.UTC()).Delete(&CallRecord{})
	return res.RowsAffected, res.Error
}

func toRow(r sinks.Record) (CallRecord, error) {
	row := CallRecord{
		Time:        r.Time,
		Level:       r.Level,
		Destination: r.Destination,
		Message:     r.Message,
		Template:    r.Template,
		Success:     r.Success,
		Fallback:    r.Fallback,
	}
	if len(r.Fields) > 0 {
		b, err := json.Marshal(r.Fields)
		if err != nil {
			return row, fmt.Errorf("encode fields: %w", err)
		}
		row.Fields = string(b)
	}
	return row, nil
}
