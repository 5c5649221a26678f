package database_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gocrud/calllog/core"
	"github.com/gocrud/calllog/database"
	"github.com/gocrud/calllog/di"
	"github.com/gocrud/calllog/formatting"
	"github.com/gocrud/calllog/logging"
	"github.com/gocrud/calllog/sinks"
)

type dbConsumer struct {
	Default *gorm.DB `di:"default"`
	Replica *gorm.DB `di:"replica,?"`
}

func dsn(t *testing.T) string {
	return filepath.Join(t.TempDir(), "calls.db")
}

func message(method string) formatting.FormattedMessage {
	return formatting.FormattedMessage{
		Template:       "{TypeName}.{MethodName}",
		Parameters:     []any{"OrderService", method},
		ParameterNames: []string{"TypeName", "MethodName"},
		Success:        true,
	}
}

func TestDatabaseRegistration(t *testing.T) {
	rt := core.NewRuntime()
	require.NoError(t, rt.Apply(database.New(
		database.WithTable(database.TableOptions{}),
		database.WithDatabase("default", sqlite.Open(dsn(t)), func(o *database.Options) {
			o.MaxOpenConns = 1
		}),
	)))
	di.Register[*dbConsumer](rt.Container)
	require.NoError(t, rt.Container.Build())

	svc, err := di.Resolve[*dbConsumer](rt.Container)
	require.NoError(t, err)
	assert.NotNil(t, svc.Default)
	assert.Nil(t, svc.Replica)
	assert.True(t, svc.Default.Migrator().HasTable(&database.CallRecord{}))

	sink, ok := sinks.FromRuntime(rt).Get("database")
	require.True(t, ok)
	require.NoError(t, sink.Write(context.Background(), message("ProcessOrder"), logging.LogLevelInfo, "orders"))

	var count int64
	require.NoError(t, svc.Default.Model(&database.CallRecord{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	require.NoError(t, rt.Lifecycle.Stop(context.Background()))
}

func TestTableSinkRecentAndPurge(t *testing.T) {
	factory := database.NewFactory()
	opts := database.NewDefaultOptions("default", sqlite.Open(dsn(t)))
	opts.AutoMigrate = []any{&database.CallRecord{}}
	require.NoError(t, factory.Register(*opts))
	defer factory.Close()

	db, err := factory.Get("default")
	require.NoError(t, err)
	sink := database.NewTableSink(db)
	ctx := context.Background()

	for _, m := range []string{"A", "B", "C"} {
		require.NoError(t, sink.Write(ctx, message(m), logging.LogLevelWarn, "orders"))
	}
	require.NoError(t, sink.Write(ctx, message("X"), logging.LogLevelInfo, "billing"))

	rows, err := sink.Recent(ctx, "orders", 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "OrderService.C", rows[0].Message)
	assert.Equal(t, "WARN", rows[0].Level)
	assert.JSONEq(t, `{"TypeName":"OrderService","MethodName":"C"}`, rows[0].Fields)

	deleted, err := sink.Purge(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(4), deleted)
}

func TestBuilderErrors(t *testing.T) {
	_, err := database.NewBuilder().
		Add("", sqlite.Open("x"), nil).
		Add("nodialector", nil, nil).
		Build(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database name is required")
	assert.Contains(t, err.Error(), "dialector is required")

	_, err = database.NewBuilder().
		Add("a", sqlite.Open(dsn(t)), nil).
		Add("a", sqlite.Open(dsn(t)), nil).
		Build(nil)
	assert.ErrorContains(t, err, "already configured")

	rt := core.NewRuntime()
	err = rt.Apply(database.New(
		database.WithDatabase("main", sqlite.Open(dsn(t))),
		database.WithTable(database.TableOptions{}),
	))
	assert.ErrorContains(t, err, "'default' not found")
}
