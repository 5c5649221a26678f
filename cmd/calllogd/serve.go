package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/driver/sqlite"

	"github.com/gocrud/calllog"
	"github.com/gocrud/calllog/config"
	"github.com/gocrud/calllog/core"
	"github.com/gocrud/calllog/database"
	"github.com/gocrud/calllog/etcd"
	"github.com/gocrud/calllog/logging"
	"github.com/gocrud/calllog/mongodb"
	"github.com/gocrud/calllog/pebblestore"
	"github.com/gocrud/calllog/redis"
	"github.com/gocrud/calllog/web"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the call logging engine",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := serveOptions(cmd)
			if err != nil {
				return err
			}
			rt, err := calllog.Bootstrap(opts...)
			if err != nil {
				return err
			}
			return calllog.Serve(cmd.Context(), rt)
		},
	}

	f := cmd.Flags()
	f.String("config", "", "YAML configuration file")
	f.String("env-prefix", "CALLLOG_", "environment variable prefix")
	f.Bool("watch-config", false, "reload configuration when the file changes")
	f.String("log-level", "info", "minimum runtime log level")

	f.StringSlice("etcd", nil, "etcd endpoints for runtime override sync")
	f.String("override-prefix", etcd.DefaultOverridePrefix, "etcd key prefix for overrides")

	f.String("redis", "", "redis address for the stream backend")
	f.String("stream-prefix", "calllog:", "redis stream name prefix")
	f.Int64("stream-maxlen", 0, "approximate length kept per stream, 0 keeps all")

	f.String("mongo", "", "mongodb URI for the collection backend")
	f.String("mongo-db", "calllog", "mongodb database")
	f.Duration("mongo-ttl", 0, "TTL index on stored records, 0 disables")

	f.String("sqlite", "", "sqlite file for the table backend")

	f.String("data-dir", "", "pebble archive directory")
	f.String("fsync", "interval", "archive fsync mode: always|interval|never")

	f.String("http", "", "diagnostics listen address, empty disables")
	f.Int("record-buffer", 200, "recent records kept in memory")
	f.Duration("retention", 0, "purge archived records older than this, 0 disables")
	f.String("retention-spec", calllog.DefaultRetentionSpec, "cron spec of the retention job")
	f.Duration("stats-interval", 0, "log engine statistics at this interval, 0 disables")
	return cmd
}

// serveOptions 按命令行参数组合运行时选项
func serveOptions(cmd *cobra.Command) ([]core.Option, error) {
	f := cmd.Flags()
	configFile, _ := f.GetString("config")
	envPrefix, _ := f.GetString("env-prefix")
	watch, _ := f.GetBool("watch-config")
	logLevel, _ := f.GetString("log-level")
	etcdEndpoints, _ := f.GetStringSlice("etcd")
	overridePrefix, _ := f.GetString("override-prefix")
	redisAddr, _ := f.GetString("redis")
	streamPrefix, _ := f.GetString("stream-prefix")
	streamMaxLen, _ := f.GetInt64("stream-maxlen")
	mongoURI, _ := f.GetString("mongo")
	mongoDB, _ := f.GetString("mongo-db")
	mongoTTL, _ := f.GetDuration("mongo-ttl")
	sqlitePath, _ := f.GetString("sqlite")
	dataDir, _ := f.GetString("data-dir")
	fsync, _ := f.GetString("fsync")
	httpAddr, _ := f.GetString("http")
	recordBuffer, _ := f.GetInt("record-buffer")
	retention, _ := f.GetDuration("retention")
	retentionSpec, _ := f.GetString("retention-spec")
	statsInterval, _ := f.GetDuration("stats-interval")

	level, err := logging.ParseLogLevel(logLevel)
	if err != nil {
		return nil, err
	}
	opts := []core.Option{
		core.WithLogging(func(b *logging.LoggingBuilder) {
			b.SetMinimumLevel(level)
		}),
	}

	cfg := config.NewConfigurationBuilder()
	if configFile != "" {
		cfg.AddYamlFile(configFile)
	}
	cfg.AddEnvironmentVariables(envPrefix)
	var loadOpts []config.LoadOption
	if watch {
		loadOpts = append(loadOpts, config.WithWatch())
	}
	opts = append(opts, config.Use(cfg, loadOpts...))

	if redisAddr != "" {
		opts = append(opts, redis.New(
			redis.WithClient("default", func(o *redis.ClientOptions) { o.Addr = redisAddr }),
			redis.WithStream(redis.StreamOptions{Prefix: streamPrefix, MaxLen: streamMaxLen}),
		))
	}
	if mongoURI != "" {
		opts = append(opts, mongodb.New(
			mongodb.WithClient("default", mongoURI),
			mongodb.WithCollection(mongodb.CollectionOptions{Database: mongoDB, Retention: mongoTTL}),
		))
	}
	if sqlitePath != "" {
		opts = append(opts, database.New(
			database.WithDatabase("default", sqlite.Open(sqlitePath)),
			database.WithTable(database.TableOptions{}),
		))
	}
	if dataDir != "" {
		mode, err := parseFsync(fsync)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pebblestore.New(pebblestore.Options{DataDir: dataDir, Fsync: mode}))
	}

	engineOpts := []calllog.Option{
		calllog.WithRecordBuffer(recordBuffer),
		calllog.WithStatsInterval(statsInterval),
	}
	if retention > 0 {
		engineOpts = append(engineOpts, calllog.WithRetention(retention, retentionSpec))
	}
	opts = append(opts, calllog.New(engineOpts...))

	if len(etcdEndpoints) > 0 {
		opts = append(opts, etcd.New(
			etcd.WithClient("default", func(o *etcd.ClientOptions) { o.Endpoints = etcdEndpoints }),
			etcd.WithOverrideSync(etcd.OverrideOptions{Prefix: overridePrefix}),
		))
	}
	if httpAddr != "" {
		opts = append(opts, web.New(web.WithAddr(httpAddr), web.WithDiagnostics(), web.WithCallLogging()))
	}
	return opts, nil
}

func parseFsync(s string) (pebblestore.FsyncMode, error) {
	switch s {
	case "always":
		return pebblestore.FsyncModeAlways, nil
	case "interval", "":
		return pebblestore.FsyncModeInterval, nil
	case "never":
		return pebblestore.FsyncModeNever, nil
	}
	return pebblestore.FsyncModeUnspecified, fmt.Errorf("unknown fsync mode %q", s)
}
