package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/gocrud/calllog/etcd"
	"github.com/gocrud/calllog/interception"
)

const etcdTimeout = 5 * time.Second

func newOverridesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "overrides",
		Short: "Manage runtime overrides stored in etcd",
	}
	cmd.PersistentFlags().StringSlice("etcd", []string{"localhost:2379"}, "etcd endpoints")
	cmd.PersistentFlags().String("prefix", etcd.DefaultOverridePrefix, "override key prefix")

	setCmd := &cobra.Command{
		Use:   "set <Type.Method|Type> <mode>",
		Short: "Set an override (mode: none|input|output|both)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := interception.ParseOverrideMode(args[1])
			if err != nil {
				return err
			}
			key, err := overrideKey(cmd, args[0])
			if err != nil {
				return err
			}
			return withKV(cmd, func(ctx context.Context, kv clientv3.KV) error {
				_, err := kv.Put(ctx, key, mode.String())
				return err
			})
		},
	}
	setCmd.Flags().Bool("type", false, "treat the argument as a type name")

	removeCmd := &cobra.Command{
		Use:     "remove <Type.Method|Type>",
		Aliases: []string{"rm"},
		Short:   "Remove an override",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := overrideKey(cmd, args[0])
			if err != nil {
				return err
			}
			return withKV(cmd, func(ctx context.Context, kv clientv3.KV) error {
				_, err := kv.Delete(ctx, key)
				return err
			})
		},
	}
	removeCmd.Flags().Bool("type", false, "treat the argument as a type name")

	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix, _ := cmd.Flags().GetString("prefix")
			return withKV(cmd, func(ctx context.Context, kv clientv3.KV) error {
				return listOverrides(ctx, kv, etcd.OverridePrefix(prefix), cmd.OutOrStdout())
			})
		},
	}

	cmd.AddCommand(setCmd, removeCmd, listCmd)
	return cmd
}

// overrideKey 按 --type 选择方法键或类型键
func overrideKey(cmd *cobra.Command, name string) (string, error) {
	prefix, _ := cmd.Flags().GetString("prefix")
	isType, _ := cmd.Flags().GetBool("type")
	if isType {
		if name == "" {
			return "", errors.New("type name is empty")
		}
		return etcd.TypeOverrideKey(prefix, name), nil
	}
	i := strings.LastIndexByte(name, '.')
	if i <= 0 || i == len(name)-1 {
		return "", fmt.Errorf("%q is not Type.Method, pass --type for a type override", name)
	}
	return etcd.MethodOverrideKey(prefix, interception.NewMethod(name[:i], name[i+1:], "")), nil
}

// listOverrides 输出前缀下的键值，键去掉前缀
func listOverrides(ctx context.Context, kv clientv3.KV, prefix string, out io.Writer) error {
	resp, err := kv.Get(ctx, prefix, clientv3.WithPrefix(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return err
	}
	for _, item := range resp.Kvs {
		fmt.Fprintf(out, "%s\t%s\n", strings.TrimPrefix(string(item.Key), prefix), item.Value)
	}
	return nil
}

func withKV(cmd *cobra.Command, fn func(ctx context.Context, kv clientv3.KV) error) error {
	endpoints, _ := cmd.Flags().GetStringSlice("etcd")
	client, err := clientv3.New(clientv3.Config{Endpoints: endpoints, DialTimeout: etcdTimeout})
	if err != nil {
		return fmt.Errorf("connect etcd: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), etcdTimeout)
	defer cancel()
	return fn(ctx, client)
}
