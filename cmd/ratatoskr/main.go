// Package main provides the Ratatoskr CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/orneryd/ratatoskr/pkg/config"
	"github.com/orneryd/ratatoskr/pkg/transport"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

var cfgPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "ratatoskr",
		Short: "Ratatoskr - Typed graph queries for Neo4j-compatible engines",
		Long: `Ratatoskr is a typed query layer over Neo4j-compatible graph engines.

The library compiles typed queries to parameterized Cypher; this CLI covers
the operational basics around it:

  • Connectivity checks against a configured engine
  • Raw Cypher execution for debugging
  • Constraint catalog inspection`,
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to a YAML config file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Ratatoskr v%s (%s)\n", version, commit)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "ping",
		Short: "Verify connectivity to the configured engine",
		RunE:  runPing,
	})

	queryCmd := &cobra.Command{
		Use:   "query [cypher]",
		Short: "Run a raw Cypher query and print the rows",
		Args:  cobra.ExactArgs(1),
		RunE:  runQuery,
	}
	queryCmd.Flags().Bool("write", false, "Run on a write session inside a transaction")
	rootCmd.AddCommand(queryCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "constraints",
		Short: "Show the engine's constraint catalog",
		RunE:  runConstraints,
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration, applies it to the process logger and dials the
// engine.
func setup(ctx context.Context) (*config.Config, *transport.BoltTransport, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Logging.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if strings.EqualFold(cfg.Logging.Format, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	user, pass := "", ""
	if cfg.Auth.Enabled {
		user, pass = cfg.Auth.Username, cfg.Auth.Password
	}
	tr, err := transport.NewBolt(cfg.URI, user, pass, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("dialing %s: %w", cfg.URI, err)
	}
	return cfg, tr, nil
}

func runPing(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, tr, err := setup(ctx)
	if err != nil {
		return err
	}
	defer tr.Close(ctx)

	verifyCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := tr.Verify(verifyCtx); err != nil {
		return fmt.Errorf("engine unreachable: %w", err)
	}
	fmt.Printf("OK %s\n", cfg.URI)
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, tr, err := setup(ctx)
	if err != nil {
		return err
	}
	defer tr.Close(ctx)

	if cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.QueryTimeout)
		defer cancel()
	}

	write, _ := cmd.Flags().GetBool("write")
	mode := transport.AccessRead
	if write {
		mode = transport.AccessWrite
	}

	sess, err := tr.Session(ctx, mode)
	if err != nil {
		return err
	}
	defer sess.Close(ctx)

	var res *transport.Result
	if write {
		tx, err := sess.Begin(ctx)
		if err != nil {
			return err
		}
		res, err = tx.Run(ctx, args[0], nil)
		if err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
	} else {
		res, err = sess.Run(ctx, args[0], nil)
		if err != nil {
			return err
		}
	}

	printResult(res)
	return nil
}

func runConstraints(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	_, tr, err := setup(ctx)
	if err != nil {
		return err
	}
	defer tr.Close(ctx)

	sess, err := tr.Session(ctx, transport.AccessRead)
	if err != nil {
		return err
	}
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, "SHOW CONSTRAINTS", nil)
	if err != nil {
		return err
	}
	printResult(res)
	return nil
}

func printResult(res *transport.Result) {
	fmt.Println(strings.Join(res.Columns, "\t"))
	for _, row := range res.Rows {
		parts := make([]string, len(row))
		for i, v := range row {
			parts[i] = fmt.Sprintf("%v", v)
		}
		fmt.Println(strings.Join(parts, "\t"))
	}
	fmt.Printf("(%d rows)\n", len(res.Rows))
}
