// Command deltadb-query runs one ad-hoc query against a delta log
// directory from the command line, without standing up the full
// catalog server: a snapshot query against "now" (or --at), or a
// historical replay between --t0 and --t1.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"catalogd.dev/deltadb"
	"catalogd.dev/jx"
)

var (
	historyDir string
	filterExpr string
	whereExpr  string
	outputExpr string
	displayStr string
	atStr      string
	t0Str      string
	t1Str      string
	epochMode  bool
)

var rootCmd = &cobra.Command{
	Use:   "deltadb-query",
	Short: "run one query against a delta log directory",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&historyDir, "history-dir", "", "delta log directory (required)")
	rootCmd.Flags().StringVar(&filterExpr, "filter", "", "JX predicate selecting records to include")
	rootCmd.Flags().StringVar(&whereExpr, "where", "", "JX predicate applied at output time")
	rootCmd.Flags().StringVar(&outputExpr, "output", "", "comma-separated JX expressions (exprs display mode)")
	rootCmd.Flags().StringVar(&displayStr, "display", "objects", "stream|exprs|objects")
	rootCmd.Flags().StringVar(&atStr, "at", "", "RFC3339 timestamp for a point-in-time snapshot (default now)")
	rootCmd.Flags().StringVar(&t0Str, "t0", "", "RFC3339 start of a historical replay window")
	rootCmd.Flags().StringVar(&t1Str, "t1", "", "RFC3339 end of a historical replay window")
	rootCmd.Flags().BoolVar(&epochMode, "epoch", false, "print time markers as unix epoch seconds")
	rootCmd.MarkFlagRequired("history-dir")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	q := deltadb.NewQuery(os.Stdout)
	q.EpochMode = epochMode

	if filterExpr != "" {
		expr, err := parseExpr(filterExpr)
		if err != nil {
			return fmt.Errorf("--filter: %w", err)
		}
		q.Filter = expr
	}
	if whereExpr != "" {
		expr, err := parseExpr(whereExpr)
		if err != nil {
			return fmt.Errorf("--where: %w", err)
		}
		q.Where = expr
	}

	switch displayStr {
	case "stream":
		q.Display = deltadb.DisplayStream
	case "exprs":
		q.Display = deltadb.DisplayExprs
		for _, part := range strings.Split(outputExpr, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			expr, err := parseExpr(part)
			if err != nil {
				return fmt.Errorf("--output %q: %w", part, err)
			}
			q.Output = append(q.Output, expr)
		}
	case "objects":
		q.Display = deltadb.DisplayObjects
	default:
		return fmt.Errorf("unknown --display %q", displayStr)
	}

	if t0Str != "" || t1Str != "" {
		t0, err := parseTime(t0Str)
		if err != nil {
			return fmt.Errorf("--t0: %w", err)
		}
		t1, err := parseTime(t1Str)
		if err != nil {
			return fmt.Errorf("--t1: %w", err)
		}
		return q.RunReplay(historyDir, t0, t1)
	}

	at := time.Now().UTC()
	if atStr != "" {
		parsed, err := parseTime(atStr)
		if err != nil {
			return fmt.Errorf("--at: %w", err)
		}
		at = parsed
	}
	tb, err := deltadb.OpenSnapshot(historyDir, nil, at)
	if err != nil {
		return err
	}
	defer tb.Close()
	return q.RunSnapshot(tb, at)
}

func parseExpr(s string) (*jx.Value, error) {
	v, errs := jx.Parse([]byte(s), jx.ModePermissive)
	if len(errs) > 0 {
		return nil, fmt.Errorf("%s", errs[0].Message)
	}
	return v, nil
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
