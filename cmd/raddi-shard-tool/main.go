// Command raddi-shard-tool is a maintenance CLI over a table's shard set:
// list shards, print per-shard stats, verify a shard's cache/disk parity,
// and force a split at a given cut timestamp.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"

	"github.com/raddi-network/entrystore/table"
	"github.com/urfave/cli/v2"
)

var gitCommitSHA = ""

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, syscall.SIGTERM, syscall.SIGINT)
		select {
		case <-interrupt:
			fmt.Fprintln(os.Stderr, "received interrupt signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(interrupt)
	}()

	app := &cli.App{
		Name:        "raddi-shard-tool",
		Version:     gitCommitSHA,
		Description: "Maintenance and debug tool for an entry store table's shard files.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "db-path",
				Usage:    "parent directory containing the table's subdirectory",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "table",
				Usage:    "table name (subdirectory under db-path)",
				Required: true,
			},
		},
		Commands: []*cli.Command{
			newListCmd(),
			newStatCmd(),
			newVerifyCmd(),
			newSplitCmd(),
		},
	}

	sort.Sort(cli.FlagsByName(app.Flags))
	sort.Sort(cli.CommandsByName(app.Commands))

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openTable(c *cli.Context, readOnly bool) (*table.Table, error) {
	return table.Open(c.String("db-path"), c.String("table"), table.ReadOnly(readOnly))
}

func newListCmd() *cli.Command {
	return &cli.Command{
		Name:        "list",
		Description: "List every shard the table currently knows about.",
		Action: func(c *cli.Context) error {
			tbl, err := openTable(c, true)
			if err != nil {
				return err
			}
			for _, s := range tbl.Shards() {
				fmt.Printf("%08x\n", s.Base())
			}
			return nil
		},
	}
}

func newStatCmd() *cli.Command {
	return &cli.Command{
		Name:        "stat",
		Description: "Print entry count and on-disk size for each shard.",
		Action: func(c *cli.Context) error {
			tbl, err := openTable(c, true)
			if err != nil {
				return err
			}
			for _, s := range tbl.Shards() {
				count := s.Size(tbl)
				size, _ := s.DiskSize()
				fmt.Printf("%08x  entries=%d  bytes=%d\n", s.Base(), count, size)
			}
			return nil
		},
	}
}

func newVerifyCmd() *cli.Command {
	return &cli.Command{
		Name:        "verify",
		Description: "Verify that each shard's in-memory cache matches what is on disk after a close/reopen cycle.",
		Action: func(c *cli.Context) error {
			tbl, err := openTable(c, true)
			if err != nil {
				return err
			}
			var mismatches int
			for _, s := range tbl.Shards() {
				before := s.Size(tbl)
				s.Close()
				if !s.Advance(tbl) {
					fmt.Printf("%08x  FAIL: could not reopen\n", s.Base())
					mismatches++
					continue
				}
				after := s.Size(tbl)
				if before != after {
					fmt.Printf("%08x  FAIL: cache had %d entries, disk has %d\n", s.Base(), before, after)
					mismatches++
					continue
				}
				fmt.Printf("%08x  OK (%d entries)\n", s.Base(), after)
			}
			if mismatches > 0 {
				return fmt.Errorf("raddi-shard-tool: %d shard(s) failed verification", mismatches)
			}
			return nil
		},
	}
}

func newSplitCmd() *cli.Command {
	return &cli.Command{
		Name:        "split",
		Description: "Force-split the shard covering the given base timestamp at the given cut timestamp.",
		ArgsUsage:   "<base> <cut>",
		Action: func(c *cli.Context) error {
			if c.Args().Len() < 2 {
				return fmt.Errorf("raddi-shard-tool: split requires <base> <cut>")
			}
			base, err := strconv.ParseUint(c.Args().Get(0), 10, 32)
			if err != nil {
				return fmt.Errorf("raddi-shard-tool: invalid base: %w", err)
			}
			cut, err := strconv.ParseUint(c.Args().Get(1), 10, 32)
			if err != nil {
				return fmt.Errorf("raddi-shard-tool: invalid cut: %w", err)
			}

			tbl, err := openTable(c, false)
			if err != nil {
				return err
			}

			separated, err := tbl.Split(uint32(base), uint32(cut))
			if err != nil {
				return err
			}
			fmt.Printf("split %08x at %d: separated base=%08x\n", base, cut, separated.Base())
			return nil
		},
	}
}
