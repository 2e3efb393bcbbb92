package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"mobsim/internal/persistence/archive"
	"mobsim/internal/persistence/indexdb"
	"mobsim/internal/persistence/snapshot"
)

func newInspectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Read snapshots and the sqlite index of a world",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "snapshot [path]",
		Short: "Summarize a snapshot (default: latest)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				p, _, ok, err := archive.LatestSnapshot(filepath.Join(a.cfg.WorldDir(), "snapshots"))
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no snapshots under %s", a.cfg.WorldDir())
				}
				path = p
			}
			snap, err := snapshot.ReadSnapshot(path)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), summarize(path, snap))
		},
	})

	var from, to uint64
	removals := &cobra.Command{
		Use:   "removals",
		Short: "Count agent removals by reason over a tick range",
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := openIndex(a)
			if err != nil {
				return err
			}
			defer idx.Close()
			counts, err := idx.RemovalCounts(cmd.Context(), from, to)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), counts)
		},
	}
	removals.Flags().Uint64Var(&from, "from", 0, "first tick")
	removals.Flags().Uint64Var(&to, "to", ^uint64(0)>>1, "last tick")

	var limit int
	audits := &cobra.Command{
		Use:   "audits <agent-id>",
		Short: "List the most recent audits of an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := openIndex(a)
			if err != nil {
				return err
			}
			defer idx.Close()
			entries, err := idx.AgentAudits(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entries)
		},
	}
	audits.Flags().IntVar(&limit, "limit", 50, "max entries")

	latest := &cobra.Command{
		Use:   "latest",
		Short: "Show the newest indexed snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := openIndex(a)
			if err != nil {
				return err
			}
			defer idx.Close()
			info, ok, err := idx.LatestSnapshot(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no snapshots indexed")
			}
			return printJSON(cmd.OutOrStdout(), info)
		},
	}

	cmd.AddCommand(removals, audits, latest)
	return cmd
}

func openIndex(a *app) (*indexdb.SQLiteIndex, error) {
	return indexdb.OpenSQLite(filepath.Join(a.cfg.WorldDir(), "index", "world.sqlite"))
}

type snapshotSummary struct {
	Path       string          `json:"path"`
	Header     snapshot.Header `json:"header"`
	Seed       int64           `json:"seed"`
	Difficulty int             `json:"difficulty"`
	Agents     int             `json:"agents"`
	ByKind     map[string]int  `json:"by_kind"`
	Players    int             `json:"players"`
	Items      int             `json:"items"`
	Knots      int             `json:"knots"`
	Blocks     int             `json:"blocks"`
}

func summarize(path string, snap snapshot.SnapshotV1) snapshotSummary {
	s := snapshotSummary{
		Path:       path,
		Header:     snap.Header,
		Seed:       snap.Seed,
		Difficulty: snap.Difficulty,
		Agents:     len(snap.Agents),
		ByKind:     map[string]int{},
		Players:    len(snap.Players),
		Items:      len(snap.Items),
		Knots:      len(snap.Knots),
		Blocks:     len(snap.Blocks),
	}
	for _, ag := range snap.Agents {
		s.ByKind[ag.Kind]++
	}
	return s
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
