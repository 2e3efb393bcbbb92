package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newAdminCmd() *cobra.Command {
	var baseURL string
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Talk to a running server's loopback admin endpoints",
	}
	cmd.PersistentFlags().StringVar(&baseURL, "url", "http://127.0.0.1:8080", "server base url")

	cmd.AddCommand(&cobra.Command{
		Use:   "state",
		Short: "Print the world tick and metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return adminCall(cmd.OutOrStdout(), http.MethodGet, baseURL, "/admin/v1/state", nil, 5*time.Second)
		},
	}, &cobra.Command{
		Use:   "snapshot",
		Short: "Ask the world to write a snapshot now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return adminCall(cmd.OutOrStdout(), http.MethodPost, baseURL, "/admin/v1/snapshot", nil, 10*time.Second)
		},
	}, newAdminSpawnCmd(&baseURL), newAdminDropCmd(&baseURL), newAdminEquipCmd(&baseURL))
	return cmd
}

func newAdminSpawnCmd(baseURL *string) *cobra.Command {
	var (
		body spawnBody
		pos  []float64
	)
	cmd := &cobra.Command{
		Use:   "spawn KIND",
		Short: "Spawn a mob and print its agent id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := vec3Flag(pos)
			if err != nil {
				return err
			}
			body.Kind, body.Pos = args[0], p
			return adminCall(cmd.OutOrStdout(), http.MethodPost, *baseURL, "/admin/v1/spawn", body, 10*time.Second)
		},
	}
	f := cmd.Flags()
	f.Float64SliceVar(&pos, "pos", nil, "spawn position x,y,z")
	f.BoolVar(&body.Persistent, "persistent", false, "never despawn")
	f.BoolVar(&body.FromSpawner, "from-spawner", false, "mark as spawned by a spawner block")
	_ = cmd.MarkFlagRequired("pos")
	return cmd
}

func newAdminDropCmd(baseURL *string) *cobra.Command {
	var (
		body dropBody
		pos  []float64
	)
	cmd := &cobra.Command{
		Use:   "drop ITEM",
		Short: "Drop an item stack into the world",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := vec3Flag(pos)
			if err != nil {
				return err
			}
			body.Item.ID, body.Pos = args[0], p
			return adminCall(cmd.OutOrStdout(), http.MethodPost, *baseURL, "/admin/v1/drop", body, 5*time.Second)
		},
	}
	f := cmd.Flags()
	f.Float64SliceVar(&pos, "pos", nil, "drop position x,y,z")
	f.IntVar(&body.Item.Count, "count", 1, "stack size")
	f.StringSliceVar(&body.Item.Enchantments, "enchant", nil, "enchantments on the stack")
	_ = cmd.MarkFlagRequired("pos")
	return cmd
}

func newAdminEquipCmd(baseURL *string) *cobra.Command {
	var body equipBody
	cmd := &cobra.Command{
		Use:   "equip AGENT_ID ITEM",
		Short: "Put an item into an agent slot (98 main hand, 99 off hand, 100-103 feet to head)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body.AgentID, body.Item.ID = args[0], args[1]
			return adminCall(cmd.OutOrStdout(), http.MethodPost, *baseURL, "/admin/v1/equip", body, 5*time.Second)
		},
	}
	f := cmd.Flags()
	f.IntVar(&body.SlotCode, "slot", 98, "inventory slot code")
	f.IntVar(&body.Item.Count, "count", 1, "stack size")
	f.StringSliceVar(&body.Item.Enchantments, "enchant", nil, "enchantments on the item")
	return cmd
}

func vec3Flag(v []float64) ([3]float64, error) {
	if len(v) != 3 {
		return [3]float64{}, fmt.Errorf("--pos wants x,y,z, got %d values", len(v))
	}
	return [3]float64{v[0], v[1], v[2]}, nil
}

// adminCall sends body as JSON when it is non-nil and prints the reply.
func adminCall(out io.Writer, method, baseURL, path string, body any, timeout time.Duration) error {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + path
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, u, rd)
	if err != nil {
		return err
	}
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Fprintln(out, strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return nil
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
