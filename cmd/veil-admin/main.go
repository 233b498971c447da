// Copyright 2026 The Veil Authors
// SPDX-License-Identifier: Apache-2.0

// veil-admin is the operator CLI for a running veil-bot. It talks to
// the bot's local admin socket; access control is the socket file's
// permissions.
//
//	veil-admin ping
//	veil-admin status
//	veil-admin handles '!room:server'
//	veil-admin audit --limit 50
package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/veil-im/veil/lib/config"
	"github.com/veil-im/veil/lib/service"
	"github.com/veil-im/veil/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		socketPath  string
		auditLimit  int
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "", "path to config file (default: $VEIL_CONFIG)")
	flag.StringVar(&socketPath, "socket", "", "admin socket path (default: from config)")
	flag.IntVar(&auditLimit, "limit", 20, "number of audit entries to show")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println("veil-admin " + version.Info())
		return nil
	}

	if socketPath == "" {
		var cfg *config.Config
		var err error
		if configPath != "" {
			cfg, err = config.LoadFile(configPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return err
		}
		socketPath = cfg.Paths.AdminSocket
	}

	client := service.NewSocketClient(socketPath)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	switch flag.Arg(0) {
	case "ping":
		return ping(ctx, client)
	case "status":
		return showStats(ctx, client)
	case "handles":
		if flag.NArg() != 2 {
			return fmt.Errorf("usage: veil-admin handles <room-id>")
		}
		return showHandles(ctx, client, flag.Arg(1))
	case "audit":
		return showAudit(ctx, client, auditLimit)
	case "":
		return fmt.Errorf("usage: veil-admin [flags] ping | status | handles <room-id> | audit")
	default:
		return fmt.Errorf("unknown command %q (want ping, status, handles, or audit)", flag.Arg(0))
	}
}

// Wire types mirror veil-bot's admin socket responses.

type pingResponse struct {
	Message string `cbor:"message"`
	Version string `cbor:"version"`
}

type statsResponse struct {
	Version       string  `cbor:"version"`
	UserID        string  `cbor:"user_id"`
	UptimeSeconds float64 `cbor:"uptime_seconds"`

	Handles     int64 `cbor:"handles"`
	Communities int64 `cbor:"communities"`
	Admins      int64 `cbor:"admins"`
	AuditRows   int64 `cbor:"audit_rows"`
}

type handleRow struct {
	Pseudonym string `cbor:"pseudonym"`
	Member    string `cbor:"member"`
	CreatedAt int64  `cbor:"created_at"`
}

type listHandlesResponse struct {
	Community string      `cbor:"community"`
	Handles   []handleRow `cbor:"handles"`
}

type auditRow struct {
	ID        int64  `cbor:"id"`
	Action    string `cbor:"action"`
	Actor     string `cbor:"actor"`
	Target    string `cbor:"target"`
	Community string `cbor:"community"`
	At        int64  `cbor:"at"`
}

type auditResponse struct {
	Entries []auditRow `cbor:"entries"`
}

func ping(ctx context.Context, client *service.SocketClient) error {
	var response pingResponse
	if err := client.Call(ctx, "ping", nil, &response); err != nil {
		return err
	}
	fmt.Printf("%s (veil-bot %s)\n", response.Message, response.Version)
	return nil
}

func showStats(ctx context.Context, client *service.SocketClient) error {
	var stats statsResponse
	if err := client.Call(ctx, "stats", nil, &stats); err != nil {
		return err
	}

	fmt.Printf("veil-bot %s\n", stats.Version)
	fmt.Printf("  user:        %s\n", stats.UserID)
	fmt.Printf("  uptime:      %s\n", (time.Duration(stats.UptimeSeconds) * time.Second).String())
	fmt.Printf("  handles:     %d (across %d communities)\n", stats.Handles, stats.Communities)
	fmt.Printf("  bot admins:  %d\n", stats.Admins)
	fmt.Printf("  audit rows:  %d\n", stats.AuditRows)
	return nil
}

func showHandles(ctx context.Context, client *service.SocketClient, community string) error {
	var response listHandlesResponse
	err := client.Call(ctx, "list-handles", map[string]any{"community": community}, &response)
	if err != nil {
		return err
	}

	if len(response.Handles) == 0 {
		fmt.Printf("no handles in %s\n", response.Community)
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "PSEUDONYM\tMEMBER\tCREATED")
	for _, handle := range response.Handles {
		fmt.Fprintf(writer, "%s\t%s\t%s\n",
			handle.Pseudonym,
			handle.Member,
			time.UnixMilli(handle.CreatedAt).UTC().Format(time.RFC3339),
		)
	}
	return writer.Flush()
}

func showAudit(ctx context.Context, client *service.SocketClient, limit int) error {
	var response auditResponse
	err := client.Call(ctx, "audit", map[string]any{"limit": limit}, &response)
	if err != nil {
		return err
	}

	if len(response.Entries) == 0 {
		fmt.Println("audit log is empty")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tACTION\tACTOR\tTARGET\tCOMMUNITY\tAT")
	for _, entry := range response.Entries {
		fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%s\t%s\n",
			entry.ID,
			entry.Action,
			entry.Actor,
			entry.Target,
			entry.Community,
			time.UnixMilli(entry.At).UTC().Format(time.RFC3339),
		)
	}
	return writer.Flush()
}
