// Copyright 2026 The Veil Authors
// SPDX-License-Identifier: Apache-2.0

// veil-login authenticates the bot account against the Matrix
// homeserver and writes the session file veil-bot loads at startup.
// Run it once per deployment; the bot never sees the password.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/veil-im/veil/lib/config"
	"github.com/veil-im/veil/lib/secret"
	"github.com/veil-im/veil/lib/service"
	"github.com/veil-im/veil/lib/version"
	"github.com/veil-im/veil/messaging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath   string
		passwordFile string
		displayName  string
		showVersion  bool
	)
	flag.StringVar(&configPath, "config", "", "path to config file (default: $VEIL_CONFIG)")
	flag.StringVar(&passwordFile, "password-file", "", "path to file containing the password, or - to prompt (default: prompt)")
	flag.StringVar(&displayName, "display-name", "", "set the account display name after logging in")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println("veil-login " + version.Info())
		return nil
	}

	if flag.NArg() != 1 {
		return fmt.Errorf("usage: veil-login [flags] <username>")
	}
	username := flag.Arg(0)

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
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	password, err := readPassword(passwordFile)
	if err != nil {
		return err
	}
	defer password.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: cfg.Homeserver.URL,
	})
	if err != nil {
		return err
	}

	session, err := client.Login(ctx, username, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	defer session.Close()

	// Verify the token works before persisting it.
	userID, err := session.WhoAmI(ctx)
	if err != nil {
		return fmt.Errorf("session verification failed: %w", err)
	}

	if displayName != "" {
		if err := session.SetDisplayName(ctx, displayName); err != nil {
			return fmt.Errorf("setting display name: %w", err)
		}
	}

	if err := service.SaveSession(cfg.Paths.Session, cfg.Homeserver.URL, session); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Logged in as %s\n", userID)
	fmt.Fprintf(os.Stderr, "Session saved to %s\n", cfg.Paths.Session)
	return nil
}

// readPassword reads the bot account password. An empty or "-"
// passwordFile means an interactive no-echo prompt; anything else is a
// file path (surrounding whitespace stripped, as left by echo and
// printf).
func readPassword(passwordFile string) (*secret.Buffer, error) {
	if passwordFile != "" && passwordFile != "-" {
		buffer, err := secret.ReadFromPath(passwordFile)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", passwordFile, err)
		}
		return buffer, nil
	}

	stdinFD := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFD) {
		return nil, fmt.Errorf("no terminal available for password prompt (use --password-file)")
	}

	fmt.Fprint(os.Stderr, "Password: ")
	passwordBytes, err := term.ReadPassword(stdinFD)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}

	buffer, err := secret.NewFromBytes(passwordBytes)
	if err != nil {
		secret.Zero(passwordBytes)
		return nil, err
	}
	return buffer, nil
}
