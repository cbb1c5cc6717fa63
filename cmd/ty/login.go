package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newLoginCmd() *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an API token for the export target",
		Long:  "Prompts for a Jira or GitHub API token and stores it under ~/.ticketyard with owner-only permissions.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, target)
		},
	}

	cmd.Flags().StringVarP(&target, "target", "t", "jira", "export target the token is for (jira or github)")
	return cmd
}

func runLogin(cmd *cobra.Command, target string) error {
	if target != "jira" && target != "github" {
		return fmt.Errorf("unknown target %q: use jira or github", target)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Enter %s API token: ", target)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return fmt.Errorf("token is empty")
	}

	path, err := tokenPath(target)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Token stored in %s\n", path)
	return nil
}

// tokenPath returns the per-target credentials file under the home directory.
func tokenPath(target string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".ticketyard", target+"_token"), nil
}

// loadToken reads the token stored by ty login for the given target.
func loadToken(target string) (string, error) {
	path, err := tokenPath(target)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("no stored token for %s (run 'ty login --target %s'): %w", target, target, err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("stored token for %s is empty", target)
	}
	return token, nil
}
