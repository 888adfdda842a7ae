package main

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/sshdesk/internal/appconfig"
	"pkt.systems/sshdesk/internal/savedhosts"
	"pkt.systems/sshdesk/schema"
)

func newHostsCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "hosts",
		Short: "Manage saved connections",
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file")

	cmd.AddCommand(newHostsListCmd(&cfgPath))
	cmd.AddCommand(newHostsAddCmd(&cfgPath))
	cmd.AddCommand(newHostsRemoveCmd(&cfgPath))

	return cmd
}

func openHostStore(cmd *cobra.Command, cfgPath string) (*savedhosts.Store, appconfig.Config, error) {
	cfg, err := appconfig.Load(cfgPath)
	if err != nil {
		return nil, appconfig.Config{}, err
	}
	store, err := savedhosts.NewStoreWithLogger(cfg.Hosts.File, cfg.Hosts.KeyStorePath, pslog.Ctx(cmd.Context()))
	if err != nil {
		return nil, appconfig.Config{}, err
	}
	return store, cfg, nil
}

func newHostsListCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openHostStore(cmd, *cfgPath)
			if err != nil {
				return err
			}
			entries, err := store.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, entry := range entries {
				_, _ = fmt.Fprintf(out, "%d\t%s@%s\n", i+1, entry.Username, entry.Host)
			}
			return nil
		},
	}
}

func newHostsAddCmd(cfgPath *string) *cobra.Command {
	var secretFromStdin bool
	var identity string
	cmd := &cobra.Command{
		Use:   "add <user@host>",
		Short: "Save a connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tgt, err := parseTarget(args[0], "")
			if err != nil {
				return err
			}
			secret, err := resolveSecret(cmd, bufio.NewReader(cmd.InOrStdin()), identity, secretFromStdin, tgt.Entry)
			if err != nil {
				return err
			}
			tgt.Entry.Secret = secret
			store, _, err := openHostStore(cmd, *cfgPath)
			if err != nil {
				return err
			}
			if err := store.Add(tgt.Entry); err != nil {
				if errors.Is(err, schema.ErrDuplicateEntry) {
					return fmt.Errorf("%s@%s is already saved", tgt.Entry.Username, tgt.Entry.Host)
				}
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "saved %s@%s\n", tgt.Entry.Username, tgt.Entry.Host)
			return err
		},
	}
	cmd.Flags().BoolVar(&secretFromStdin, "secret-from-stdin", false, "read the password from the first line of stdin")
	cmd.Flags().StringVarP(&identity, "identity", "i", "", "private key file saved instead of a password")
	return cmd
}

func newHostsRemoveCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <number>",
		Short: "Remove a saved connection by its list number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openHostStore(cmd, *cfgPath)
			if err != nil {
				return err
			}
			entry, err := savedEntry(store, args[0])
			if err != nil {
				return err
			}
			if err := store.Remove(entry); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %s@%s\n", entry.Username, entry.Host)
			return err
		},
	}
}

// savedEntry resolves a 1-based list number from `hosts list`.
func savedEntry(store *savedhosts.Store, ref string) (schema.HostEntry, error) {
	if store == nil {
		return schema.HostEntry{}, errors.New("saved connections not configured")
	}
	idx, err := strconv.Atoi(strings.TrimSpace(ref))
	if err != nil {
		return schema.HostEntry{}, fmt.Errorf("invalid saved connection number %q", ref)
	}
	entries, err := store.List()
	if err != nil {
		return schema.HostEntry{}, err
	}
	if idx < 1 || idx > len(entries) {
		return schema.HostEntry{}, fmt.Errorf("%w: %d", schema.ErrEntryNotFound, idx)
	}
	return entries[idx-1], nil
}
