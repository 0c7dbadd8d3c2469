package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"jarvis/internal/contacts"
	"jarvis/internal/domain"
)

func contactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "Manage the contact book used for messaging",
	}

	open := func() (*contacts.Store, func(), error) {
		cfg, closeLog, err := loadConfig()
		if err != nil {
			return nil, nil, err
		}
		store, err := contacts.Open(cfg.Paths.Contacts, logger)
		if err != nil {
			closeLog()
			return nil, nil, err
		}
		return store, closeLog, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List contacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, done, err := open()
			if err != nil {
				return err
			}
			defer done()
			all := store.List()
			if len(all) == 0 {
				fmt.Println("No contacts yet. Add one with: jarvis contacts add <name> <+number>")
				return nil
			}
			names := make([]string, 0, len(all))
			for n := range all {
				names = append(names, n)
			}
			slices.Sort(names)
			for _, n := range names {
				fmt.Printf("  %-20s %s\n", n, all[n])
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name> <+number>",
		Short: "Add a contact",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, done, err := open()
			if err != nil {
				return err
			}
			defer done()
			if err := store.Add(args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("Added %s.\n", contacts.NormalizeName(args[0]))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, done, err := open()
			if err != nil {
				return err
			}
			defer done()
			if err := store.Remove(args[0]); err != nil {
				return err
			}
			fmt.Printf("Removed %s.\n", contacts.NormalizeName(args[0]))
			return nil
		},
	})
	return cmd
}

func authCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the Google authorization used by mail capabilities",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "login",
		Short: "Run the browser consent flow for every scope capabilities may need",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Printf("Opening your browser to authorize: %s\n", strings.Join(a.creds.Scopes(), ", "))
			tok, err := a.creds.Login(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Authorized. Token saved to %s (expires %s).\n", cfg.Paths.Token, tok.Expiry.Format(time.RFC1123))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the stored token's scopes and expiry",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			tok, err := a.creds.Current()
			if err != nil {
				return err
			}
			if tok == nil {
				fmt.Println("Not authorized. Run: jarvis auth login")
				return nil
			}
			state := "valid"
			if !tok.Valid(time.Now()) {
				state = "expired"
				if tok.RefreshToken != "" {
					state += " (will refresh on next use)"
				}
			}
			fmt.Printf("Token:   %s\n", state)
			fmt.Printf("Expires: %s\n", tok.Expiry.Format(time.RFC1123))
			fmt.Printf("Scopes:  %s\n", strings.Join(tok.Scopes, ", "))
			if missing := missingScopes(tok.Scopes, a.creds.Scopes()); len(missing) > 0 {
				fmt.Printf("Missing: %s (run: jarvis auth login)\n", strings.Join(missing, ", "))
			}
			return nil
		},
	})
	return cmd
}

func missingScopes(granted, wanted []string) []string {
	var out []string
	for _, s := range wanted {
		if !slices.Contains(granted, s) {
			out = append(out, s)
		}
	}
	return out
}

func historyCmd() *cobra.Command {
	var (
		limit  int
		macros bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent dispatches from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.journal == nil {
				return errNoJournal
			}
			ctx := context.Background()

			if macros {
				runs, err := a.journal.RecentMacros(ctx, limit)
				if err != nil {
					return err
				}
				for _, r := range runs {
					fmt.Printf("%s  %s\n", r.CreatedAt.Local().Format(time.DateTime), r.Summary)
				}
				return nil
			}

			entries, err := a.journal.Recent(ctx, limit)
			if err != nil {
				return err
			}
			for _, e := range entries {
				src := e.Source
				if e.MacroRun != "" {
					src = "macro"
				}
				fmt.Printf("%s  %-8s %-20s %-24s %5dms  %s\n",
					e.StartedAt.Local().Format(time.DateTime), src, e.Status, e.Capability, e.DurationMs, e.Message)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")
	cmd.Flags().BoolVar(&macros, "macros", false, "show macro runs instead of single dispatches")

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Count journal entries by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.journal == nil {
				return errNoJournal
			}
			counts, err := a.journal.StatusCounts(context.Background())
			if err != nil {
				return err
			}
			for _, s := range []domain.Status{domain.StatusOK, domain.StatusValidationError, domain.StatusHandlerError, domain.StatusUnknownCapability} {
				fmt.Printf("  %-20s %d\n", s, counts[s])
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Delete entries older than history.retentionDays",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.journal == nil {
				return errNoJournal
			}
			a.pruneHistory(context.Background())
			return nil
		},
	})
	return cmd
}
