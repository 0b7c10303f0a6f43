package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/kalambet/primer/internal/assistant"
	"github.com/kalambet/primer/internal/config"
	"github.com/kalambet/primer/internal/profile"
	"github.com/kalambet/primer/internal/tui"
)

// --- prefs ---

var prefsCmd = &cobra.Command{
	Use:     "prefs",
	Aliases: []string{"preferences"},
	Short:   "Show or change learning preferences",
}

var prefsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current preferences",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		return withApp(cmd, func(ctx context.Context, a *app) error {
			p := a.profile.Get()
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(p)
			}
			for _, f := range profile.Fields() {
				fmt.Fprintf(out, "  %s %s\n", colorize(colorBold, fmt.Sprintf("%-14s", f.Title()+":")), profile.Label(p.Value(f)))
			}
			return nil
		})
	},
}

var prefsSetCmd = &cobra.Command{
	Use:   "set <field> <value>",
	Short: "Set a preference (persona, skillLevel, learningPace, language)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setPreference(cmd, args[0], args[1])
	},
}

var prefsUnsetCmd = &cobra.Command{
	Use:   "unset <field>",
	Short: "Clear an optional preference (persona or skillLevel)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setPreference(cmd, args[0], "")
	},
}

func setPreference(cmd *cobra.Command, name, value string) error {
	f, err := profile.ParseField(name)
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if err := a.profile.Update(f, value); err != nil {
			return err
		}
		printSuccess("Set %s = %s", f, profile.Label(value))
		return nil
	})
}

var prefsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Upload local preferences to your profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			a.restoreSession(ctx)
			if err := a.profile.Synchronize(ctx); err != nil {
				return syncError(err)
			}
			printSuccess("Preferences synced")
			return nil
		})
	},
}

var prefsPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Replace local preferences with your saved profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.profile.Hydrate(ctx); err != nil {
				return syncError(err)
			}
			printSuccess("Preferences loaded from profile")
			fmt.Fprintln(cmd.OutOrStdout(), a.profile.Summary())
			return nil
		})
	},
}

func syncError(err error) error {
	if errors.Is(err, profile.ErrNotAuthenticated) || errors.Is(err, profile.ErrNoCredential) {
		return fmt.Errorf("not signed in; run `primer signin` first")
	}
	return err
}

var prefsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore default preferences",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will clear your local preferences. Use --confirm to proceed.")
			return nil
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.profile.Reset(); err != nil {
				return err
			}
			printSuccess("Preferences reset")
			return nil
		})
	},
}

var prefsEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit preferences interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			before := a.profile.Get()
			if _, err := tea.NewProgram(tui.NewPreferences(a.profile), tea.WithContext(ctx)).Run(); err != nil {
				return err
			}
			if a.profile.Get() == before {
				return nil
			}
			a.restoreSession(ctx)
			if a.profile.IsAuthenticated() {
				if err := a.profile.Synchronize(ctx); err != nil {
					printWarning("Saved locally; sync failed: %v", err)
					return nil
				}
			}
			printSuccess("Preferences saved")
			return nil
		})
	},
}

func init() {
	prefsShowCmd.Flags().Bool("json", false, "print as JSON")
	prefsResetCmd.Flags().Bool("confirm", false, "confirm reset")
	prefsCmd.AddCommand(prefsShowCmd, prefsSetCmd, prefsUnsetCmd, prefsSyncCmd, prefsPullCmd, prefsResetCmd, prefsEditCmd)
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the textbook assistant a question",
	Long: `Ask the textbook assistant a single question.

Examples:
  primer ask "What is a ROS 2 node?"
  primer ask --selection "$(pbpaste)" --page /docs/module-1/nodes "Explain this"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		selection, _ := cmd.Flags().GetString("selection")
		page, _ := cmd.Flags().GetString("page")

		return withApp(cmd, func(ctx context.Context, a *app) error {
			var (
				turn assistant.Turn
				err  error
			)
			if selection != "" {
				turn, err = a.assistant.AskAboutSelection(ctx, selection, question, page)
			} else {
				turn, err = a.assistant.Ask(ctx, question)
			}
			if err != nil {
				return err
			}
			if turn.Fallback {
				return errors.New(turn.Content)
			}
			printTurn(cmd, turn)
			return nil
		})
	},
}

func printTurn(cmd *cobra.Command, t assistant.Turn) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, t.Content)
	if len(t.Sources) == 0 {
		return
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, colorize(colorBold, "Sources:"))
	for _, s := range t.Sources {
		fmt.Fprintf(out, "  %s %s\n", s.Title, colorize(colorDim, s.URL))
	}
}

func init() {
	askCmd.Flags().String("selection", "", "selected page text the question is about")
	askCmd.Flags().String("page", "", "URL of the page the selection came from")
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the textbook assistant",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			a.restoreSession(ctx)
			model := tui.NewChat(ctx, a.assistant, a.profile.Summary())
			_, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
			return err
		})
	},
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List locally recorded questions and answers",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withApp(cmd, func(ctx context.Context, a *app) error {
			exchanges, err := a.store.RecentExchanges(limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(exchanges) == 0 {
				fmt.Fprintln(out, "No history yet.")
				return nil
			}
			for _, e := range exchanges {
				q := strings.ReplaceAll(e.Question, "\n", " ")
				if len(q) > 80 {
					q = q[:80] + "..."
				}
				fmt.Fprintf(out, "%s  %s  %-9s  %s\n",
					colorize(colorCyan, e.ID[:min(8, len(e.ID))]),
					e.CreatedAt.Local().Format("2006-01-02 15:04"),
					e.Status,
					q,
				)
			}
			return nil
		})
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the local question history",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete the local history. Use --confirm to proceed.")
			return nil
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			n, err := a.store.DeleteExchanges()
			if err != nil {
				return err
			}
			printSuccess("Deleted %d entries", n)
			return nil
		})
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of entries to list")
	historyClearCmd.Flags().Bool("confirm", false, "confirm deletion")
	historyCmd.AddCommand(historyClearCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.SetKey(key, value); err != nil {
			return err
		}
		printSuccess("Set %s", key)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a stored value so the default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configUnsetCmd)
}
