package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/runger/shellmark/internal/completion"
	"github.com/runger/shellmark/internal/storage"
)

func newCompletionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "completion",
		Short:   "Manage value suggestions for template variables",
		GroupID: groupSetup,
		Long: `Manage value suggestions for {{variables}}.

A completion maps a variable name to a shell command whose output lines are
offered as values. A completion bound to a root command (the first word of a
template, such as git) wins over a global one for the same variable.

Examples:
  shellmark completion add branch 'git branch --format="%(refname:short)"' --root git
  shellmark completion add namespace 'kubectl get ns -o name | cut -d/ -f2'
  shellmark completion fetch 'git checkout {{branch}}'`,
	}
	cmd.AddCommand(
		newCompletionAddCmd(a),
		newCompletionRmCmd(a),
		newCompletionListCmd(a),
		newCompletionFetchCmd(a),
	)
	return cmd
}

func newCompletionAddCmd(a *app) *cobra.Command {
	var root string
	cmd := &cobra.Command{
		Use:   "add <variable> <provider...>",
		Short: "Register a suggestions provider for a variable",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			c := &storage.VariableCompletion{
				RootCmd:             root,
				Variable:            args[0],
				SuggestionsProvider: strings.Join(args[1:], " "),
			}
			if err := store.InsertCompletion(cmd.Context(), c); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%sAdded%s %s\n", colorGreen, colorReset, c.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "only for commands starting with this word")
	return cmd
}

func newCompletionRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			if err := store.DeleteCompletion(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%sDeleted%s %s\n", colorGreen, colorReset, args[0])
			return nil
		},
	}
}

func newCompletionListCmd(a *app) *cobra.Command {
	var root string
	cmd := &cobra.Command{
		Use:   "list [variable...]",
		Short: "List completions",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			q := storage.CompletionQuery{Variables: args}
			if cmd.Flags().Changed("root") {
				q.RootCmd = &root
			}
			list, err := store.ListCompletions(cmd.Context(), q)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, c := range list {
				scope := "*"
				if c.RootCmd != "" {
					scope = c.RootCmd
				}
				fmt.Fprintf(out, "%s  %s%s%s %s{{%s}}%s  %s\n",
					c.ID, colorDim, scope, colorReset, colorCyan, c.Variable, colorReset, c.SuggestionsProvider)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "completions for this root command plus the global ones")
	return cmd
}

func newCompletionFetchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <command...>",
		Short: "Show the suggested values for each variable of a command",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			f := completion.NewFetcher(store, completion.Config{
				Logger:         a.logger,
				Timeout:        a.cfg.CompletionTimeout(),
				MaxConcurrency: a.cfg.Completion.MaxConcurrency,
			})
			results, err := f.Fetch(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}

			out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
			for _, r := range results {
				fmt.Fprintf(out, "%s{{%s}}%s\n", colorCyan, r.Variable.Name, colorReset)
				switch {
				case r.Err != nil:
					fmt.Fprintf(errOut, "  %serror:%s %v\n", colorRed, colorReset, r.Err)
				case r.Provider == "":
					fmt.Fprintf(out, "  %s(no completion registered)%s\n", colorDim, colorReset)
				default:
					for _, v := range r.Values {
						fmt.Fprintf(out, "  %s\n", v)
					}
				}
			}
			return nil
		},
	}
}
