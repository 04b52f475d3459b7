package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/runger/shellmark/internal/cmdutil"
	"github.com/runger/shellmark/internal/storage"
)

// commandFlags are the editable fields of a command.
type commandFlags struct {
	alias       string
	description string
	category    string
	source      string
	tags        []string
}

func (f *commandFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.alias, "alias", "a", "", "alias that recalls the command directly")
	fs.StringVarP(&f.description, "description", "d", "", "description; #words become tags")
	fs.StringVarP(&f.category, "category", "c", "", "category (default user)")
	fs.StringVar(&f.source, "source", "", "source (default user)")
	fs.StringSliceVarP(&f.tags, "tag", "t", nil, "tag (repeatable)")
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func newAddCmd(a *app) *cobra.Command {
	var flags commandFlags
	cmd := &cobra.Command{
		Use:     "add <command...>",
		Short:   "Bookmark a command",
		GroupID: groupCore,
		Long: `Bookmark a shell command.

Placeholders written as {{name}} make the command a template that matches
concrete invocations when searching.

Examples:
  shellmark add 'git log --oneline -n {{count}}' -a gl -d "recent #git history"
  shellmark add -t docker -- docker compose up -d {{service}}`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}

			c := &storage.Command{
				Category:    flags.category,
				Source:      flags.source,
				Alias:       optional(flags.alias),
				Cmd:         strings.Join(args, " "),
				Description: optional(flags.description),
				Tags:        flags.tags,
			}
			if err := store.InsertCommand(cmd.Context(), c); err != nil {
				if errors.Is(err, storage.ErrAlreadyExists) {
					return fmt.Errorf("%w: use 'shellmark update' to change it", err)
				}
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%sAdded%s %s\n", colorGreen, colorReset, c.ID)
			printCommand(out, *c, 0)
			if vars := cmdutil.ExtractVariables(c.Cmd); len(vars) > 0 {
				names := make([]string, len(vars))
				for i, v := range vars {
					names[i] = v.Name
				}
				fmt.Fprintf(out, "%svariables: %s%s\n", colorDim, strings.Join(names, ", "), colorReset)
			}
			return nil
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

func newUpdateCmd(a *app) *cobra.Command {
	var (
		flags  commandFlags
		newCmd string
	)
	cmd := &cobra.Command{
		Use:     "update <id>",
		Short:   "Change a bookmarked command",
		GroupID: groupCore,
		Long: `Change a bookmarked command. Only the given flags are changed; an empty
--alias or --description clears the field.

Examples:
  shellmark update 3f2c... --cmd 'git log --oneline -n 20'
  shellmark update 3f2c... --alias ''`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			c, err := store.GetCommand(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fs := cmd.Flags()
			if fs.Changed("cmd") {
				c.Cmd = newCmd
			}
			if fs.Changed("alias") {
				c.Alias = optional(flags.alias)
			}
			if fs.Changed("description") {
				c.Description = optional(flags.description)
			}
			if fs.Changed("category") {
				c.Category = flags.category
			}
			if fs.Changed("source") {
				c.Source = flags.source
			}
			if fs.Changed("tag") {
				c.Tags = flags.tags
			}

			if err := store.UpdateCommand(cmd.Context(), c); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%sUpdated%s %s\n", colorGreen, colorReset, c.ID)
			printCommand(out, *c, 0)
			return nil
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().StringVar(&newCmd, "cmd", "", "new command text")
	return cmd
}

func newRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>...",
		Short:   "Delete bookmarked commands",
		GroupID: groupCore,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			var errs []error
			for _, id := range args {
				if err := store.DeleteCommand(cmd.Context(), id); err != nil {
					errs = append(errs, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%sDeleted%s %s\n", colorGreen, colorReset, id)
			}
			return errors.Join(errs...)
		},
	}
}

func newUseCmd(a *app) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:     "use <id>",
		Short:   "Record a use of a command in the current directory",
		GroupID: groupCore,
		Long: `Record that a bookmarked command was run from a directory. Searches made
from the same directory, or near it, rank the command higher.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := workingDir(path)
			if err != nil {
				return err
			}
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			n, err := store.IncrementUsage(cmd.Context(), args[0], dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "directory the command was used in (default: working directory)")
	return cmd
}

func newTagsCmd(a *app) *cobra.Command {
	var categories bool
	cmd := &cobra.Command{
		Use:     "tags",
		Short:   "List tags, or categories with --categories",
		GroupID: groupCore,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if categories {
				list, err := store.ListCategories(cmd.Context())
				if err != nil {
					return err
				}
				for _, c := range list {
					fmt.Fprintln(out, c)
				}
				return nil
			}

			tags, err := store.ListTags(cmd.Context())
			if err != nil {
				return err
			}
			for _, t := range tags {
				fmt.Fprintf(out, "%s%s%s %d\n", colorCyan, t.Tag, colorReset, t.Count)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&categories, "categories", false, "list categories instead of tags")
	return cmd
}
