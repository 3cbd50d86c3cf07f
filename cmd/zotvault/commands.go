package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"emperror.dev/errors"
	"github.com/je4/zotvault/pkg/export"
	"github.com/je4/zotvault/pkg/zotero"
	"github.com/spf13/cobra"
)

func printResult(w io.Writer, result *export.Result) {
	if result.Status == export.StatusDryRun {
		fmt.Fprint(w, result.Content)
		return
	}
	fmt.Fprintf(w, "%s: %s (%s)\n", result.Status, result.Path, result.Key)
	if result.Commit != "" {
		fmt.Fprintf(w, "commit: %s\n", result.Commit)
	}
}

// runExport opens the app, runs do and prints the result.
func runExport(cmd *cobra.Command, flags *globalFlags, do func(a *app) (*export.Result, error)) error {
	a, err := newApp(cmd.Context(), flags, true)
	if err != nil {
		return err
	}
	defer a.Close()
	result, err := do(a)
	if err != nil {
		a.logger.Errorf("export failed: %v", err)
		return err
	}
	printResult(cmd.OutOrStdout(), result)
	return nil
}

func newDOICmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "doi <doi>",
		Short: "Export the note of the item with this doi",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, flags, func(a *app) (*export.Result, error) {
				return a.exp.ExportDOI(cmd.Context(), args[0])
			})
		},
	}
}

type queryFlags struct {
	tags       []string
	itemType   string
	collection string
	everything bool
	limit      int64
}

func (qf *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&qf.tags, "tag", nil, "only items with this tag (repeatable, zotero tag syntax)")
	cmd.Flags().StringVar(&qf.itemType, "type", "", "only items of this type, e.g. journalArticle or -attachment")
	cmd.Flags().StringVar(&qf.collection, "collection", "", "only items in this collection (key, name or path)")
	cmd.Flags().BoolVar(&qf.everything, "everything", false, "search all fields and full text")
}

func (qf *queryFlags) query(args []string) zotero.ItemQuery {
	query := zotero.ItemQuery{
		Q:          strings.Join(args, " "),
		QMode:      zotero.QModeTitleCreatorYear,
		Tag:        qf.tags,
		ItemType:   qf.itemType,
		Collection: qf.collection,
		Top:        true,
		Limit:      qf.limit,
	}
	if qf.everything {
		query.QMode = zotero.QModeEverything
	}
	return query
}

func newSearchCmd(flags *globalFlags) *cobra.Command {
	qf := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Export the note of the item matching the query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, flags, func(a *app) (*export.Result, error) {
				return a.exp.ExportQuery(cmd.Context(), qf.query(args))
			})
		},
	}
	qf.register(cmd)
	return cmd
}

func newKeyCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "key <itemkey>",
		Short: "Export the note of the item with this key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, flags, func(a *app) (*export.Result, error) {
				return a.exp.ExportKey(cmd.Context(), strings.ToUpper(args[0]))
			})
		},
	}
}

func newListCmd(flags *globalFlags) *cobra.Command {
	qf := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "list [query]",
		Short: "List matching items without exporting",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), flags, false)
			if err != nil {
				return err
			}
			defer a.Close()
			query, err := a.zot.ResolveQuery(cmd.Context(), qf.query(args))
			if err != nil {
				return err
			}
			items, err := a.zot.Items(cmd.Context(), query)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, item := range items {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", item.Key, item.GetYear(), item.GetDOI(), item.GetTitle())
			}
			return tw.Flush()
		},
	}
	qf.register(cmd)
	cmd.Flags().Int64Var(&qf.limit, "limit", 0, "maximum number of items, 0 lists all")
	return cmd
}

func newHistoryCmd(flags *globalFlags) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the exports recorded in the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), flags, false)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.ledger == nil {
				return errors.New("no ledger configured")
			}
			library := a.zot.LibraryPath()
			if all {
				library = ""
			}
			entries, err := a.ledger.List(cmd.Context(), library)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%v\t%s\t%s\n", e.Exported.Format("2006-01-02 15:04"), e.ItemKey, e.Version, strings.Join(e.NoteKeys, ","), e.Path)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "show all libraries")
	return cmd
}
