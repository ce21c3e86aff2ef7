package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/meilifed/internal/domain/index"
	indexuc "github.com/kailas-cloud/meilifed/internal/usecase/index"
	"github.com/kailas-cloud/meilifed/internal/usecase/provision"
)

func newIndexesCmd(flags *globalFlags) *cobra.Command {
	var match string

	cmd := &cobra.Command{
		Use:   "indexes",
		Short: "List the configured indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := flags.offlineApp(cmd.Context())
			if err != nil {
				return err
			}
			return printIndexes(cmd.OutOrStdout(), a, match)
		},
	}
	cmd.Flags().StringVar(&match, "match", "", "Glob pattern on the index id (e.g. \"blog_*\")")
	return cmd
}

func newDumpIndexesCmd(flags *globalFlags) *cobra.Command {
	var remoteOnly bool

	cmd := &cobra.Command{
		Use:   "dump-indexes",
		Short: "Dump the remote index references",
		Long: `Dump the affixed uid, context keys, primary key and repository of every
configured index. With --remote, list what the engine actually holds and
mark which uids are managed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := flags.offlineApp(cmd.Context())
			if err != nil {
				return err
			}
			if remoteOnly {
				return dumpRemote(cmd.Context(), cmd.OutOrStdout(), a)
			}
			return dumpIndexes(cmd.OutOrStdout(), a)
		},
	}
	cmd.Flags().BoolVar(&remoteOnly, "remote", false, "List the indexes present on the engine")
	return cmd
}

func newGroupsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List the configured search groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := flags.offlineApp(cmd.Context())
			if err != nil {
				return err
			}
			return printGroups(cmd.OutOrStdout(), a)
		},
	}
}

func newSyncCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sync [pattern]",
		Short: "Create missing indexes and push their settings",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := ""
			if len(args) == 1 {
				pattern = args[0]
			}
			cfg, logger, err := flags.setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			a, err := newApp(cmd.Context(), cfg, logger, false)
			if err != nil {
				return err
			}
			defer a.close()
			return runSync(cmd.Context(), cmd.OutOrStdout(), a, pattern)
		},
	}
}

// offlineApp builds the catalog without connecting the cache store.
func (f *globalFlags) offlineApp(ctx context.Context) (*app, error) {
	cfg, err := f.load()
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg, zap.NewNop(), false)
}

func printAffixes(w io.Writer, a *app) {
	if p := a.codec.Prefix(); p != "" {
		fmt.Fprintf(w, "Prefix: %s\n", p)
	}
	if s := a.codec.Suffix(); s != "" {
		fmt.Fprintf(w, "Suffix: %s\n", s)
	}
}

func printIndexes(w io.Writer, a *app, match string) error {
	printAffixes(w, a)
	affixed := a.codec.Prefix() != "" || a.codec.Suffix() != ""

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := []string{"ID", "CONTEXT", "PK", "REPOSITORY"}
	if affixed {
		header = slices.Insert(header, 1, "AFFIXED")
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	svc := indexuc.New(a.engine, a.indexes, a.codec, a.logger)
	for _, c := range svc.Configured(match) {
		row := []string{c.Index.ID(), contextKeys(c.Index), c.Index.PrimaryKey(), a.repositoryOf(c.Index.ID())}
		if affixed {
			row = slices.Insert(row, 1, c.RemoteUID)
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func dumpIndexes(w io.Writer, a *app) error {
	printAffixes(w, a)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "UID\tCONTEXT\tPK\tREPOSITORY")
	for _, idx := range a.indexes.All() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.codec.Add(idx.ID()), contextKeys(idx), idx.PrimaryKey(), a.repositoryOf(idx.ID()))
	}
	return tw.Flush()
}

func dumpRemote(ctx context.Context, w io.Writer, a *app) error {
	svc := indexuc.New(a.engine, a.indexes, a.codec, a.logger)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "UID\tPK\tMANAGED\tUPDATED")
	const pageSize = 100
	for offset := 0; ; offset += pageSize {
		page, err := svc.ListRemote(ctx, offset, pageSize)
		if err != nil {
			return err
		}
		for _, r := range page.Results {
			managed := "-"
			if id := a.codec.Remove(r.UID); a.codec.Add(id) == r.UID && a.indexes.IsManaged(id) {
				managed = id
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.UID, r.PrimaryKey, managed, r.UpdatedAt)
		}
		if len(page.Results) < pageSize || offset+pageSize >= page.Total {
			break
		}
	}
	return tw.Flush()
}

func printGroups(w io.Writer, a *app) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "GROUP\tINDEXES")
	for _, g := range a.groups.All() {
		members := make([]string, 0, len(g.Members()))
		for _, m := range g.Members() {
			members = append(members, fmt.Sprintf("%s (%g)", m.Index, m.Weight))
		}
		fmt.Fprintf(tw, "%s\t%s\n", g.Name(), strings.Join(members, ", "))
	}
	return tw.Flush()
}

func runSync(ctx context.Context, w io.Writer, a *app, pattern string) error {
	outcomes := a.syncer.Sync(ctx, pattern)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tSTATE\tCREATED\tSETTINGS\tERROR")
	failed := 0
	for _, o := range outcomes {
		msg := ""
		if o.Err != nil {
			failed++
			msg = o.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%s\n", o.Index, stateOf(o), o.Created, o.SettingsUpdated, msg)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d indexes failed to sync", failed, len(outcomes))
	}
	return nil
}

func stateOf(o provision.Outcome) provision.State {
	if o.State == "" {
		return provision.StateChecking
	}
	return o.State
}

func (a *app) repositoryOf(id string) string {
	repo, err := a.indexes.RepositoryFor(id)
	if err != nil || repo == nil {
		return ""
	}
	return repo.Name()
}

func contextKeys(idx index.Index) string {
	keys := make([]string, 0, len(idx.Context()))
	for k := range idx.Context() {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return strings.Join(keys, ", ")
}
