package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/simp-lee/advocatedir/internal/client"
	"github.com/simp-lee/advocatedir/internal/domain"
	"github.com/simp-lee/advocatedir/internal/table"
)

func newListCmd(opts *rootOptions) *cobra.Command {
	sf := &stateFlags{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Fetch one page of advocates from the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := sf.state(cmd)
			if err != nil {
				return err
			}
			c, err := opts.newClient()
			if err != nil {
				return err
			}
			page, err := c.ListAdvocates(cmd.Context(), client.ListQuery{
				Page:     s.Page,
				PageSize: s.PageSize,
				Filters:  s.Filters(),
				Sort:     s.Sort,
			})
			if err != nil {
				return fmt.Errorf("list advocates: %s", client.Message(err))
			}

			out := cmd.OutOrStdout()
			st := newStyles(out, opts.noColor)
			renderAdvocates(out, st, page.Data)
			renderPagination(out, st, page.Pagination)
			return nil
		},
	}
	sf.register(cmd)
	return cmd
}

func newBrowseCmd(opts *rootOptions) *cobra.Command {
	sf := &stateFlags{}
	var batchSize int
	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Render a page through the client-side table cache",
		Long: `Browse renders a page the way the directory UI does: unfiltered pages come
from large cached batches, while name, city, degree, specialty and experience
filters are sent to the server. Area codes filter the cached records locally.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := sf.state(cmd)
			if err != nil {
				return err
			}
			c, err := opts.newClient()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			st := newStyles(out, opts.noColor)
			tbl := table.New(c,
				table.WithBatchSize(batchSize),
				table.WithLogger(opts.slogger()),
				table.WithNotifier(table.NotifierFunc(func(n table.Notice) {
					renderNotice(cmd.ErrOrStderr(), st, n)
				})),
			)
			defer tbl.Close()

			v := tbl.Load(cmd.Context(), s)
			// One-shot output cannot refresh, so settle the cache first.
			if v.Backfilling {
				tbl.Wait()
				v = tbl.Load(cmd.Context(), s)
			}
			if v.Error != "" {
				return fmt.Errorf("browse: %s", v.Error)
			}

			renderActiveFilters(out, st, v.ActiveFilters)
			renderAdvocates(out, st, v.Advocates)
			if v.TotalPages > 0 {
				fmt.Fprintln(out, st.Muted.Render(fmt.Sprintf("Page %d of %d, %d advocates", v.Page, v.TotalPages, v.TotalRecords)))
				renderPager(out, st, v.Page, v.VisiblePageNumbers)
			}

			s.Page = v.Page
			if q := s.Query().Encode(); q != "" {
				fmt.Fprintln(out, st.Muted.Render("Share: ?"+q))
			}
			return nil
		},
	}
	sf.register(cmd)
	cmd.Flags().IntVar(&batchSize, "batch-size", table.DefaultBatchSize, "records fetched per cache batch")
	return cmd
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var page, pageSize int
	cmd := &cobra.Command{
		Use:   "search <term>",
		Short: "Full-text search across names, cities, degrees and specialties",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newClient()
			if err != nil {
				return err
			}
			res, err := c.SearchAdvocates(cmd.Context(), args[0], page, pageSize)
			if err != nil {
				return fmt.Errorf("search: %s", client.Message(err))
			}

			out := cmd.OutOrStdout()
			st := newStyles(out, opts.noColor)
			renderAdvocates(out, st, res.Data)
			renderPagination(out, st, res.Pagination)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", table.DefaultPage, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", table.DefaultPageSize, "rows per page")
	return cmd
}

func newGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one advocate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := opts.newClient()
			if err != nil {
				return err
			}
			a, err := c.GetAdvocate(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("get advocate %d: %s", id, client.Message(err))
			}

			out := cmd.OutOrStdout()
			renderAdvocates(out, newStyles(out, opts.noColor), []domain.AdvocateWithRelations{*a})
			return nil
		},
	}
}

func newFiltersCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "filters",
		Short: "List the cities, degrees and specialties available as filters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newClient()
			if err != nil {
				return err
			}
			fo, err := c.FilterOptions(cmd.Context())
			if err != nil {
				return fmt.Errorf("filter options: %s", client.Message(err))
			}

			out := cmd.OutOrStdout()
			st := newStyles(out, opts.noColor)
			for _, group := range []struct {
				title string
				items []domain.FilterOption
			}{
				{"Cities", fo.Cities},
				{"Degrees", fo.Degrees},
				{"Specialties", fo.Specialties},
			} {
				fmt.Fprintln(out, st.Title.Render(group.title))
				rows := make([][]string, len(group.items))
				for i, o := range group.items {
					rows[i] = []string{strconv.FormatUint(uint64(o.ID), 10), o.Name, strconv.FormatInt(o.Count, 10)}
				}
				renderTable(out, st, []string{"ID", "Name", "Advocates"}, rows)
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 0)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid advocate id %q", raw)
	}
	return uint(id), nil
}
