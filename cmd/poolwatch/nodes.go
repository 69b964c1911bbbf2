package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/viewcache"
	"github.com/unkn0wn-root/viewcache/presenter"
)

const nodeSelect = "id,state,schedulingState,vmSize,ipAddress,runningTasksCount,stateTransitionTime"

type nodesOptions struct {
	pool  string
	state string
	sort  string
	desc  bool
	all   bool
	watch bool
}

func newNodesCmd() *cobra.Command {
	var o nodesOptions
	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "List the nodes of a pool",
		Long: `Lists the nodes of a pool, one page by default. With --watch the list is
polled and reprinted whenever it changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, ok := nodeColumns[o.sort]; o.sort != "" && !ok {
				return fmt.Errorf("unknown sort column %q (want one of %s)", o.sort, columnNames())
			}
			return withStack(cmd, func(ctx context.Context, s *stack) error {
				return runNodes(ctx, s, cmd.OutOrStdout(), o)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.pool, "pool", "", "pool id")
	f.StringVar(&o.state, "state", "", "only nodes in this state, e.g. idle")
	f.StringVar(&o.sort, "sort", "", "sort column: "+columnNames())
	f.BoolVar(&o.desc, "desc", false, "sort descending")
	f.BoolVar(&o.all, "all", false, "load every page")
	f.BoolVar(&o.watch, "watch", false, "keep polling and reprint on change")
	_ = cmd.MarkFlagRequired("pool")
	return cmd
}

func runNodes(ctx context.Context, s *stack, w io.Writer, o nodesOptions) error {
	opts := viewcache.ListOptions{PageSize: s.cfg.API.PageSize, Select: nodeSelect}
	if o.state != "" {
		opts.Filter = fmt.Sprintf("state eq '%s'", o.state)
	}
	vo := viewcache.ListViewOptions[nodeParams, node]{
		Getter:  s.list,
		Options: opts,
		Match:   func(n node, lo viewcache.ListOptions) bool { return matchNode(n, lo.Filter) },
		PollAll: o.all,
		Tracker: s.tracker,
		Logger:  s.vlog,
		Hooks:   s.hooks,
	}
	if o.watch {
		vo.PollInterval = s.cfg.Watch.Interval
	}
	view, err := viewcache.NewListView(vo)
	if err != nil {
		return err
	}
	defer view.Dispose()

	dir := presenter.Asc
	if o.desc {
		dir = presenter.Desc
	}
	pres := presenter.New[node](view, presenter.Config[node]{
		Compare: nodeColumns,
		Initial: presenter.SortBy{Key: o.sort, Direction: dir},
		Logger:  s.vlog,
	})
	defer pres.Dispose()

	if err := view.SetParams(nodeParams{PoolID: o.pool}); err != nil {
		return err
	}
	if o.all {
		_, err = view.FetchAll(ctx)
	} else {
		_, err = view.FetchNext(ctx, false)
	}
	if err != nil {
		return err
	}

	scr := &screen{w: w}
	render := func(items []node) {
		more, _ := view.HasMore().Value()
		status, _ := pres.SortingStatus().Value()
		scr.show(renderNodes(items, more, status))
	}
	items, _ := pres.Items().Value()
	render(items)
	if !o.watch {
		return nil
	}

	var subs viewcache.Subscriptions
	defer subs.Unsubscribe()
	subs.Add(
		pres.Items().Subscribe(render),
		view.Error().Subscribe(func(se *viewcache.ServerError) {
			s.log.Warn("poll failed", zap.String("pool", o.pool), zap.Error(se))
		}),
	)
	<-ctx.Done()
	return nil
}

func columnNames() string {
	names := make([]string, 0, len(nodeColumns))
	for k := range nodeColumns {
		names = append(names, k)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
