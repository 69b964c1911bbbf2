package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/viewcache"
)

func newNodeCmd() *cobra.Command {
	var (
		pool, id string
		watch    bool
	)
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Show one node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStack(cmd, func(ctx context.Context, s *stack) error {
				return runNode(ctx, s, cmd.OutOrStdout(), nodeParams{PoolID: pool, NodeID: id}, watch)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&pool, "pool", "", "pool id")
	f.StringVar(&id, "id", "", "node id")
	f.BoolVar(&watch, "watch", false, "keep polling and reprint on change")
	_ = cmd.MarkFlagRequired("pool")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func runNode(ctx context.Context, s *stack, w io.Writer, p nodeParams, watch bool) error {
	vo := viewcache.EntityViewOptions[nodeParams, node]{
		Getter:  s.get,
		Tracker: s.tracker,
		Logger:  s.vlog,
		Hooks:   s.hooks,
	}
	if watch {
		vo.PollInterval = s.cfg.Watch.Interval
	}
	view, err := viewcache.NewEntityView(vo)
	if err != nil {
		return err
	}
	defer view.Dispose()

	if err := view.SetParams(ctx, p); err != nil {
		return err
	}
	scr := &screen{w: w}
	n, _ := view.Item().Value()
	scr.show(renderNode(n))
	if !watch {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var subs viewcache.Subscriptions
	defer subs.Unsubscribe()
	subs.Add(
		view.Item().Subscribe(func(n node) { scr.show(renderNode(n)) }),
		view.Error().Subscribe(func(se *viewcache.ServerError) {
			s.log.Warn("poll failed", zap.String("node", p.NodeID), zap.Error(se))
		}),
		view.Deleted().Subscribe(func(string) {
			fmt.Fprintf(w, "node %s was removed from pool %s\n", p.NodeID, p.PoolID)
			cancel()
		}),
	)
	<-ctx.Done()
	return nil
}
