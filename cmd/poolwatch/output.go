package main

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/unkn0wn-root/viewcache/presenter"
)

// screen writes rendered snapshots, skipping one identical to the last.
type screen struct {
	w io.Writer

	mu   sync.Mutex
	last string
}

func (s *screen) show(out string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if out == s.last {
		return
	}
	s.last = out
	_, _ = io.WriteString(s.w, out)
}

func renderNodes(items []node, more bool, status presenter.SortingStatus) string {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tSCHEDULING\tTASKS\tSINCE")
	for _, n := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", n.ID, n.State, n.SchedulingState, n.RunningTasks, since(n.StateTransitionTime))
	}
	_ = tw.Flush()

	fmt.Fprintf(&buf, "%d node(s)", len(items))
	if more {
		buf.WriteString(", more available (--all)")
	}
	if status == presenter.Partial {
		buf.WriteString(", sorted within loaded pages")
	}
	buf.WriteString("\n")
	return buf.String()
}

func renderNode(n node) string {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "id:\t%s\n", n.ID)
	fmt.Fprintf(tw, "state:\t%s\n", n.State)
	fmt.Fprintf(tw, "scheduling:\t%s\n", n.SchedulingState)
	fmt.Fprintf(tw, "vm size:\t%s\n", n.VMSize)
	fmt.Fprintf(tw, "ip:\t%s\n", n.IPAddress)
	fmt.Fprintf(tw, "running tasks:\t%d\n", n.RunningTasks)
	fmt.Fprintf(tw, "since:\t%s\n", since(n.StateTransitionTime))
	_ = tw.Flush()
	return buf.String()
}

func since(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
