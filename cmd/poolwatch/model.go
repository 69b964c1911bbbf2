package main

import (
	"cmp"
	"strings"
	"time"

	"github.com/unkn0wn-root/viewcache/presenter"
)

// node is a compute node as the service reports it.
type node struct {
	ID                  string    `json:"id"`
	State               string    `json:"state,omitempty"`
	SchedulingState     string    `json:"schedulingState,omitempty"`
	VMSize              string    `json:"vmSize,omitempty"`
	IPAddress           string    `json:"ipAddress,omitempty"`
	RunningTasks        int       `json:"runningTasksCount,omitempty"`
	StateTransitionTime time.Time `json:"stateTransitionTime,omitempty"`
}

// nodeParams address the nodes of one pool, and one node in it.
type nodeParams struct {
	PoolID string
	NodeID string
}

func nodeKey(n node) string { return strings.ToLower(n.ID) }

func poolTarget(p nodeParams) string { return strings.ToLower(p.PoolID) }

// mergeNode copies the selected fields of fresh onto old.
func mergeNode(old, fresh node, fields []string) node {
	out := old
	for _, f := range fields {
		switch f {
		case "id":
			out.ID = fresh.ID
		case "state":
			out.State = fresh.State
		case "schedulingState":
			out.SchedulingState = fresh.SchedulingState
		case "vmSize":
			out.VMSize = fresh.VMSize
		case "ipAddress":
			out.IPAddress = fresh.IPAddress
		case "runningTasksCount":
			out.RunningTasks = fresh.RunningTasks
		case "stateTransitionTime":
			out.StateTransitionTime = fresh.StateTransitionTime
		}
	}
	return out
}

// matchNode accepts nodes for the simple filters poolwatch builds itself:
// "state eq '<state>'". Other filters accept everything.
func matchNode(n node, filter string) bool {
	const prefix = "state eq '"
	if !strings.HasPrefix(filter, prefix) || !strings.HasSuffix(filter, "'") {
		return true
	}
	want := strings.TrimSuffix(strings.TrimPrefix(filter, prefix), "'")
	return strings.EqualFold(n.State, want)
}

var nodeColumns = map[string]presenter.CompareFunc[node]{
	"id":    func(a, b node) int { return cmp.Compare(nodeKey(a), nodeKey(b)) },
	"state": func(a, b node) int { return cmp.Compare(a.State, b.State) },
	"tasks": func(a, b node) int { return cmp.Compare(a.RunningTasks, b.RunningTasks) },
	"since": func(a, b node) int { return a.StateTransitionTime.Compare(b.StateTransitionTime) },
}
