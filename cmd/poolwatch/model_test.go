package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMergeNode_CopiesSelectedFieldsOnly(t *testing.T) {
	old := node{ID: "n1", State: "idle", VMSize: "d2", RunningTasks: 0}
	fresh := node{ID: "n1", State: "running", RunningTasks: 3}

	got := mergeNode(old, fresh, []string{"state", "runningTasksCount"})

	assert.Equal(t, "running", got.State)
	assert.Equal(t, 3, got.RunningTasks)
	assert.Equal(t, "d2", got.VMSize, "unselected field kept")
}

func TestMatchNode(t *testing.T) {
	tests := []struct {
		name   string
		state  string
		filter string
		want   bool
	}{
		{"NoFilter", "idle", "", true},
		{"Match", "idle", "state eq 'idle'", true},
		{"MatchCaseInsensitive", "Idle", "state eq 'idle'", true},
		{"Mismatch", "running", "state eq 'idle'", false},
		{"OtherFilterAccepts", "running", "vmSize eq 'd2'", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchNode(node{State: tt.state}, tt.filter))
		})
	}
}

func TestNodeColumns(t *testing.T) {
	a := node{ID: "A", State: "idle", RunningTasks: 1, StateTransitionTime: time.Unix(10, 0)}
	b := node{ID: "b", State: "running", RunningTasks: 2, StateTransitionTime: time.Unix(20, 0)}
	for name, cmp := range nodeColumns {
		assert.Negative(t, cmp(a, b), name)
		assert.Positive(t, cmp(b, a), name)
		assert.Zero(t, cmp(a, a), name)
	}
}

func TestScreen_SkipsIdenticalSnapshots(t *testing.T) {
	var buf []byte
	w := writerFunc(func(p []byte) (int, error) { buf = append(buf, p...); return len(p), nil })
	s := &screen{w: w}
	s.show("a\n")
	s.show("a\n")
	s.show("b\n")
	assert.Equal(t, "a\nb\n", string(buf))
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
