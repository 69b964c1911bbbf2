package zap

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/unkn0wn-root/viewcache"
)

func TestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := Logger{L: zap.New(core)}

	l.Debug("fetch", nil)
	l.Warn("provider get failed", viewcache.Fields{"key": "entity:nodes:p1:n1", "err": errors.New("timeout")})

	entries := logs.AllUntimed()
	if len(entries) != 2 {
		t.Fatalf("entries = %d", len(entries))
	}
	e := entries[1]
	if e.Level != zapcore.WarnLevel || e.Message != "provider get failed" {
		t.Fatalf("entry = %+v", e.Entry)
	}
	ctx := e.ContextMap()
	if ctx["key"] != "entity:nodes:p1:n1" || ctx["err"] != "timeout" {
		t.Fatalf("fields = %v", ctx)
	}
}
