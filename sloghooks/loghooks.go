// Package sloghooks reports viewcache hook events through log/slog, with
// sampling for the chatty ones and storage keys redacted.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/viewcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SharedEvery   uint64
	SelfHealEvery uint64
	StaleEvery    uint64
	// Optional storage key redactor. Defaults to a SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	sharedCtr   atomic.Uint64
	selfHealCtr atomic.Uint64
	staleCtr    atomic.Uint64
}

var _ viewcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) FetchShared(kind, key string) {
	if h.l == nil || !sample(h.opts.SharedEvery, &h.sharedCtr) {
		return
	}
	h.l.Debug("viewcache.fetch_shared", "kind", kind, "key", key)
}

func (h *Hooks) FetchFailed(kind, key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("viewcache.fetch_failed", "kind", kind, "key", key, "err", err)
}

func (h *Hooks) StaleDropped(viewID string, issued, current uint64) {
	if h.l == nil || !sample(h.opts.StaleEvery, &h.staleCtr) {
		return
	}
	h.l.Debug("viewcache.stale_dropped", "view", viewID, "issued", issued, "current", current)
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("viewcache.self_heal", "key", h.redact(storageKey), "reason", reason)
}

func (h *Hooks) ProviderSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("viewcache.provider_set_rejected", "key", h.redact(storageKey))
}

func (h *Hooks) EpochError(namespace string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("viewcache.epoch_error", "ns", namespace, "err", err)
}
