package viewcache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// Getters, views and stores call them on hot paths.
type Hooks interface {
	// A fetch joined a request that was already in flight for the same target.
	// kind ∈ {"entity", "list"}
	FetchShared(kind, key string)

	// The collaborator returned an error. Nothing was cached.
	FetchFailed(kind, key string, err error)

	// A view dropped a response issued before its last params/options change.
	StaleDropped(viewID string, issuedGen, currentGen uint64)

	// A provider-backed entry was deleted on read.
	// reason ∈ {"corrupt", "epoch_mismatch", "value_decode"}
	SelfHeal(storageKey, reason string)

	// Provider returned ok=false on Set (backpressure/eviction).
	ProviderSetRejected(storageKey string)

	// GenStore errors while reading or bumping a cache epoch.
	EpochError(namespace string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) FetchShared(string, string)          {}
func (NopHooks) FetchFailed(string, string, error)   {}
func (NopHooks) StaleDropped(string, uint64, uint64) {}
func (NopHooks) SelfHeal(string, string)             {}
func (NopHooks) ProviderSetRejected(string)          {}
func (NopHooks) EpochError(string, error)            {}
