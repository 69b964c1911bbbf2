// Package viewcache is the data layer behind list and detail screens of a
// compute management console. It fetches remote entities (pools, nodes, jobs,
// tasks) through caller-supplied collaborators, keeps them in shared keyed
// caches and exposes them to screens as disposable views.
//
// Components:
//   - Cache: key -> entity, last write wins, with Updated/Deleted/Cleared streams.
//   - TargetedCache: one Cache per target, e.g. per parent pool, created lazily.
//   - EntityGetter / ListGetter: fetch-and-cache. Concurrent identical requests
//     share one collaborator call.
//   - EntityView / ListView: per-screen wrappers with status, error and
//     polling. Changing params or options bumps a generation counter and
//     responses issued before it are dropped.
//   - Tracker: registry of live caches and views, for leak checks in tests.
//
// Storage defaults to process memory. NewProviderStore keeps entities in a
// provider (ristretto, bigcache, redis) framed with a per-namespace epoch:
//
//	entity:<ns>:<key>  - framed entity
//	epoch:<prefix>:<ns> - epoch counter when epochs live in Redis
//
// Usage:
//
//	nodes, _ := viewcache.NewTargetedCache(
//	    func(p NodeParams) string { return p.PoolID },
//	    viewcache.CacheOptions[Node]{Key: func(n Node) string { return strings.ToLower(n.ID) }},
//	)
//	list, _ := viewcache.NewListGetter(viewcache.ListGetterOptions[NodeParams, Node]{
//	    Caches:   nodes,
//	    List:     client.ListNodes,
//	    ListNext: client.ListNodesNext,
//	})
//	view, _ := viewcache.NewListView(viewcache.ListViewOptions[NodeParams, Node]{Getter: list})
//	defer view.Dispose()
//
//	_ = view.SetParams(NodeParams{PoolID: "p1"})
//	items, err := view.FetchNext(ctx, false)
package viewcache
