// Package search provides keyword search over contacts, projects and tasks.
//
// # Overview
//
// Every entity record is projected into an IndexEntry: its non-empty text
// fields joined into searchable content, a keyword set, and structured
// metadata used for filtering and sorting. Entries live in an IndexStore
// (in-memory, SQL or embedded KV) keyed by (entity type, entity id).
//
// A query scans the store, scores each entry, drops zero scores, applies
// structured filters and an optional field sort, and returns one enriched,
// highlighted page plus the total match count.
//
// # Scoring
//
//	+100  content contains the whole query (case-insensitive)
//	 +20  per query word (> 2 chars) that is an entry keyword
//	 +10  per query word (> 2 chars) found anywhere in the content
//	 +50  the first content line contains the whole query
//
// # Index Maintenance
//
// Entity writes call Dispatcher.Upserted and Dispatcher.Deleted, which
// update the index on a background pool and never fail the write. Indexer.RebuildAll
// re-derives the whole index from the entity stores and is the recovery path
// for drift:
//
//	indexer := search.NewIndexer(store, sources, search.IndexerConfig{Logger: logger})
//	dispatcher, _ := search.NewDispatcher(indexer, search.DispatcherConfig{Workers: 8})
//	dispatcher.Upserted(search.Task{ID: "t-1", Title: "Ship release"})
//
// # Querying
//
//	engine := search.NewEngine(store, search.EngineConfig{Lookups: lookups})
//	resp, err := engine.Search(ctx, search.Request{
//		Query:      "acme",
//		EntityType: search.EntityTypeProject,
//		Filters:    &search.Filters{Statuses: []string{"open"}},
//		Limit:      20,
//	})
//
//	suggestions, err := engine.Suggest(ctx, "ac", search.EntityTypeAll, 10)
package search
