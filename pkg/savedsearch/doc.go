// Package savedsearch persists named search definitions and per-user search
// history in a SQL database.
//
// Saved searches are visible to their owner and, when public, to everyone.
// Each owner has at most one default search; setting a new default clears
// the previous one in the same transaction. History is append-only and
// trimmed to the newest HistoryLimit entries per owner on every write.
//
//	manager := savedsearch.NewManager(db, savedsearch.Config{Logger: logger})
//	saved, err := manager.Save(ctx, savedsearch.SavedSearch{
//		Name:  "Open high priority",
//		Query: "launch",
//		Filters: search.Filters{
//			Statuses:   []string{"open"},
//			Priorities: []string{"high"},
//		},
//		IsDefault: true,
//	}, userID)
//
// The Manager also implements search.HistoryRecorder so the query engine can
// log executed searches directly.
package savedsearch
