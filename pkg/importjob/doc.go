// Package importjob tracks asynchronous STL imports from a URL or a direct upload.
//
// A job moves forward through pending, downloading, processing and completed,
// or to failed from any non-terminal state. completed and failed are terminal.
// Every transition is published on the channel "job:<id>" so clients can follow
// progress, and Subscribe replays the transitions a late subscriber missed.
//
// Jobs live in a Store. MemoryStore keeps them in the current process only, so
// horizontally scaled instances do not see each other's jobs; RedisStore shares
// them. A retention sweep removes jobs, and their files, 24 hours after import
// regardless of status, so callers must treat a missing job as "vanished".
//
// Basic usage:
//
//	tracker := importjob.NewTracker(importjob.NewMemoryStore(), events, files,
//		importjob.WithLogger(log))
//	go tracker.Run(ctx)
//
//	id, err := tracker.CreateImport(ctx, "https://example.com/benchy.stl", "benchy.stl", nil)
//	sub, err := tracker.Subscribe(ctx, id)
//	for ev := range sub.Events() {
//		fmt.Println(ev.Type, ev.Status)
//	}
package importjob
