// Package store is the device state store: the latest point per device plus
// a bounded, newest-first log, written through to durable storage on every
// append.
//
// Two backends are provided:
//
//   - FileBackend (default) rewrites a single indented JSON document
//     {"latest": {...}, "logs": {...}} atomically on each append. The file
//     is meant to be readable by an operator with a text editor.
//   - SQLiteBackend journals one row per point in telemetry_points and trims
//     each device to the bound in the same transaction.
//
// Invariants maintained by Append:
//   - len(Log(id)) never exceeds the configured bound; the oldest points go first
//   - after a successful append, LatestAll()[id] equals Log(id, 1)[0]
//   - a point acknowledged by Append is durable; on a failed write the
//     in-memory state is left exactly as it was
//
// Usage:
//
//	st, err := store.Open(ctx, store.NewFileBackend("storage.json"), store.Options{
//	    MaxPoints: cfg.Storage.MaxPointsPerDevice,
//	    Logger:    logger.With("component", "store"),
//	})
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
//
//	if err := st.Append(ctx, point); err != nil {
//	    // not accepted
//	}
package store
