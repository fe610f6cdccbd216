// Package watcher reports changes under the content root as debounced
// batches of file events.
//
// fsnotify is used when available. When it cannot be created, or the tree
// cannot be registered with it (for example when the inotify watch limit is
// reached), the watcher falls back to periodic polling.
//
// Hidden files and directories, explicitly ignored directories such as the
// data dir, and paths matching the exclude globs never produce events.
//
// Usage:
//
//	w, err := watcher.NewHybridWatcher(watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	go w.Start(ctx, contentRoot)
//	for batch := range w.Events() {
//	    // handle []watcher.FileEvent
//	}
package watcher
