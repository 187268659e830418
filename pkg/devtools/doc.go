// Package devtools exposes a live view of a reactive runtime over HTTP.
//
// A Recorder is installed as the runtime's observer (alone or through
// telemetry.Multi). It keeps the most recent events in a ring buffer and
// streams new ones to websocket subscribers as msgpack frames:
//
//	rec := devtools.NewRecorder(devtools.WithBufferSize(512))
//	rt := reactive.New(reactive.WithObserver(rec))
//	srv := devtools.NewServer(devtools.Config{Addr: ":7070", Recorder: rec})
//	go srv.Run(ctx)
package devtools
