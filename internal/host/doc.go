// Package host is a Go implementation of the native side of the bridge: it
// accepts the commands the client sends, keeps scheduled notifications in a
// storage.Store, and emits LocalNotify when they fire.
//
// The CLI runs it in-process (over a bridge.Pipe) or on stdio (over a
// bridge.Stream). Tests use it to exercise the client end to end.
package host
