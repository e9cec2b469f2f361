// Package localnotify correlates asynchronous replies from the host
// local-notification plugin with the requests that caused them.
//
// The host is reachable only through a bridge.Bridge: commands go out as named
// events and results come back later as other named events. Client keeps the
// waiting callbacks, coalesces duplicate list requests, and buffers unsolicited
// notifications until a subscriber is attached.
//
// All state is owned by a loop.Loop. Public methods post work to it and return
// immediately; callbacks run on the loop goroutine.
package localnotify
