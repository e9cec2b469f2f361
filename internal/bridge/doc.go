// Package bridge is the named-event channel between the application and the
// host notification plugin.
//
// Sends are fire-and-forget: there is no request/response pairing at this layer.
// Replies arrive later as independently named events delivered to the handler
// registered for that name. Correlating them is the job of package localnotify.
//
// Implementations:
//   - Nop: the host plugin is absent; sends vanish, handlers never run
//   - Pipe: an in-process asynchronous pair (application end + host end)
//   - Stream: newline-delimited JSON frames over an io.Reader/io.Writer pair
package bridge
