package bridge

import "errors"

// PluginName addresses the host local-notification plugin.
const PluginName = "LocalNotifyPlugin"

// Outbound commands (application -> host).
const (
	CmdReady             = "Ready"
	CmdRequestPermission = "requestNotificationPermission"
	CmdList              = "List"
	CmdGet               = "Get"
	CmdClear             = "Clear"
	CmdRemove            = "Remove"
	CmdAdd               = "Add"
)

// Inbound events (host -> application).
const (
	EventList   = "LocalNotifyList"
	EventGet    = "LocalNotifyGet"
	EventNotify = "LocalNotify"
)

var ErrClosed = errors.New("bridge closed")

// Handler receives the raw JSON payload of one named event.
// Handlers must not block; they run on the transport's delivery goroutine.
type Handler func(payload []byte)

// Bridge is one end of a one-way named-event channel.
type Bridge interface {
	// Send writes a named event addressed to plugin. It never waits for a reply.
	Send(plugin, name string, payload []byte) error
	// Handle registers h for events called name, replacing any previous handler.
	Handle(name string, h Handler)
}

// Nop is the bridge used when no host plugin is present.
// Every send succeeds and nothing ever comes back.
type Nop struct{}

func (Nop) Send(string, string, []byte) error { return nil }
func (Nop) Handle(string, Handler)            {}
