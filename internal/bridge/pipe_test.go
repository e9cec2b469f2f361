package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "localnotify/pkg/logx"
)

func TestPipeDeliversToPeerInOrder(t *testing.T) {
	app, host := NewPipe(logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 4)
	host.Handle(CmdGet, func(p []byte) { got <- string(p) })

	require.NoError(t, app.Send(PluginName, CmdGet, []byte(`{"name":"a"}`)))
	require.NoError(t, app.Send(PluginName, CmdGet, []byte(`{"name":"b"}`)))

	go func() { _ = host.Run(ctx) }()

	for _, want := range []string{`{"name":"a"}`, `{"name":"b"}`} {
		select {
		case p := <-got:
			assert.Equal(t, want, p)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestPipeSendDoesNotRunHandlerInline(t *testing.T) {
	app, host := NewPipe(logx.Nop())

	called := false
	host.Handle(CmdList, func([]byte) { called = true })
	require.NoError(t, app.Send(PluginName, CmdList, []byte(`{}`)))

	assert.False(t, called)
}

func TestPipeClosedEndpointRejectsSends(t *testing.T) {
	app, host := NewPipe(logx.Nop())
	host.Close()

	assert.ErrorIs(t, app.Send(PluginName, CmdClear, nil), ErrClosed)
}

func TestNopSwallowsEverything(t *testing.T) {
	var b Bridge = Nop{}
	b.Handle(EventList, func([]byte) { t.Fatal("handler must never run") })
	assert.NoError(t, b.Send(PluginName, CmdList, []byte(`{}`)))
}
