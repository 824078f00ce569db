package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-gateway/internal/adapter"
	"mcp-gateway/internal/apierr"
	"mcp-gateway/internal/model"
)

// fakeAdapter satisfies adapter.Adapter with no real transport, letting
// drainEvents be exercised without spawning a real process.
type fakeAdapter struct {
	events chan adapter.Event
}

func (f *fakeAdapter) Connect(ctx context.Context) error { return nil }
func (f *fakeAdapter) Send(ctx context.Context, req *adapter.Request) error { return nil }
func (f *fakeAdapter) SendAndReceive(ctx context.Context, req *adapter.Request) (*adapter.Response, error) {
	return nil, nil
}
func (f *fakeAdapter) Disconnect(ctx context.Context) error {
	close(f.events)
	return nil
}
func (f *fakeAdapter) Events() <-chan adapter.Event { return f.events }

func httpTemplate(name string) model.Template {
	return model.Template{
		Name:      name,
		Transport: model.TransportHTTP,
		Endpoint:  "http://127.0.0.1:9/mcp",
	}
}

func TestRegisterTemplate_ValidatesTransport(t *testing.T) {
	r := New()
	err := r.RegisterTemplate(model.Template{Name: "x", Transport: model.TransportStdio})
	require.Error(t, err)
	ge, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, "UNPROCESSABLE", ge.Code)
}

func TestRegisterTemplate_RequiresName(t *testing.T) {
	err := New().RegisterTemplate(model.Template{Transport: model.TransportHTTP, Endpoint: "http://x"})
	require.Error(t, err)
}

func TestRegisterAndGetTemplate(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterTemplate(httpTemplate("svc")))

	tmpl, err := r.GetTemplate("svc")
	require.NoError(t, err)
	assert.Equal(t, "svc", tmpl.Name)

	_, err = r.GetTemplate("missing")
	assert.ErrorIs(t, err, apierr.ErrTemplateNotFound)
}

func TestListTemplates(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterTemplate(httpTemplate("a")))
	require.NoError(t, r.RegisterTemplate(httpTemplate("b")))
	assert.Len(t, r.ListTemplates(), 2)
}

func TestRemoveTemplate(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterTemplate(httpTemplate("a")))
	require.NoError(t, r.RemoveTemplate("a"))
	_, err := r.GetTemplate("a")
	assert.ErrorIs(t, err, apierr.ErrTemplateNotFound)
	assert.ErrorIs(t, r.RemoveTemplate("a"), apierr.ErrTemplateNotFound)
}

func TestCreateServiceFromTemplate_HTTPMarksRunning(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterTemplate(httpTemplate("svc")))

	inst, err := r.CreateServiceFromTemplate(context.Background(), "svc", model.Overrides{})
	require.NoError(t, err)
	assert.Equal(t, model.StateRunning, inst.State)
	assert.Equal(t, model.ModeKeepAlive, inst.Mode)
	assert.NotEmpty(t, inst.ID)
}

func TestCreateServiceFromTemplate_UnknownTemplate(t *testing.T) {
	_, err := New().CreateServiceFromTemplate(context.Background(), "missing", model.Overrides{})
	assert.ErrorIs(t, err, apierr.ErrTemplateNotFound)
}

func TestCreateServiceFromTemplate_MergesEnvOverride(t *testing.T) {
	r := New()
	tmpl := httpTemplate("svc")
	tmpl.Env = map[string]string{"A": "1"}
	require.NoError(t, r.RegisterTemplate(tmpl))

	inst, err := r.CreateServiceFromTemplate(context.Background(), "svc", model.Overrides{Env: map[string]string{"B": "2"}})
	require.NoError(t, err)
	assert.Equal(t, "1", inst.Config.Env["A"])
	assert.Equal(t, "2", inst.Config.Env["B"])
}

func TestStopService_UnknownReturnsFalse(t *testing.T) {
	assert.False(t, New().StopService(context.Background(), "missing"))
}

func TestStopAndRemoveService(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterTemplate(httpTemplate("svc")))
	inst, err := r.CreateServiceFromTemplate(context.Background(), "svc", model.Overrides{})
	require.NoError(t, err)

	assert.True(t, r.StopService(context.Background(), inst.ID))
	got, err := r.GetService(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateStopped, got.State)

	r.RemoveInstance(inst.ID)
	_, err = r.GetService(inst.ID)
	assert.ErrorIs(t, err, apierr.ErrInstanceNotFound)
}

func TestRunningKeepAlive_FiltersByStateAndMode(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterTemplate(httpTemplate("svc")))
	inst, err := r.CreateServiceFromTemplate(context.Background(), "svc", model.Overrides{})
	require.NoError(t, err)

	running := r.RunningKeepAlive()
	require.Len(t, running, 1)
	assert.Equal(t, inst.ID, running[0].ID)

	r.StopService(context.Background(), inst.ID)
	assert.Empty(t, r.RunningKeepAlive())
}

func TestSetInstanceMetadata(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterTemplate(httpTemplate("svc")))
	inst, err := r.CreateServiceFromTemplate(context.Background(), "svc", model.Overrides{})
	require.NoError(t, err)

	r.SetInstanceMetadata(inst.ID, "lastProbeError", "boom")
	got, err := r.GetService(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "boom", got.Metadata["lastProbeError"])
}

func TestGetRegistryStats(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterTemplate(httpTemplate("svc")))
	_, err := r.CreateServiceFromTemplate(context.Background(), "svc", model.Overrides{})
	require.NoError(t, err)

	stats := r.GetRegistryStats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.ByState[model.StateRunning])
}

func TestUpdateServiceEnv_RecreatesWithMergedEnv(t *testing.T) {
	r := New()
	tmpl := httpTemplate("svc")
	tmpl.Env = map[string]string{"A": "1"}
	require.NoError(t, r.RegisterTemplate(tmpl))

	inst, err := r.CreateServiceFromTemplate(context.Background(), "svc", model.Overrides{})
	require.NoError(t, err)

	updated, err := r.UpdateServiceEnv(context.Background(), inst.ID, map[string]string{"B": "2"})
	require.NoError(t, err)
	assert.NotEqual(t, inst.ID, updated.ID)
	assert.Equal(t, "1", updated.Config.Env["A"])
	assert.Equal(t, "2", updated.Config.Env["B"])

	_, err = r.GetService(inst.ID)
	assert.ErrorIs(t, err, apierr.ErrInstanceNotFound)
}

func TestUpdateServiceEnv_UnknownInstance(t *testing.T) {
	_, err := New().UpdateServiceEnv(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, apierr.ErrInstanceNotFound)
}

func TestDrainEvents_ForwardsUntilChannelCloses(t *testing.T) {
	a := &fakeAdapter{events: make(chan adapter.Event, 4)}
	var got []adapter.Event
	done := make(chan struct{})

	go func() {
		drainEvents("svc-1", a, func(serviceID string, ev adapter.Event) {
			assert.Equal(t, "svc-1", serviceID)
			got = append(got, ev)
		})
		close(done)
	}()

	a.events <- adapter.Event{Kind: adapter.EventSent}
	a.events <- adapter.Event{Kind: adapter.EventMessage}
	require.NoError(t, a.Disconnect(context.Background()))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("drainEvents did not return after channel closed")
	}
	assert.Len(t, got, 2)
}

func TestSetEventSink_StoredForSubsequentStdioInstances(t *testing.T) {
	r := New()
	called := false
	r.SetEventSink(func(serviceID string, ev adapter.Event) { called = true })

	assert.NotNil(t, r.eventSink)
	// Sink installation itself is synchronous and side-effect-free;
	// forwarding behavior once a real adapter is connected is covered by
	// TestDrainEvents_ForwardsUntilChannelCloses without needing to spawn
	// a real stdio child that would have to speak MCP back.
	assert.False(t, called)
}
