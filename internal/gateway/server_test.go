package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/linjoshua/ChatGPT-Line-Bot/internal/channel"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/config"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/domain"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/hooks"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLog() *logging.Logger {
	return logging.New(nil, "silent")
}

// webhookStub is an HTTP channel that records the requests it receives.
type webhookStub struct {
	status  domain.ChannelStatus
	hits    int
	pattern string
}

func (w *webhookStub) ID() string                                         { return w.status.ChannelID }
func (w *webhookStub) Start(context.Context) error                        { return nil }
func (w *webhookStub) Stop(context.Context) error                         { return nil }
func (w *webhookStub) Send(context.Context, domain.OutboundMessage) error { return nil }
func (w *webhookStub) OnEvent(func(domain.InboundEvent))                  {}
func (w *webhookStub) Status() domain.ChannelStatus                       { return w.status }
func (w *webhookStub) Pattern() string                                    { return w.pattern }

func (w *webhookStub) ServeHTTP(rw http.ResponseWriter, _ *http.Request) {
	w.hits++
	rw.WriteHeader(http.StatusOK)
}

func testServer(t *testing.T, opts ...ServerOption) (*Server, *httptest.Server) {
	t.Helper()
	srv := New(config.Defaults().Gateway, testLog(), opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestRootGreeting(t *testing.T) {
	_, ts := testServer(t)

	resp, body := get(t, ts.URL+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Hello", body)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestHealthEndpoint(t *testing.T) {
	reg := channel.NewRegistry(testLog())
	reg.Register(&webhookStub{status: domain.ChannelStatus{ChannelID: "line", Running: true}, pattern: "POST /callback"})
	_, ts := testServer(t, WithChannels(reg))

	resp, body := get(t, ts.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health HealthResponse
	require.NoError(t, json.Unmarshal([]byte(body), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "dev", health.Version)
	require.Len(t, health.Channels, 1)
	assert.Equal(t, "line", health.Channels[0].ChannelID)
}

func TestHealthEndpoint_Degraded(t *testing.T) {
	reg := channel.NewRegistry(testLog())
	reg.Register(&webhookStub{status: domain.ChannelStatus{ChannelID: "line", Running: false}, pattern: "POST /callback"})
	_, ts := testServer(t, WithChannels(reg))

	_, body := get(t, ts.URL+"/health")
	var health HealthResponse
	require.NoError(t, json.Unmarshal([]byte(body), &health))
	assert.Equal(t, "degraded", health.Status)
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := testServer(t)

	resp, body := get(t, ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "linebot_replies_total")
}

func TestMetricsDisabled(t *testing.T) {
	cfg := config.Defaults().Gateway
	off := false
	cfg.Metrics = &off
	ts := httptest.NewServer(New(cfg, testLog()).Handler())
	t.Cleanup(ts.Close)

	resp, _ := get(t, ts.URL+"/metrics")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNotFoundEndpoint(t *testing.T) {
	_, ts := testServer(t)

	resp, body := get(t, ts.URL+"/nonexistent")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, `"path":"/nonexistent"`)
}

func TestChannelMounted(t *testing.T) {
	stub := &webhookStub{status: domain.ChannelStatus{ChannelID: "line"}, pattern: "POST /callback"}
	reg := channel.NewRegistry(testLog())
	reg.Register(stub)
	_, ts := testServer(t, WithChannels(reg))

	resp, err := http.Post(ts.URL+"/callback", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, stub.hits)

	resp, _ = get(t, ts.URL+"/callback")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 1, stub.hits)
}

func TestStartAndShutdown(t *testing.T) {
	cfg := config.Defaults().Gateway
	cfg.Bind = "loopback"
	cfg.Port = 0

	hm := hooks.NewManager(testLog())
	events := make(chan string, 2)
	for _, ev := range []string{hooks.EventGatewayStart, hooks.EventGatewayStop} {
		hm.On(ev, "test", func(_ context.Context, p hooks.Payload) error {
			events <- p.Event
			return nil
		})
	}
	srv := New(cfg, testLog(), WithHooks(hm))
	assert.Empty(t, srv.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	select {
	case <-srv.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("server not ready")
	}
	resp, _ := get(t, "http://"+srv.Addr()+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.Equal(t, hooks.EventGatewayStart, <-events)
	assert.Equal(t, hooks.EventGatewayStop, <-events)
}

func TestResolveBindAddr(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.GatewayConfig
		want string
	}{
		{"loopback", config.GatewayConfig{Bind: "loopback", Port: 8080}, "127.0.0.1:8080"},
		{"lan", config.GatewayConfig{Bind: "lan", Port: 8080}, "0.0.0.0:8080"},
		{"custom", config.GatewayConfig{Bind: "custom", CustomBindHost: "10.0.0.5", Port: 9000}, "10.0.0.5:9000"},
		{"custom without host", config.GatewayConfig{Bind: "custom", Port: 9000}, "0.0.0.0:9000"},
		{"unknown", config.GatewayConfig{Bind: "", Port: 8080}, "127.0.0.1:8080"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveBindAddr(tt.cfg))
		})
	}
}
