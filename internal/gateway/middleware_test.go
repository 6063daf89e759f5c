package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/channel"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/channel/line"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/channel/webchat"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/config"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/domain"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/metrics"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/routing"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	lineSecret   = "gateway-test-secret"
	webchatToken = "gateway-test-token"
)

type nopMessenger struct{}

func (nopMessenger) ReplyMessage(*messaging_api.ReplyMessageRequest) (*messaging_api.ReplyMessageResponse, error) {
	return &messaging_api.ReplyMessageResponse{}, nil
}

func (nopMessenger) PushMessage(*messaging_api.PushMessageRequest, string) (*messaging_api.PushMessageResponse, error) {
	return &messaging_api.PushMessageResponse{}, nil
}

type nopContent struct{}

func (nopContent) GetMessageContent(string) (*http.Response, error) {
	return nil, errors.New("no content")
}

// relayServer mounts a real LINE webhook and webchat channel behind the
// gateway and returns the events they deliver.
func relayServer(t *testing.T, origins ...string) (*httptest.Server, <-chan domain.InboundEvent) {
	t.Helper()
	events := make(chan domain.InboundEvent, 8)
	deliver := func(evt domain.InboundEvent) { events <- evt }

	lineCh := line.NewWithClients(config.LINEConfig{ChannelSecret: lineSecret}, nopMessenger{}, nopContent{}, testLog())
	lineCh.OnEvent(deliver)
	chat := webchat.New(config.WebchatConfig{Token: webchatToken}, origins, testLog())
	chat.OnEvent(deliver)

	reg := channel.NewRegistry(testLog())
	reg.Register(lineCh)
	reg.Register(chat)

	cfg := config.Defaults().Gateway
	cfg.AllowedOrigins = origins
	srv := New(cfg, testLog(), WithChannels(reg))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, events
}

func signBody(body string) string {
	mac := hmac.New(sha256.New, []byte(lineSecret))
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func textEventBody(text string) string {
	return `{"destination":"Ubot","events":[{"type":"message","mode":"active","timestamp":1700000000000,` +
		`"webhookEventId":"EV1","deliveryContext":{"isRedelivery":false},` +
		`"replyToken":"rt-1","source":{"type":"user","userId":"U1234567890"},` +
		`"message":{"type":"text","id":"m1","quoteToken":"q","text":"` + text + `"}}]}`
}

func postWebhook(t *testing.T, ts *httptest.Server, body, signature string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/callback", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Line-Signature", signature)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func requestCount(method, route, status string) float64 {
	return testutil.ToFloat64(metrics.RequestCount.WithLabelValues(method, route, status))
}

func TestLINEWebhook_ThroughMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		signature func(body string) string
		status    int
		delivered bool
	}{
		{"signed", textEventBody("hello"), signBody, http.StatusOK, true},
		{"bad signature", textEventBody("hello"), func(b string) string { return signBody(b + "x") }, http.StatusBadRequest, false},
		{"oversized body", textEventBody(strings.Repeat("a", maxRequestBody)), signBody, http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, events := relayServer(t)
			code := strconv.Itoa(tt.status)
			before := requestCount("POST", "/callback", code)

			resp := postWebhook(t, ts, tt.body, tt.signature(tt.body))

			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
			assert.Equal(t, before+1, requestCount("POST", "/callback", code))
			if tt.delivered {
				evt := <-events
				assert.Equal(t, "line", evt.ChannelID)
				assert.Equal(t, "U1234567890", evt.SessionKey())
				assert.Equal(t, "hello", evt.Text)
			} else {
				assert.Empty(t, events)
			}
		})
	}
}

type replyRecorder chan *messaging_api.ReplyMessageRequest

func (r replyRecorder) ReplyMessage(req *messaging_api.ReplyMessageRequest) (*messaging_api.ReplyMessageResponse, error) {
	r <- req
	return &messaging_api.ReplyMessageResponse{}, nil
}

func (r replyRecorder) PushMessage(*messaging_api.PushMessageRequest, string) (*messaging_api.PushMessageResponse, error) {
	return &messaging_api.PushMessageResponse{}, nil
}

// gatedDispatcher holds every reply until release is closed.
type gatedDispatcher struct{ release chan struct{} }

func (d gatedDispatcher) Dispatch(_ context.Context, ev domain.InboundEvent) domain.Reply {
	<-d.release
	return domain.TextReply("answer: " + ev.Text)
}

// LINE retries a webhook that is not acknowledged promptly, so the 200
// must not wait for the generation backend.
func TestLINEWebhook_AcknowledgedBeforeReply(t *testing.T) {
	replies := make(replyRecorder, 1)
	lineCh := line.NewWithClients(config.LINEConfig{ChannelSecret: lineSecret}, replies, nopContent{}, testLog())
	reg := channel.NewRegistry(testLog())
	reg.Register(lineCh)

	release := make(chan struct{})
	router := routing.NewRouter(reg, gatedDispatcher{release: release}, nil, testLog())
	router.Wire()
	_, ts := testServer(t, WithChannels(reg))

	body := textEventBody("hello")
	start := time.Now()
	resp := postWebhook(t, ts, body, signBody(body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Less(t, time.Since(start), writeTimeout)
	assert.Empty(t, replies, "reply is still pending")

	close(release)
	select {
	case req := <-replies:
		assert.Equal(t, "rt-1", req.ReplyToken)
	case <-time.After(2 * time.Second):
		t.Fatal("reply not sent")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, router.Wait(ctx))
}

func TestLINEWebhook_KeepsCallerRequestID(t *testing.T) {
	ts, _ := relayServer(t)
	body := textEventBody("hello")

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/callback", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("X-Line-Signature", signBody(body))
	req.Header.Set(requestIDHeader, "line-retry-7")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "line-retry-7", resp.Header.Get(requestIDHeader))
}

func TestWebchat_UpgradesThroughMiddleware(t *testing.T) {
	ts, events := relayServer(t)
	before := requestCount("GET", "/ws", "101")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?user_id=U1234567890&token=" + webchatToken
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))

	require.NoError(t, conn.WriteJSON(webchat.Frame{Type: "message", Text: "hi"}))
	select {
	case evt := <-events:
		assert.Equal(t, "webchat:U1234567890", evt.SessionKey())
		assert.Equal(t, "hi", evt.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}

	conn.Close()
	require.Eventually(t, func() bool {
		return requestCount("GET", "/ws", "101") == before+1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebchat_RejectedThroughMiddleware(t *testing.T) {
	ts, _ := relayServer(t)
	before := requestCount("GET", "/ws", "401")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?user_id=U1234567890&token=guess"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, before+1, requestCount("GET", "/ws", "401"))
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		origin  string
		allowed bool
	}{
		{"none configured", nil, "http://localhost:3000", false},
		{"wildcard", []string{"*"}, "http://localhost:3000", true},
		{"listed", []string{"https://dash.example.com"}, "https://dash.example.com", true},
		{"not listed", []string{"https://dash.example.com"}, "https://evil.example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _ := relayServer(t, tt.origins...)
			req, err := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
			require.NoError(t, err)
			req.Header.Set("Origin", tt.origin)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			if tt.allowed {
				assert.Equal(t, tt.origin, resp.Header.Get("Access-Control-Allow-Origin"))
			} else {
				assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
			}
		})
	}
}

func TestCORS_PreflightSkipsChannel(t *testing.T) {
	ts, events := relayServer(t, "*")
	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/callback", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, events)
}

// panicChannel is an HTTP channel whose handler always panics.
type panicChannel struct{ webhookStub }

func (p *panicChannel) ServeHTTP(http.ResponseWriter, *http.Request) {
	panic("malformed payload")
}

func TestRecoverPanics(t *testing.T) {
	reg := channel.NewRegistry(testLog())
	reg.Register(&panicChannel{webhookStub{status: domain.ChannelStatus{ChannelID: "broken"}, pattern: "POST /broken"}})
	_, ts := testServer(t, WithChannels(reg))
	before := requestCount("POST", "/broken", "500")

	resp, err := http.Post(ts.URL+"/broken", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
	assert.Equal(t, before+1, requestCount("POST", "/broken", "500"))

	resp, _ = get(t, ts.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouteLabel(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{"POST /callback", "/callback"},
		{"GET /ws", "/ws"},
		{"GET /{$}", "/{$}"},
		{"/", "other"},
		{"", "other"},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Pattern = tt.pattern
			assert.Equal(t, tt.want, routeLabel(r))
		})
	}
}
