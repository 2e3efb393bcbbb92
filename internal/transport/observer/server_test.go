package observer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"mobsim/internal/observerproto"
	"mobsim/internal/sim/catalogs"
	"mobsim/internal/sim/world"
)

func startWorld(t *testing.T) (*world.World, *httptest.Server) {
	t.Helper()
	root, err := filepath.Abs(filepath.Join("..", "..", ".."))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "configs", "mobs.json"))
	require.NoError(t, err)

	cats, err := catalogs.Load(filepath.Join(root, "configs"))
	require.NoError(t, err)
	w, err := world.New(world.WorldConfig{ID: "obs", Seed: 3, TickRateHz: 50}, cats)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	s := NewServer(w, zaptest.NewLogger(t))
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/observer/bootstrap", s.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", s.WSHandler())
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})
	return w, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/observer/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readType(t *testing.T, conn *websocket.Conn, want string) []byte {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		_, b, err := conn.ReadMessage()
		require.NoError(t, err)
		var head struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(b, &head))
		if head.Type == want {
			return b
		}
	}
}

func TestBootstrap(t *testing.T) {
	_, srv := startWorld(t)

	resp, err := http.Get(srv.URL + "/v1/observer/bootstrap")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var b observerproto.BootstrapResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&b))
	assert.Equal(t, observerproto.Version, b.ProtocolVersion)
	assert.Equal(t, "obs", b.WorldID)
	assert.Equal(t, int64(3), b.WorldParams.Seed)
	assert.Contains(t, b.MobKinds, "zombie")
	assert.Contains(t, b.ItemPalette, "lead")

	post, err := http.Post(srv.URL+"/v1/observer/bootstrap", "application/json", nil)
	require.NoError(t, err)
	post.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, post.StatusCode)
}

func TestWS_SubscribeReceivesTicks(t *testing.T) {
	_, srv := startWorld(t)
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(observerproto.SubscribeMsg{
		Type:            "SUBSCRIBE",
		ProtocolVersion: observerproto.Version,
		MaxAgents:       8,
	}))
	raw := readType(t, conn, "TICK")
	require.NoError(t, observerproto.ValidateTick(raw))

	// A malformed update is answered, not fatal.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"SUBSCRIBE"}`)))
	var e observerproto.ErrorMsg
	require.NoError(t, json.Unmarshal(readType(t, conn, "ERROR"), &e))
	assert.Equal(t, observerproto.ErrProtoBadRequest, e.Code)

	readType(t, conn, "TICK")
}

func TestWS_SubscribeUpdatesAreRateLimited(t *testing.T) {
	_, srv := startWorld(t)
	conn := dial(t, srv)

	sub := observerproto.SubscribeMsg{Type: "SUBSCRIBE", ProtocolVersion: observerproto.Version, Radius: 32}
	require.NoError(t, conn.WriteJSON(sub))
	readType(t, conn, "TICK")

	for i := 0; i < subscribeBurst+4; i++ {
		require.NoError(t, conn.WriteJSON(sub))
	}
	var e observerproto.ErrorMsg
	require.NoError(t, json.Unmarshal(readType(t, conn, "ERROR"), &e))
	assert.Equal(t, observerproto.ErrRateLimit, e.Code)
}

func TestWS_BadHandshakeCloses(t *testing.T) {
	_, srv := startWorld(t)
	conn := dial(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"HELLO","protocol_version":"0.1"}`)))
	var e observerproto.ErrorMsg
	require.NoError(t, json.Unmarshal(readType(t, conn, "ERROR"), &e))
	assert.Equal(t, observerproto.ErrProtoBadRequest, e.Code)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func TestNormalizeSubscribe(t *testing.T) {
	sub := observerproto.SubscribeMsg{Radius: 1000, MaxAgents: 0, FocusID: "  abc "}
	normalizeSubscribe(&sub)
	assert.Equal(t, float64(maxRadius), sub.Radius)
	assert.Equal(t, defaultAgent, sub.MaxAgents)
	assert.Equal(t, "abc", sub.FocusID)

	sub = observerproto.SubscribeMsg{Radius: -3, MaxAgents: 1 << 20}
	normalizeSubscribe(&sub)
	assert.Zero(t, sub.Radius)
	assert.Equal(t, maxAgents, sub.MaxAgents)
}

func TestIsLoopbackRemote(t *testing.T) {
	assert.True(t, isLoopbackRemote("127.0.0.1:1234"))
	assert.True(t, isLoopbackRemote("[::1]:80"))
	assert.False(t, isLoopbackRemote("10.0.0.2:80"))
	assert.False(t, isLoopbackRemote("garbage"))
}
