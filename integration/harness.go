// Package integration runs the whole server in-process over real HTTP and
// WebSocket connections.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	apirest "github.com/ClementNoelRenard/Running-Map-Run-For-Life/api/rest"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/api/sse"
	apiws "github.com/ClementNoelRenard/Running-Map-Run-For-Life/api/ws"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/broadcast"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/cache"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/config"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/path"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/world"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/journal"
	mw "github.com/ClementNoelRenard/Running-Map-Run-For-Life/middleware"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/plugin/hook"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/ranking"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/scheduler"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/testutil"
)

// TestServer wraps a real HTTP server with every subsystem wired together.
type TestServer struct {
	DB      *gorm.DB
	Cache   cache.Cache
	PubSub  cache.PubSub
	Manager *world.Manager
	Board   *ranking.Board
	Journal *journal.Service
	Sched   *scheduler.Scheduler
	Server  *httptest.Server
	URL     string // http://127.0.0.1:<port>
	WSURL   string // ws://127.0.0.1:<port>
	Sec     config.SecurityConfig
}

// NewTestServer creates a fully wired server. It mirrors the wiring in
// main.go with fast ticks and flushes.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Game.TickMs = 20
	cfg.Security = config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		TokenTTL:       time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
	}

	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	hooks := hook.NewCenter()
	journalSvc := journal.New(db, journal.Config{BatchSize: 10, FlushInterval: 20 * time.Millisecond}, logger)
	journalSvc.Register(hooks)
	board := ranking.NewBoard(db, c, cfg.Game.RecentResults, logger)
	board.Register(hooks)
	pub := broadcast.NewPublisher(pubsub, logger)
	pub.Register(hooks)

	mgr := world.NewManager(hooks, nil, path.DispatcherConfig{}, logger)
	sched := scheduler.New(logger)
	sched.Every("reap_sessions", time.Hour, func(context.Context) error {
		mgr.ReapFinished(time.Now(), cfg.Game.RetainFinished, cfg.Game.MaxSessionAge)
		return nil
	})

	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	sessionH := apirest.NewSessionHandler(mgr, c, cfg.Game, cfg.Security, logger)
	sessionH.Register(hooks)
	api := r.Group("/api")
	apirest.Mount(api, apirest.Handlers{
		Sessions: sessionH,
		Ranking:  apirest.NewRankingHandler(board, logger),
		Admin:    apirest.NewAdminHandler(mgr, board, pub, sched, logger),
	}, cfg.Security, c, []string{"127.0.0.1", "::1"})

	wsRouter := apiws.NewRouter(logger)
	apiws.NewSessionHandlers(mgr, logger).RegisterHandlers(wsRouter)
	api.GET("/sessions/:id/ws", mw.SessionAuth(cfg.Security, c), apiws.NewHandler(mgr, pubsub, cfg.Security, wsRouter, logger).ServeWS)
	api.GET("/sessions/:id/events", mw.SessionAuth(cfg.Security, c), sse.NewHandler(pubsub, logger).ServeSSE)

	server := httptest.NewServer(r)
	t.Cleanup(func() {
		server.Close()
		sched.Stop()
		mgr.StopAll()
		journalSvc.Stop(context.Background())
	})

	return &TestServer{
		DB:      db,
		Cache:   c,
		PubSub:  pubsub,
		Manager: mgr,
		Board:   board,
		Journal: journalSvc,
		Sched:   sched,
		Server:  server,
		URL:     server.URL,
		WSURL:   "ws" + strings.TrimPrefix(server.URL, "http"),
		Sec:     cfg.Security,
	}
}

// Do sends a JSON request and returns the status and body.
func (ts *TestServer) Do(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

// CreateSession starts a session through the REST API.
func (ts *TestServer) CreateSession(t *testing.T, req map[string]any) apirest.CreateResponse {
	t.Helper()
	code, raw := ts.Do(t, http.MethodPost, "/api/sessions", "", req)
	require.Equal(t, http.StatusCreated, code, string(raw))
	var resp apirest.CreateResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

// WSClient is a thin test client for the session WebSocket.
type WSClient struct {
	t    *testing.T
	conn *websocket.Conn
	seq  uint64
}

// DialWS connects to the session's WebSocket with its token.
func (ts *TestServer) DialWS(t *testing.T, sessionID, token string) *WSClient {
	t.Helper()
	url := ts.WSURL + "/api/sessions/" + sessionID + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &WSClient{t: t, conn: conn}
}

// Send writes a packet with the next sequence number.
func (c *WSClient) Send(typ string, payload any) {
	c.t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(c.t, err)
	c.seq++
	require.NoError(c.t, c.conn.WriteJSON(apiws.Packet{Seq: c.seq, Type: typ, Payload: raw}))
}

// Read returns the next packet or fails after timeout.
func (c *WSClient) Read(timeout time.Duration) apiws.Packet {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(timeout)))
	_, raw, err := c.conn.ReadMessage()
	require.NoError(c.t, err)
	var p apiws.Packet
	require.NoError(c.t, json.Unmarshal(raw, &p))
	return p
}

// Event is a decoded session event delivered over the socket.
type Event struct {
	SessionID string          `json:"session_id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
}

// WaitEvent reads until an event of type typ arrives. Events seen on the
// way are returned too, in order.
func (c *WSClient) WaitEvent(typ string, timeout time.Duration) (Event, []Event) {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	var seen []Event
	for time.Now().Before(deadline) {
		p := c.Read(time.Until(deadline))
		if p.Type != "event" {
			continue
		}
		var ev Event
		require.NoError(c.t, json.Unmarshal(p.Payload, &ev))
		seen = append(seen, ev)
		if ev.Type == typ {
			return ev, seen
		}
	}
	c.t.Fatalf("no %q event within %s", typ, timeout)
	return Event{}, seen
}
