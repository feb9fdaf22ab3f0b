package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/api/rest"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/broadcast"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/cache"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/config"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/path"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/world"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/plugin/hook"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/ranking"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/scheduler"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type server struct {
	r     *gin.Engine
	mgr   *world.Manager
	board *ranking.Board
	ps    cache.PubSub
}

func newServer(t *testing.T) *server {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Security.JWTSecret = "test-secret"
	cfg.Game.TickMs = 20
	cfg.Game.Agents = 0

	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	hooks := hook.NewCenter()
	board := ranking.NewBoard(db, c, cfg.Game.RecentResults, logger)
	board.Register(hooks)
	pub := broadcast.NewPublisher(ps, logger)
	pub.Register(hooks)

	mgr := world.NewManager(hooks, nil, path.DispatcherConfig{}, logger)
	t.Cleanup(mgr.StopAll)
	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)

	sessions := rest.NewSessionHandler(mgr, c, cfg.Game, cfg.Security, logger)
	sessions.Register(hooks)

	r := gin.New()
	rest.Mount(r.Group("/api"), rest.Handlers{
		Sessions: sessions,
		Ranking:  rest.NewRankingHandler(board, logger),
		Admin:    rest.NewAdminHandler(mgr, board, pub, sched, logger),
	}, cfg.Security, c, []string{"127.0.0.1"})
	return &server{r: r, mgr: mgr, board: board, ps: ps}
}

func (s *server) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Real-IP", "127.0.0.1")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

var lyon = map[string]float64{"lat": 45.764, "lon": 4.8357}

func (s *server) create(t *testing.T) rest.CreateResponse {
	t.Helper()
	w := s.do(http.MethodPost, "/api/sessions", "", gin.H{"center": lyon, "player_name": "ana", "seed": 3})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp rest.CreateResponse
	decode(t, w, &resp)
	require.NotEmpty(t, resp.SessionID)
	require.NotEmpty(t, resp.Token)
	return resp
}

func status(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var snap struct {
		Status string `json:"status"`
	}
	decode(t, w, &snap)
	return snap.Status
}

func TestCreate_Validation(t *testing.T) {
	s := newServer(t)
	cases := []struct {
		name string
		body gin.H
	}{
		{"missing center", gin.H{"player_name": "x"}},
		{"bad latitude", gin.H{"center": gin.H{"lat": 95.0, "lon": 0.0}}},
		{"unknown difficulty", gin.H{"center": lyon, "difficulty": "nightmare"}},
		{"too many objectives", gin.H{"center": lyon, "objectives": 1000}},
		{"too many agents", gin.H{"center": lyon, "agents": 100000}},
		{"negative objectives", gin.H{"center": lyon, "objectives": -2}},
		{"radius too large", gin.H{"center": lyon, "play_radius_m": 1e7}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/api/sessions", "", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
	assert.Zero(t, s.mgr.ActiveRoomCount())
}

func TestSession_Lifecycle(t *testing.T) {
	s := newServer(t)
	created := s.create(t)
	base := "/api/sessions/" + created.SessionID
	assert.Equal(t, "running", created.Session.Status.String())
	assert.Equal(t, 5, created.Session.Total)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, base, "", nil).Code)

	w := s.do(http.MethodPost, base+"/position", created.Token, gin.H{"lat": 45.7641, "lon": 4.8358, "speed_kmh": 9})
	assert.Equal(t, http.StatusAccepted, w.Code)
	w = s.do(http.MethodPost, base+"/position", created.Token, gin.H{"lat": 123.0, "lon": 0.0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	require.Eventually(t, func() bool {
		var snap struct {
			Player *struct{ Lat float64 } `json:"player"`
		}
		decode(t, s.do(http.MethodGet, base, created.Token, nil), &snap)
		return snap.Player != nil
	}, 2*time.Second, 10*time.Millisecond)

	w = s.do(http.MethodPost, base+"/pause", created.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "paused", status(t, w))

	w = s.do(http.MethodPost, base+"/resume", created.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "running", status(t, w))

	w = s.do(http.MethodPost, base+"/abort", created.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "finished", status(t, w))

	assert.Equal(t, http.StatusConflict, s.do(http.MethodPost, base+"/abort", created.Token, nil).Code)
	assert.Equal(t, http.StatusConflict, s.do(http.MethodPost, base+"/pause", created.Token, nil).Code)

	w = s.do(http.MethodPost, base+"/restart", created.Token, gin.H{"center": gin.H{"lat": 48.8566, "lon": 2.3522}})
	require.Equal(t, http.StatusOK, w.Code)
	var snap struct {
		Status string `json:"status"`
		Center struct {
			Lat float64 `json:"lat"`
		} `json:"center"`
	}
	decode(t, w, &snap)
	assert.Equal(t, "running", snap.Status)
	assert.InDelta(t, 48.8566, snap.Center.Lat, 1e-9)

	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, base, created.Token, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, base, created.Token, nil).Code)
	assert.Zero(t, s.mgr.ActiveRoomCount())
}

func TestSession_TokenIsBoundToSession(t *testing.T) {
	s := newServer(t)
	a := s.create(t)
	b := s.create(t)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/sessions/"+b.SessionID, a.Token, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/sessions/"+b.SessionID, b.Token, nil).Code)
}

func TestSession_GeoJSON(t *testing.T) {
	s := newServer(t)
	created := s.create(t)
	w := s.do(http.MethodGet, "/api/sessions/"+created.SessionID+"/geojson", created.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	decode(t, w, &fc)
	assert.Equal(t, "FeatureCollection", fc.Type)
	kinds := map[string]int{}
	for _, f := range fc.Features {
		kinds[f.Properties["kind"].(string)]++
	}
	assert.Equal(t, 1, kinds["boundary"])
	assert.Equal(t, 5, kinds["objective"])
	assert.Equal(t, 1, kinds["extraction"])
}

func TestRanking(t *testing.T) {
	s := newServer(t)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/ranking/fastest?difficulty=x", "", nil).Code)

	ctx := context.Background()
	now := time.Now()
	require.NoError(t, s.board.Record(ctx, world.Result{SessionID: "slow", PlayerName: "bo", Outcome: "victory", Difficulty: "hard", Score: 5, Total: 5, ElapsedMs: 90000, FinishedAt: now}))
	require.NoError(t, s.board.Record(ctx, world.Result{SessionID: "fast", PlayerName: "ana", Outcome: "victory", Difficulty: "hard", Score: 5, Total: 5, ElapsedMs: 60000, FinishedAt: now}))
	require.NoError(t, s.board.Record(ctx, world.Result{SessionID: "lost", PlayerName: "cy", Outcome: "defeat", Difficulty: "hard", Score: 2, Total: 5, ElapsedMs: 1000, FinishedAt: now}))

	w := s.do(http.MethodGet, "/api/ranking/fastest?difficulty=hard&limit=10", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var fastest struct {
		Ranking []ranking.Entry `json:"ranking"`
	}
	decode(t, w, &fastest)
	require.Len(t, fastest.Ranking, 2)
	assert.Equal(t, "fast", fastest.Ranking[0].SessionID)
	assert.Equal(t, 1, fastest.Ranking[0].Rank)
	assert.Equal(t, "slow", fastest.Ranking[1].SessionID)

	w = s.do(http.MethodGet, "/api/ranking/recent", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var recent struct {
		Results []ranking.Entry `json:"results"`
	}
	decode(t, w, &recent)
	require.Len(t, recent.Results, 3)
	assert.Equal(t, "lost", recent.Results[0].SessionID)
}

func TestAdmin(t *testing.T) {
	s := newServer(t)
	created := s.create(t)

	w := s.do(http.MethodGet, "/api/admin/sessions", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Count int `json:"count"`
	}
	decode(t, w, &list)
	assert.Equal(t, 1, list.Count)

	msgs, unsub, err := s.ps.Subscribe(context.Background(), broadcast.AnnounceChannel)
	require.NoError(t, err)
	defer unsub()
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/admin/announce", "", gin.H{"message": "hi"}).Code)
	select {
	case m := <-msgs:
		assert.Contains(t, m.Payload, "hi")
	case <-time.After(time.Second):
		t.Fatal("announcement not delivered")
	}

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/api/admin/scheduler/nope/run", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/admin/ranking/rebuild", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodDelete, "/api/admin/sessions/"+created.SessionID, "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/sessions/"+created.SessionID, created.Token, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, "/api/admin/sessions/"+created.SessionID, "", nil).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/metrics", nil)
	req.Header.Set("X-Real-IP", "203.0.113.9")
	rec := httptest.NewRecorder()
	s.r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
