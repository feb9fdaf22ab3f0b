// Package osrm implements path.Provider on top of an OSRM-compatible HTTP
// routing service. It lives outside the simulation core; the session only
// ever sees the path.Provider interface.
package osrm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/geo"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/path"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
)

// ErrNoRoute is returned when the service answers without a usable route.
var ErrNoRoute = errors.New("osrm: no route")

// Config holds routing service settings.
type Config struct {
	BaseURL string
	Profile string // foot, bike, car
	Timeout time.Duration
}

// Client queries the /route/v1 endpoint.
type Client struct {
	baseURL string
	profile string
	http    *http.Client
	logger  *zap.Logger
}

// New creates a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	profile := cfg.Profile
	if profile == "" {
		profile = "foot"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		profile: profile,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type routeResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64           `json:"distance"`
		Geometry *geojson.Geometry `json:"geometry"`
	} `json:"routes"`
}

// Route fetches the walking route from -> to.
func (c *Client) Route(ctx context.Context, from, to geo.Coordinate) ([]geo.Coordinate, error) {
	url := fmt.Sprintf("%s/route/v1/%s/%f,%f;%f,%f?overview=full&geometries=geojson",
		c.baseURL, c.profile, from.Lon, from.Lat, to.Lon, to.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("osrm: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("osrm: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("osrm: unexpected status %d", resp.StatusCode)
	}

	var body routeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("osrm: decode: %w", err)
	}
	if body.Code != "Ok" || len(body.Routes) == 0 || body.Routes[0].Geometry == nil {
		return nil, fmt.Errorf("%w: code=%q %s", ErrNoRoute, body.Code, body.Message)
	}

	ls, ok := body.Routes[0].Geometry.Coordinates.(orb.LineString)
	if !ok || len(ls) == 0 {
		return nil, fmt.Errorf("%w: geometry is %s", ErrNoRoute, body.Routes[0].Geometry.Type)
	}
	points := make([]geo.Coordinate, len(ls))
	for i, p := range ls {
		points[i] = geo.FromPoint(p)
	}
	return points, nil
}

// RequestPath implements path.Provider. The lookup runs on its own goroutine.
func (c *Client) RequestPath(ctx context.Context, agentID int, from, to geo.Coordinate, cb path.Callback) {
	go func() {
		points, err := c.Route(ctx, from, to)
		if err != nil {
			c.logger.Debug("route lookup failed", zap.Int("agent_id", agentID), zap.Error(err))
		}
		cb(points, err)
	}()
}
