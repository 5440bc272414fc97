package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/crisisgrid/backend/internal/models"
)

// OSRMClient is an Oracle backed by a public OSRM instance. The service is
// best-effort with no SLA, so every call carries a hard timeout. Construct
// with NewOSRMClient; a zero value has no HTTP client.
type OSRMClient struct {
	BaseURL string
	Client  *http.Client
	Timeout time.Duration
}

func NewOSRMClient(baseURL string, timeout time.Duration) *OSRMClient {
	if baseURL == "" {
		baseURL = "https://router.project-osrm.org/route/v1"
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &OSRMClient{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: timeout},
		Timeout: timeout,
	}
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

func (c *OSRMClient) Route(ctx context.Context, profile string, waypoints []models.Waypoint) (OracleRoute, error) {
	if len(waypoints) < 2 {
		return OracleRoute{}, errors.New("routing: need at least two waypoints")
	}
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	// OSRM takes lng,lat pairs separated by semicolons.
	parts := make([]string, 0, len(waypoints))
	for _, w := range waypoints {
		parts = append(parts, fmt.Sprintf("%f,%f", w.Lng, w.Lat))
	}
	url := fmt.Sprintf("%s/%s/%s?overview=full&geometries=geojson", c.BaseURL, profile, strings.Join(parts, ";"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return OracleRoute{}, err
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return OracleRoute{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return OracleRoute{}, fmt.Errorf("routing: oracle http error: %s", resp.Status)
	}

	var body osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return OracleRoute{}, err
	}
	if body.Code != "Ok" || len(body.Routes) == 0 {
		return OracleRoute{}, ErrNoRoute
	}

	route := body.Routes[0]
	path := make([]models.Waypoint, 0, len(route.Geometry.Coordinates))
	for _, c := range route.Geometry.Coordinates {
		if len(c) < 2 {
			continue
		}
		path = append(path, models.Waypoint{Lat: c[1], Lng: c[0]})
	}

	return OracleRoute{
		Path:      path,
		DistanceM: route.Distance,
		DurationS: route.Duration,
	}, nil
}
