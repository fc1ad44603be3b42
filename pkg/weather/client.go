package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultGeocodeURL = "http://api.openweathermap.org/geo/1.0/direct"
	defaultWeatherURL = "https://api.openweathermap.org/data/2.5/weather"
	iconURLFormat     = "https://openweathermap.org/img/wn/%s@2x.png"
	requestTimeout    = 30 * time.Second

	// probeTimeout bounds the health probe so /health stays responsive
	// even when the upstream hangs.
	probeTimeout = 5 * time.Second
	probeCity    = "London"
)

// ErrNotConfigured is returned when no OpenWeatherMap API key is set.
var ErrNotConfigured = errors.New("weather api key not configured")

// NotFoundError is returned when geocoding resolves no location for a city.
type NotFoundError struct {
	City string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("city %q not found", e.City)
}

// UpstreamError is returned when OpenWeatherMap answers with a non-200
// status or cannot be reached at all. Err is set for network-level faults.
type UpstreamError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("openweathermap unreachable: %v", e.Err)
	}
	return fmt.Sprintf("openweathermap returned status %d: %s", e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Report is the normalized current-weather observation for one location.
type Report struct {
	City        string  `json:"city"`
	Country     string  `json:"country"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Temperature float64 `json:"temperature"`
	FeelsLike   float64 `json:"feels_like"`
	TempMin     float64 `json:"temp_min"`
	TempMax     float64 `json:"temp_max"`
	Pressure    int     `json:"pressure"`
	Humidity    int     `json:"humidity"`
	Main        string  `json:"main"`
	Description string  `json:"description"`
	Icon        string  `json:"icon"`
	WindSpeed   float64 `json:"wind_speed"`
	WindDeg     int     `json:"wind_deg"`
	Clouds      int     `json:"clouds"`
	Visibility  int     `json:"visibility"`
	Sunrise     int64   `json:"sunrise"`
	Sunset      int64   `json:"sunset"`
	ObservedAt  int64   `json:"observed_at"`
}

// Client talks to the OpenWeatherMap geocoding and current weather APIs.
type Client struct {
	apiKey     string
	geocodeURL string
	weatherURL string
	httpClient *http.Client
}

// NewClient creates a weather client with default endpoints and HTTP client.
func NewClient(apiKey string) *Client {
	return NewClientFromOptions(Options{APIKey: apiKey})
}

// Options contains configuration for the weather client. Zero values fall
// back to production defaults.
type Options struct {
	APIKey     string
	GeocodeURL string
	WeatherURL string
	HTTPClient *http.Client
}

// NewClientFromOptions creates a weather client with explicit options.
func NewClientFromOptions(opts Options) *Client {
	if opts.GeocodeURL == "" {
		opts.GeocodeURL = defaultGeocodeURL
	}
	if opts.WeatherURL == "" {
		opts.WeatherURL = defaultWeatherURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{
			Timeout: requestTimeout,
		}
	}
	return &Client{
		apiKey:     opts.APIKey,
		geocodeURL: opts.GeocodeURL,
		weatherURL: opts.WeatherURL,
		httpClient: opts.HTTPClient,
	}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Current resolves a city name to coordinates and fetches the current
// weather there. countryCode is an optional ISO 3166 code that narrows the
// geocoding query. It returns ErrNotConfigured without an API key, a
// NotFoundError when geocoding yields no match, and an UpstreamError when
// OpenWeatherMap answers with a non-200 status or cannot be reached.
func (c *Client) Current(ctx context.Context, city, countryCode string) (*Report, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	loc, err := c.geocode(ctx, city, countryCode)
	if err != nil {
		return nil, err
	}
	return c.fetchCurrent(ctx, loc)
}

type geoResult struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country"`
}

func (c *Client) geocode(ctx context.Context, city, countryCode string) (*geoResult, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	q := city
	if countryCode != "" {
		q = city + "," + countryCode
	}

	u, err := url.Parse(c.geocodeURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse geocode URL: %w", err)
	}
	values := url.Values{}
	values.Set("q", q)
	values.Set("limit", "1")
	values.Set("appid", c.apiKey)
	u.RawQuery = values.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read geocode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var results []geoResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("failed to unmarshal geocode response: %w", err)
	}
	if len(results) == 0 {
		return nil, &NotFoundError{City: city}
	}
	return &results[0], nil
}

type currentResponse struct {
	Coord struct {
		Lon float64 `json:"lon"`
		Lat float64 `json:"lat"`
	} `json:"coord"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		TempMin   float64 `json:"temp_min"`
		TempMax   float64 `json:"temp_max"`
		Pressure  int     `json:"pressure"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Visibility int `json:"visibility"`
	Wind       struct {
		Speed float64 `json:"speed"`
		Deg   int     `json:"deg"`
	} `json:"wind"`
	Clouds struct {
		All int `json:"all"`
	} `json:"clouds"`
	Dt  int64 `json:"dt"`
	Sys struct {
		Country string `json:"country"`
		Sunrise int64  `json:"sunrise"`
		Sunset  int64  `json:"sunset"`
	} `json:"sys"`
	Name string `json:"name"`
}

func (c *Client) fetchCurrent(ctx context.Context, loc *geoResult) (*Report, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	u, err := url.Parse(c.weatherURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse weather URL: %w", err)
	}
	values := url.Values{}
	values.Set("lat", strconv.FormatFloat(loc.Lat, 'f', -1, 64))
	values.Set("lon", strconv.FormatFloat(loc.Lon, 'f', -1, 64))
	values.Set("appid", c.apiKey)
	values.Set("units", "metric")
	values.Set("lang", "en")
	u.RawQuery = values.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read weather response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	slog.Debug("OpenWeatherMap current weather response", "raw_body", string(body))

	var payload currentResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal weather response: %w", err)
	}

	report := &Report{
		City:        payload.Name,
		Country:     payload.Sys.Country,
		Lat:         payload.Coord.Lat,
		Lon:         payload.Coord.Lon,
		Temperature: payload.Main.Temp,
		FeelsLike:   payload.Main.FeelsLike,
		TempMin:     payload.Main.TempMin,
		TempMax:     payload.Main.TempMax,
		Pressure:    payload.Main.Pressure,
		Humidity:    payload.Main.Humidity,
		WindSpeed:   payload.Wind.Speed,
		WindDeg:     payload.Wind.Deg,
		Clouds:      payload.Clouds.All,
		Visibility:  payload.Visibility,
		Sunrise:     payload.Sys.Sunrise,
		Sunset:      payload.Sys.Sunset,
		ObservedAt:  payload.Dt,
	}
	if report.City == "" {
		report.City = loc.Name
	}
	if report.Country == "" {
		report.Country = loc.Country
	}
	if len(payload.Weather) > 0 {
		report.Main = payload.Weather[0].Main
		report.Description = payload.Weather[0].Description
		if payload.Weather[0].Icon != "" {
			report.Icon = fmt.Sprintf(iconURLFormat, payload.Weather[0].Icon)
		}
	}
	return report, nil
}

// Probe checks upstream reachability with a single cheap request. It is
// used by the health endpoint and returns ErrNotConfigured when no API key
// is set, so callers can distinguish misconfiguration from outage.
func (c *Client) Probe(ctx context.Context) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	u, err := url.Parse(c.weatherURL)
	if err != nil {
		return fmt.Errorf("failed to parse weather URL: %w", err)
	}
	values := url.Values{}
	values.Set("q", probeCity)
	values.Set("appid", c.apiKey)
	u.RawQuery = values.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &UpstreamError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}
