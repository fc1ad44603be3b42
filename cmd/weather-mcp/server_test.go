package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/bi-tools/weather-mcp/pkg/core"
	"github.com/bi-tools/weather-mcp/pkg/oauth"
	"github.com/bi-tools/weather-mcp/pkg/store"
	"github.com/bi-tools/weather-mcp/pkg/weather"

	"github.com/gin-gonic/gin"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

const testIssuer = "http://localhost:8080"

const (
	taipeiGeo     = `[{"name":"Taipei","lat":25.03,"lon":121.56,"country":"TW"}]`
	taipeiWeather = `{"coord":{"lon":121.56,"lat":25.03},"weather":[{"main":"Clouds","description":"scattered clouds","icon":"03d"}],"main":{"temp":28.43,"feels_like":31.17,"temp_min":27.1,"temp_max":29.8,"pressure":1008,"humidity":65},"visibility":10000,"wind":{"speed":3.6,"deg":140},"clouds":{"all":40},"dt":1755820000,"sys":{"country":"TW","sunrise":1755800000,"sunset":1755845000},"name":"Taipei"}`

	londonGeo     = `[{"name":"London","lat":51.51,"lon":-0.13,"country":"GB"}]`
	londonWeather = `{"coord":{"lon":-0.13,"lat":51.51},"weather":[{"main":"Rain","description":"light rain","icon":"10d"}],"main":{"temp":16.2,"feels_like":15.8,"temp_min":14.9,"temp_max":17.3,"pressure":1012,"humidity":80},"visibility":9000,"wind":{"speed":5.1,"deg":230},"clouds":{"all":90},"dt":1755820000,"sys":{"country":"GB","sunrise":1755766000,"sunset":1755819000},"name":"London"}`
)

// fakeUpstream serves canned OpenWeatherMap geocoding and current weather
// responses for Taipei and London; every other city geocodes to nothing.
func fakeUpstream(t *testing.T) *weather.Client {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/geo/1.0/direct", func(w http.ResponseWriter, r *http.Request) {
		city, _, _ := strings.Cut(r.URL.Query().Get("q"), ",")
		switch city {
		case "Taipei":
			fmt.Fprint(w, taipeiGeo)
		case "London":
			fmt.Fprint(w, londonGeo)
		default:
			fmt.Fprint(w, "[]")
		}
	})
	mux.HandleFunc("/data/2.5/weather", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "" {
			fmt.Fprint(w, "{}")
			return
		}
		switch r.URL.Query().Get("lat") {
		case "25.03":
			fmt.Fprint(w, taipeiWeather)
		case "51.51":
			fmt.Fprint(w, londonWeather)
		default:
			http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return weather.NewClientFromOptions(weather.Options{
		APIKey:     "test-key",
		GeocodeURL: srv.URL + "/geo/1.0/direct",
		WeatherURL: srv.URL + "/data/2.5/weather",
	})
}

// brokenUpstream answers every request with a 500.
func brokenUpstream(t *testing.T) *weather.Client {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"internal error"}`, http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	return weather.NewClientFromOptions(weather.Options{
		APIKey:     "test-key",
		GeocodeURL: srv.URL + "/geo/1.0/direct",
		WeatherURL: srv.URL + "/data/2.5/weather",
	})
}

func newTestServer(t *testing.T, weatherClient *weather.Client) *gin.Engine {
	t.Helper()
	app := newApplication(store.NewMemoryStore(), weatherClient, testIssuer)
	return newRouter(app)
}

func doRequest(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func doForm(t *testing.T, router *gin.Engine, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dst); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
}

func registerTestClient(t *testing.T, router *gin.Engine, redirectURI string) *core.Client {
	t.Helper()

	w := doRequest(t, router, http.MethodPost, "/api/clients/register", oauth.ClientRegistration{
		ClientName:   "Test Client",
		RedirectURIs: []string{redirectURI},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register status = %d, want %d (body %s)", w.Code, http.StatusCreated, w.Body.String())
	}
	var client core.Client
	decodeJSON(t, w, &client)
	return &client
}

// requestAuthorization performs the authorize request and returns the parsed
// redirect location.
func requestAuthorization(t *testing.T, router *gin.Engine, params url.Values) *url.URL {
	t.Helper()

	w := doRequest(t, router, http.MethodGet, "/oauth/authorize?"+params.Encode(), nil)
	if w.Code != http.StatusFound {
		t.Fatalf("authorize status = %d, want %d (body %s)", w.Code, http.StatusFound, w.Body.String())
	}
	loc, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("failed to parse redirect location: %v", err)
	}
	return loc
}

func TestOAuthFlow_EndToEnd(t *testing.T) {
	router := newTestServer(t, fakeUpstream(t))
	redirectURI := "http://localhost:8123/callback"
	client := registerTestClient(t, router, redirectURI)

	loc := requestAuthorization(t, router, url.Values{
		"response_type": {"code"},
		"client_id":     {client.ID},
		"redirect_uri":  {redirectURI},
		"state":         {"xyz-123"},
	})
	if got := loc.Query().Get("state"); got != "xyz-123" {
		t.Errorf("redirect state = %q, want %q", got, "xyz-123")
	}
	code := loc.Query().Get("code")
	if code == "" {
		t.Fatalf("redirect %q carries no code", loc.String())
	}

	w := doForm(t, router, "/oauth/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {client.ID},
		"client_secret": {client.Secret},
		"redirect_uri":  {redirectURI},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("token status = %d, want %d (body %s)", w.Code, http.StatusOK, w.Body.String())
	}

	var token oauth.Token
	decodeJSON(t, w, &token)
	if !strings.HasPrefix(token.AccessToken, "mcp_token_") {
		t.Errorf("access token %q lacks mcp_token_ prefix", token.AccessToken)
	}
	if !strings.HasPrefix(token.RefreshToken, "mcp_refresh_") {
		t.Errorf("refresh token %q lacks mcp_refresh_ prefix", token.RefreshToken)
	}
	if token.TokenType != "bearer" {
		t.Errorf("token_type = %q, want %q", token.TokenType, "bearer")
	}
	if token.ExpiresIn != 3600 {
		t.Errorf("expires_in = %d, want 3600", token.ExpiresIn)
	}
	if token.Scope != oauth.DefaultScope {
		t.Errorf("scope = %q, want %q", token.Scope, oauth.DefaultScope)
	}

	// Codes are single use: replaying the exchange must fail.
	w = doForm(t, router, "/oauth/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {client.ID},
		"client_secret": {client.Secret},
		"redirect_uri":  {redirectURI},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("replayed exchange status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if !strings.Contains(w.Body.String(), `"error":"invalid_grant"`) {
		t.Errorf("replayed exchange body = %s, want invalid_grant", w.Body.String())
	}
}

func TestOAuthFlow_PKCE(t *testing.T) {
	router := newTestServer(t, fakeUpstream(t))
	redirectURI := "http://localhost:8123/callback"
	client := registerTestClient(t, router, redirectURI)
	verifier := "plain-verifier-value"

	authorize := func(t *testing.T) string {
		loc := requestAuthorization(t, router, url.Values{
			"response_type":         {"code"},
			"client_id":             {client.ID},
			"redirect_uri":          {redirectURI},
			"code_challenge":        {verifier},
			"code_challenge_method": {"plain"},
		})
		return loc.Query().Get("code")
	}
	exchange := func(t *testing.T, code, codeVerifier string) *httptest.ResponseRecorder {
		form := url.Values{
			"grant_type":    {"authorization_code"},
			"code":          {code},
			"client_id":     {client.ID},
			"client_secret": {client.Secret},
			"redirect_uri":  {redirectURI},
		}
		if codeVerifier != "" {
			form.Set("code_verifier", codeVerifier)
		}
		return doForm(t, router, "/oauth/token", form)
	}

	w := exchange(t, authorize(t), "")
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), `"error":"invalid_request"`) {
		t.Errorf("exchange without verifier = %d %s, want 400 invalid_request", w.Code, w.Body.String())
	}

	w = exchange(t, authorize(t), "wrong-verifier")
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), `"error":"invalid_grant"`) {
		t.Errorf("exchange with wrong verifier = %d %s, want 400 invalid_grant", w.Code, w.Body.String())
	}

	w = exchange(t, authorize(t), verifier)
	if w.Code != http.StatusOK {
		t.Errorf("exchange with matching verifier = %d %s, want 200", w.Code, w.Body.String())
	}
}

func TestOAuthAuthorize_Rejections(t *testing.T) {
	router := newTestServer(t, fakeUpstream(t))
	redirectURI := "http://localhost:8123/callback"
	client := registerTestClient(t, router, redirectURI)

	tests := []struct {
		name      string
		params    url.Values
		wantError string
	}{
		{
			name: "missing client_id",
			params: url.Values{
				"response_type": {"code"},
				"redirect_uri":  {redirectURI},
			},
			wantError: "invalid_request",
		},
		{
			name: "unknown client",
			params: url.Values{
				"response_type": {"code"},
				"client_id":     {"no-such-client"},
				"redirect_uri":  {redirectURI},
			},
			wantError: "invalid_client",
		},
		{
			name: "unregistered redirect_uri",
			params: url.Values{
				"response_type": {"code"},
				"client_id":     {client.ID},
				"redirect_uri":  {"http://evil.example.com/callback"},
			},
			wantError: "invalid_redirect_uri",
		},
		{
			name: "unsupported response_type",
			params: url.Values{
				"response_type": {"token"},
				"client_id":     {client.ID},
				"redirect_uri":  {redirectURI},
			},
			wantError: "unsupported_response_type",
		},
		{
			name: "bad code_challenge_method",
			params: url.Values{
				"response_type":         {"code"},
				"client_id":             {client.ID},
				"redirect_uri":          {redirectURI},
				"code_challenge":        {"challenge"},
				"code_challenge_method": {"S512"},
			},
			wantError: "invalid_request",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, router, http.MethodGet, "/oauth/authorize?"+tt.params.Encode(), nil)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, http.StatusBadRequest, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), `"error":"`+tt.wantError+`"`) {
				t.Errorf("body = %s, want error %q", w.Body.String(), tt.wantError)
			}
		})
	}

	// response_type defaults to code when omitted.
	t.Run("response_type defaults to code", func(t *testing.T) {
		loc := requestAuthorization(t, router, url.Values{
			"client_id":    {client.ID},
			"redirect_uri": {redirectURI},
		})
		if loc.Query().Get("code") == "" {
			t.Errorf("redirect %q carries no code", loc.String())
		}
	})
}

func TestOAuthToken_Rejections(t *testing.T) {
	router := newTestServer(t, fakeUpstream(t))
	redirectURI := "http://localhost:8123/callback"
	client := registerTestClient(t, router, redirectURI)

	issueCode := func(t *testing.T) string {
		loc := requestAuthorization(t, router, url.Values{
			"response_type": {"code"},
			"client_id":     {client.ID},
			"redirect_uri":  {redirectURI},
		})
		return loc.Query().Get("code")
	}

	tests := []struct {
		name      string
		form      func(code string) url.Values
		wantError string
	}{
		{
			name: "unsupported grant_type",
			form: func(code string) url.Values {
				return url.Values{
					"grant_type":    {"client_credentials"},
					"code":          {code},
					"client_id":     {client.ID},
					"client_secret": {client.Secret},
					"redirect_uri":  {redirectURI},
				}
			},
			wantError: "unsupported_grant_type",
		},
		{
			name: "wrong client_secret",
			form: func(code string) url.Values {
				return url.Values{
					"grant_type":    {"authorization_code"},
					"code":          {code},
					"client_id":     {client.ID},
					"client_secret": {"not-the-secret"},
					"redirect_uri":  {redirectURI},
				}
			},
			wantError: "invalid_client",
		},
		{
			name: "redirect_uri mismatch",
			form: func(code string) url.Values {
				return url.Values{
					"grant_type":    {"authorization_code"},
					"code":          {code},
					"client_id":     {client.ID},
					"client_secret": {client.Secret},
					"redirect_uri":  {"http://localhost:8123/other"},
				}
			},
			wantError: "invalid_grant",
		},
		{
			name: "unknown code",
			form: func(string) url.Values {
				return url.Values{
					"grant_type":    {"authorization_code"},
					"code":          {"never-issued"},
					"client_id":     {client.ID},
					"client_secret": {client.Secret},
					"redirect_uri":  {redirectURI},
				}
			},
			wantError: "invalid_grant",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doForm(t, router, "/oauth/token", tt.form(issueCode(t)))
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, http.StatusBadRequest, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), `"error":"`+tt.wantError+`"`) {
				t.Errorf("body = %s, want error %q", w.Body.String(), tt.wantError)
			}
		})
	}
}

func TestClientRegistration(t *testing.T) {
	router := newTestServer(t, fakeUpstream(t))

	t.Run("returns credentials and defaults", func(t *testing.T) {
		client := registerTestClient(t, router, "http://localhost:8123/callback")
		if client.ID == "" {
			t.Error("client_id is empty")
		}
		if client.Secret == "" {
			t.Error("client_secret is empty")
		}
		if client.Name != "Test Client" {
			t.Errorf("client_name = %q, want %q", client.Name, "Test Client")
		}
		if len(client.GrantTypes) != 1 || client.GrantTypes[0] != "authorization_code" {
			t.Errorf("grant_types = %v, want [authorization_code]", client.GrantTypes)
		}
		if client.TokenAuthMethod != "client_secret_post" {
			t.Errorf("token_endpoint_auth_method = %q, want client_secret_post", client.TokenAuthMethod)
		}
		if client.Scope != oauth.DefaultScope {
			t.Errorf("scope = %q, want %q", client.Scope, oauth.DefaultScope)
		}
		if !client.Active {
			t.Error("client is not active")
		}
	})

	t.Run("clients alias registers too", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPost, "/api/clients", oauth.ClientRegistration{
			ClientName:   "Alias Client",
			RedirectURIs: []string{"http://localhost:8124/callback"},
		})
		if w.Code != http.StatusCreated {
			t.Errorf("status = %d, want %d (body %s)", w.Code, http.StatusCreated, w.Body.String())
		}
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/clients/register", strings.NewReader("{not json"))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("rejects missing redirect_uris", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPost, "/api/clients/register", oauth.ClientRegistration{
			ClientName: "No Redirects",
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d (body %s)", w.Code, http.StatusBadRequest, w.Body.String())
		}
		if !strings.Contains(w.Body.String(), "redirect_uris") {
			t.Errorf("body = %s, want mention of redirect_uris", w.Body.String())
		}
	})

	t.Run("listing redacts secrets", func(t *testing.T) {
		client := registerTestClient(t, router, "http://localhost:8125/callback")

		w := doRequest(t, router, http.MethodGet, "/api/clients", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		body := w.Body.String()
		if !strings.Contains(body, client.ID) {
			t.Errorf("listing %s does not contain client %s", body, client.ID)
		}
		if strings.Contains(body, client.Secret) {
			t.Error("listing leaks a client secret")
		}
		if strings.Contains(body, "client_secret") {
			t.Errorf("listing %s carries a client_secret field", body)
		}
	})
}

func TestToolsList(t *testing.T) {
	router := newTestServer(t, fakeUpstream(t))

	w := doRequest(t, router, http.MethodPost, "/api/tools/list", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var payload struct {
		Tools []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"tools"`
	}
	decodeJSON(t, w, &payload)

	want := []string{"get_weather", "compare_weather", "get_weather_forecast"}
	if len(payload.Tools) != len(want) {
		t.Fatalf("got %d tools, want %d", len(payload.Tools), len(want))
	}
	for i, name := range want {
		if payload.Tools[i].Name != name {
			t.Errorf("tools[%d].name = %q, want %q", i, payload.Tools[i].Name, name)
		}
		if payload.Tools[i].Description == "" {
			t.Errorf("tool %q has no description", name)
		}
	}
}

func TestToolsCall(t *testing.T) {
	router := newTestServer(t, fakeUpstream(t))

	call := func(t *testing.T, body any) *httptest.ResponseRecorder {
		t.Helper()
		return doRequest(t, router, http.MethodPost, "/api/tools/call", body)
	}
	firstText := func(t *testing.T, w *httptest.ResponseRecorder) string {
		t.Helper()
		var payload struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		}
		decodeJSON(t, w, &payload)
		if len(payload.Content) == 0 {
			t.Fatalf("response %s carries no content", w.Body.String())
		}
		if payload.Content[0].Type != "text" {
			t.Fatalf("content type = %q, want text", payload.Content[0].Type)
		}
		return payload.Content[0].Text
	}

	t.Run("get_weather", func(t *testing.T) {
		w := call(t, gin.H{"name": "get_weather", "arguments": gin.H{"city": "Taipei"}})
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d (body %s)", w.Code, http.StatusOK, w.Body.String())
		}
		text := firstText(t, w)
		for _, want := range []string{
			"🌤️ **Weather in Taipei, TW**",
			"• Temperature: 28.4°C (feels like 31.2°C)",
			"• Weather: Clouds (scattered clouds)",
			"• Humidity: 65%",
			"• Wind: 3.6 m/s",
		} {
			if !strings.Contains(text, want) {
				t.Errorf("text %q does not contain %q", text, want)
			}
		}
	})

	t.Run("compare_weather", func(t *testing.T) {
		w := call(t, gin.H{"name": "compare_weather", "arguments": gin.H{"city1": "Taipei", "city2": "London"}})
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d (body %s)", w.Code, http.StatusOK, w.Body.String())
		}
		text := firstText(t, w)
		for _, want := range []string{
			"🌡️ **Weather Comparison**",
			"**Taipei:**",
			"**London:**",
			"• Taipei is 12.2°C warmer",
			"• Humidity difference: 15%",
		} {
			if !strings.Contains(text, want) {
				t.Errorf("text %q does not contain %q", text, want)
			}
		}
	})

	t.Run("get_weather_forecast placeholder", func(t *testing.T) {
		w := call(t, gin.H{"name": "get_weather_forecast", "arguments": gin.H{"city": "Taipei"}})
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d (body %s)", w.Code, http.StatusOK, w.Body.String())
		}
		text := firstText(t, w)
		if !strings.Contains(text, "📅 **3-day weather forecast for Taipei**") {
			t.Errorf("text %q does not announce the 3-day default", text)
		}
		if !strings.Contains(text, "coming soon") {
			t.Errorf("text %q does not mark the forecast as unavailable", text)
		}
	})

	t.Run("unknown tool", func(t *testing.T) {
		w := call(t, gin.H{"name": "does_not_exist", "arguments": gin.H{}})
		if w.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want %d (body %s)", w.Code, http.StatusNotFound, w.Body.String())
		}
		if !strings.Contains(w.Body.String(), "tool not found") {
			t.Errorf("body = %s, want tool not found", w.Body.String())
		}
	})

	t.Run("unknown city", func(t *testing.T) {
		w := call(t, gin.H{"name": "get_weather", "arguments": gin.H{"city": "Atlantis"}})
		if w.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want %d (body %s)", w.Code, http.StatusNotFound, w.Body.String())
		}
		if !strings.Contains(w.Body.String(), "Atlantis") {
			t.Errorf("body = %s, want the city name", w.Body.String())
		}
	})

	t.Run("missing city", func(t *testing.T) {
		w := call(t, gin.H{"name": "get_weather", "arguments": gin.H{}})
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d (body %s)", w.Code, http.StatusBadRequest, w.Body.String())
		}
	})

	t.Run("days out of range", func(t *testing.T) {
		w := call(t, gin.H{"name": "get_weather_forecast", "arguments": gin.H{"city": "Taipei", "days": 9}})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want %d (body %s)", w.Code, http.StatusBadRequest, w.Body.String())
		}
		if !strings.Contains(w.Body.String(), "days") {
			t.Errorf("body = %s, want mention of days", w.Body.String())
		}
	})

	t.Run("missing tool name", func(t *testing.T) {
		w := call(t, gin.H{"arguments": gin.H{"city": "Taipei"}})
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/tools/call", strings.NewReader("{not json"))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

func TestToolsCall_WeatherUnavailable(t *testing.T) {
	t.Run("missing API key", func(t *testing.T) {
		router := newTestServer(t, weather.NewClient(""))
		w := doRequest(t, router, http.MethodPost, "/api/tools/call",
			gin.H{"name": "get_weather", "arguments": gin.H{"city": "Taipei"}})
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want %d (body %s)", w.Code, http.StatusInternalServerError, w.Body.String())
		}
		if !strings.Contains(w.Body.String(), "weather API key not configured") {
			t.Errorf("body = %s, want configuration error", w.Body.String())
		}
	})

	t.Run("upstream failure", func(t *testing.T) {
		router := newTestServer(t, brokenUpstream(t))
		w := doRequest(t, router, http.MethodPost, "/api/tools/call",
			gin.H{"name": "get_weather", "arguments": gin.H{"city": "Taipei"}})
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want %d (body %s)", w.Code, http.StatusInternalServerError, w.Body.String())
		}
		if !strings.Contains(w.Body.String(), "upstream unavailable") {
			t.Errorf("body = %s, want upstream unavailable", w.Body.String())
		}
	})
}

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		name           string
		client         func(t *testing.T) *weather.Client
		wantWeatherAPI string
	}{
		{
			name:           "upstream reachable",
			client:         fakeUpstream,
			wantWeatherAPI: "working",
		},
		{
			name:           "missing API key",
			client:         func(*testing.T) *weather.Client { return weather.NewClient("") },
			wantWeatherAPI: "not_configured",
		},
		{
			name:           "upstream failing",
			client:         brokenUpstream,
			wantWeatherAPI: "error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestServer(t, tt.client(t))

			w := doRequest(t, router, http.MethodGet, "/health", nil)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}

			var payload struct {
				Status     string   `json:"status"`
				WeatherAPI string   `json:"weather_api"`
				Endpoints  []string `json:"endpoints"`
			}
			decodeJSON(t, w, &payload)
			if payload.Status != "healthy" {
				t.Errorf("status = %q, want healthy", payload.Status)
			}
			if payload.WeatherAPI != tt.wantWeatherAPI {
				t.Errorf("weather_api = %q, want %q", payload.WeatherAPI, tt.wantWeatherAPI)
			}
			found := false
			for _, e := range payload.Endpoints {
				if e == "/mcp" {
					found = true
				}
			}
			if !found {
				t.Errorf("endpoints %v do not include /mcp", payload.Endpoints)
			}
		})
	}
}

func TestRootEndpoint(t *testing.T) {
	router := newTestServer(t, fakeUpstream(t))

	w := doRequest(t, router, http.MethodGet, "/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var payload struct {
		Service   string            `json:"service"`
		Version   string            `json:"version"`
		Endpoints map[string]string `json:"endpoints"`
	}
	decodeJSON(t, w, &payload)
	if payload.Service != serverName {
		t.Errorf("service = %q, want %q", payload.Service, serverName)
	}
	if payload.Version != serverVersion {
		t.Errorf("version = %q, want %q", payload.Version, serverVersion)
	}
	if payload.Endpoints["mcp"] != "/mcp" {
		t.Errorf("endpoints.mcp = %q, want /mcp", payload.Endpoints["mcp"])
	}
}

func TestWellKnownMetadata(t *testing.T) {
	router := newTestServer(t, fakeUpstream(t))

	t.Run("authorization server", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/.well-known/oauth-authorization-server", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}

		var payload map[string]any
		decodeJSON(t, w, &payload)
		wantFields := map[string]string{
			"issuer":                 testIssuer,
			"authorization_endpoint": testIssuer + "/oauth/authorize",
			"token_endpoint":         testIssuer + "/oauth/token",
			"registration_endpoint":  testIssuer + "/api/clients/register",
		}
		for field, want := range wantFields {
			if got, _ := payload[field].(string); got != want {
				t.Errorf("%s = %q, want %q", field, got, want)
			}
		}
		if !strings.Contains(w.Body.String(), `"weather:read"`) {
			t.Errorf("body = %s, want weather:read in scopes_supported", w.Body.String())
		}
	})

	t.Run("protected resource", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/.well-known/oauth-protected-resource", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}

		var payload struct {
			AuthorizationServers []string `json:"authorization_servers"`
			Resource             string   `json:"resource"`
			ResourceName         string   `json:"resource_name"`
		}
		decodeJSON(t, w, &payload)
		if payload.Resource != testIssuer+"/mcp" {
			t.Errorf("resource = %q, want %q", payload.Resource, testIssuer+"/mcp")
		}
		if payload.ResourceName != serverName {
			t.Errorf("resource_name = %q, want %q", payload.ResourceName, serverName)
		}
		if len(payload.AuthorizationServers) != 1 || payload.AuthorizationServers[0] != testIssuer {
			t.Errorf("authorization_servers = %v, want [%s]", payload.AuthorizationServers, testIssuer)
		}
	})
}

func TestMCPEndpoint_RequiresAuthorization(t *testing.T) {
	router := newTestServer(t, fakeUpstream(t))

	for _, method := range []string{http.MethodPost, http.MethodGet, http.MethodDelete} {
		t.Run(method+" without token", func(t *testing.T) {
			w := doRequest(t, router, method, "/mcp", nil)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}

	t.Run("authorized request passes the middleware", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/mcp",
			strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json, text/event-stream")
		req.Header.Set("Authorization", "Bearer mcp_token_test")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code == http.StatusUnauthorized {
			t.Errorf("status = %d, authorized request must not be rejected by the auth middleware", w.Code)
		}
	})
}

func TestSSEStream(t *testing.T) {
	router := newTestServer(t, fakeUpstream(t))

	// A pre-cancelled context lets Serve write the connect frame and return
	// without waiting for a heartbeat tick.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/sse", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", got)
	}
	if got := w.Header().Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", got)
	}

	body := w.Body.String()
	if !strings.Contains(body, `"type":"mcp_connected"`) {
		t.Errorf("stream %q does not open with mcp_connected", body)
	}
	if !strings.Contains(body, serverName) {
		t.Errorf("stream %q does not name the server", body)
	}
	if !strings.Contains(body, "get_weather") {
		t.Errorf("stream %q does not advertise the tools", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	router := newTestServer(t, fakeUpstream(t))

	req := httptest.NewRequest(http.MethodOptions, "/mcp", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "DELETE") {
		t.Errorf("Access-Control-Allow-Methods = %q, want DELETE included", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, "Mcp-Protocol-Version") {
		t.Errorf("Access-Control-Allow-Headers = %q, want Mcp-Protocol-Version included", got)
	}
}
