// Package weather provides the MCP tools for current weather lookup,
// two-city comparison, and the forecast placeholder.
package weather

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/bi-tools/weather-mcp/pkg/core"
	owm "github.com/bi-tools/weather-mcp/pkg/weather"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Service is the weather lookup the tool handlers depend on.
// *owm.Client satisfies it.
type Service interface {
	Current(ctx context.Context, city, countryCode string) (*owm.Report, error)
}

// GetWeatherTool defines the MCP tool for fetching current weather.
var GetWeatherTool = mcp.NewTool("get_weather",
	mcp.WithDescription("Get current weather for a city"),
	mcp.WithString("city",
		mcp.Description("City name (e.g., 'London')"),
		mcp.Required(),
	),
	mcp.WithString("country_code",
		mcp.Description("Optional country code"),
	),
)

// CompareWeatherTool defines the MCP tool for comparing weather between two cities.
var CompareWeatherTool = mcp.NewTool("compare_weather",
	mcp.WithDescription("Compare weather between two cities"),
	mcp.WithString("city1",
		mcp.Description("First city"),
		mcp.Required(),
	),
	mcp.WithString("city2",
		mcp.Description("Second city"),
		mcp.Required(),
	),
)

// GetWeatherForecastTool defines the MCP tool for weather forecasts. The
// forecast itself is not implemented yet; calls return a placeholder message.
var GetWeatherForecastTool = mcp.NewTool("get_weather_forecast",
	mcp.WithDescription("Get weather forecast for a city"),
	mcp.WithString("city",
		mcp.Description("City name"),
		mcp.Required(),
	),
	mcp.WithNumber("days",
		mcp.Description("Number of forecast days (1-5), defaults to 3"),
	),
)

// HandleGetWeather returns the handler for the "get_weather" tool, fetching
// the current conditions for a city through the given service.
func HandleGetWeather(svc Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		logger := core.LoggerFromCtx(ctx)
		logger.Info("Handling get_weather tool")

		city, ok := req.GetArguments()["city"].(string)
		if !ok || city == "" {
			logger.Error("Missing city argument")
			return nil, fmt.Errorf("missing city argument")
		}
		countryCode, _ := req.GetArguments()["country_code"].(string)

		report, err := svc.Current(ctx, city, countryCode)
		if err != nil {
			logger.Error("Weather lookup failed", "city", city, "error", err)
			return nil, err
		}
		logger.Info("Weather lookup succeeded", "city", report.City)
		return mcp.NewToolResultText(formatCurrent(report)), nil
	}
}

// HandleCompareWeather returns the handler for the "compare_weather" tool. It
// fetches both cities and reports which one is warmer. Equal temperatures are
// reported in favor of the second city.
func HandleCompareWeather(svc Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		logger := core.LoggerFromCtx(ctx)
		logger.Info("Handling compare_weather tool")

		city1, ok1 := req.GetArguments()["city1"].(string)
		city2, ok2 := req.GetArguments()["city2"].(string)
		if !ok1 || !ok2 || city1 == "" || city2 == "" {
			logger.Error("Missing city1 or city2 argument")
			return nil, fmt.Errorf("missing city1 or city2 argument")
		}

		report1, err := svc.Current(ctx, city1, "")
		if err != nil {
			logger.Error("Weather lookup failed", "city", city1, "error", err)
			return nil, err
		}
		report2, err := svc.Current(ctx, city2, "")
		if err != nil {
			logger.Error("Weather lookup failed", "city", city2, "error", err)
			return nil, err
		}
		return mcp.NewToolResultText(formatComparison(city1, city2, report1, report2)), nil
	}
}

// HandleGetWeatherForecast returns the handler for the "get_weather_forecast"
// tool. Only the placeholder response is produced until forecast data lands.
func HandleGetWeatherForecast() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		logger := core.LoggerFromCtx(ctx)
		logger.Info("Handling get_weather_forecast tool")

		city, ok := req.GetArguments()["city"].(string)
		if !ok || city == "" {
			logger.Error("Missing city argument")
			return nil, fmt.Errorf("missing city argument")
		}
		days := 3
		if raw, ok := req.GetArguments()["days"].(float64); ok {
			days = int(raw)
		}
		if days < 1 || days > 5 {
			logger.Error("Invalid days argument", "days", days)
			return nil, fmt.Errorf("days must be between 1 and 5")
		}
		text := fmt.Sprintf("📅 **%d-day weather forecast for %s**\n\nForecast support is coming soon.", days, city)
		return mcp.NewToolResultText(text), nil
	}
}

// round1 rounds to one decimal, matching how temperatures are presented.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func formatTemp(v float64) string {
	return strconv.FormatFloat(round1(v), 'f', 1, 64)
}

// capitalize uppercases the first rune and lowercases the rest.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	return string(unicode.ToUpper(r[0])) + strings.ToLower(string(r[1:]))
}

func formatCurrent(report *owm.Report) string {
	return fmt.Sprintf(`🌤️ **Weather in %s, %s**

**Current Conditions:**
• Temperature: %s°C (feels like %s°C)
• Weather: %s (%s)
• Humidity: %d%%
• Wind: %s m/s

**Today:**
• Sunrise: %s
• Sunset: %s`,
		report.City, report.Country,
		formatTemp(report.Temperature), formatTemp(report.FeelsLike),
		report.Main, capitalize(report.Description),
		report.Humidity,
		strconv.FormatFloat(report.WindSpeed, 'f', -1, 64),
		time.Unix(report.Sunrise, 0).Format("15:04:05"),
		time.Unix(report.Sunset, 0).Format("15:04:05"),
	)
}

func formatComparison(city1, city2 string, report1, report2 *owm.Report) string {
	temp1, temp2 := round1(report1.Temperature), round1(report2.Temperature)

	warmer := city2
	if temp1 > temp2 {
		warmer = city1
	}
	tempDiff := math.Abs(temp1 - temp2)
	humidityDiff := report1.Humidity - report2.Humidity
	if humidityDiff < 0 {
		humidityDiff = -humidityDiff
	}

	return fmt.Sprintf(`🌡️ **Weather Comparison**

**%s:**
• Temperature: %s°C
• Conditions: %s
• Humidity: %d%%

**%s:**
• Temperature: %s°C
• Conditions: %s
• Humidity: %d%%

**Comparison:**
• %s is %s°C warmer
• Humidity difference: %d%%`,
		city1, formatTemp(report1.Temperature), report1.Main, report1.Humidity,
		city2, formatTemp(report2.Temperature), report2.Main, report2.Humidity,
		warmer, strconv.FormatFloat(tempDiff, 'f', 1, 64), humidityDiff,
	)
}
