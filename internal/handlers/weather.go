// Package handlers implements the capability handlers the router selects
// between: weather, market prices, finance schemes, pest diagnosis and
// general agronomy advice.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"agribot/internal/domain"
)

// WeatherHandler answers weather questions from the OpenWeatherMap API:
// current conditions plus a 5-day forecast, fetched in parallel, then an
// optional completer advisory on top.
type WeatherHandler struct {
	apiBase   string
	apiKey    string
	client    *http.Client
	completer domain.Completer
	logger    *slog.Logger
}

type WeatherHandlerConfig struct {
	APIBase   string
	APIKey    string
	Timeout   time.Duration
	Completer domain.Completer // optional
	Logger    *slog.Logger
}

func NewWeatherHandler(cfg WeatherHandlerConfig) *WeatherHandler {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.openweathermap.org/data/2.5"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &WeatherHandler{
		apiBase:   cfg.APIBase,
		apiKey:    cfg.APIKey,
		client:    &http.Client{Timeout: cfg.Timeout},
		completer: cfg.Completer,
		logger:    cfg.Logger,
	}
}

func (h *WeatherHandler) Descriptor() domain.HandlerDescriptor {
	return domain.HandlerDescriptor{
		ID:       domain.HandlerWeather,
		Keywords: []string{"weather", "rain", "temperature", "forecast", "humidity", "irrigation timing"},
		Priority: 1,
	}
}

func (h *WeatherHandler) Execute(ctx context.Context, req *domain.Request) (domain.HandlerPayload, error) {
	location := req.Context.Location
	if location == "" {
		location = extractLocation(req.Text)
	}
	if location == "" {
		return nil, fmt.Errorf("no location in request or profile")
	}

	type currentRes struct {
		cur currentWeather
		err error
	}
	type forecastRes struct {
		days []domain.ForecastDay
		err  error
	}
	curCh := make(chan currentRes, 1)
	fcCh := make(chan forecastRes, 1)

	go func() {
		cur, err := h.fetchCurrent(ctx, location)
		curCh <- currentRes{cur: cur, err: err}
	}()
	go func() {
		days, err := h.fetchForecast(ctx, location)
		fcCh <- forecastRes{days: days, err: err}
	}()

	cur := <-curCh
	fc := <-fcCh

	if cur.err != nil {
		return nil, fmt.Errorf("current weather: %w", cur.err)
	}
	if fc.err != nil {
		// A missing forecast degrades the payload, it does not fail it.
		h.logger.Warn("forecast fetch failed", "location", location, "error", fc.err)
	}

	payload := domain.WeatherPayload{
		Location:    cur.cur.Name,
		Temperature: cur.cur.Main.Temp,
		FeelsLike:   cur.cur.Main.FeelsLike,
		Humidity:    cur.cur.Main.Humidity,
		Condition:   cur.cur.Condition(),
		WindKmh:     cur.cur.Wind.Speed * 3.6,
		Forecast:    fc.days,
	}
	payload.Advisory = h.advisory(ctx, req, payload)
	return payload, nil
}

func (h *WeatherHandler) advisory(ctx context.Context, req *domain.Request, p domain.WeatherPayload) string {
	if h.completer == nil {
		return ""
	}
	prompt := fmt.Sprintf(
		"A farmer asks: %s\nWeather data: %s\nGive 2-3 short practical farming tips for this weather.",
		req.Text, p.Summary())
	if req.Context.Crop != "" {
		prompt += "\nCrop: " + req.Context.Crop
	}
	reply, err := h.completer.Complete(ctx, prompt)
	if err != nil {
		h.logger.Warn("weather advisory failed", "error", err)
		return ""
	}
	return strings.TrimSpace(reply)
}

// --- OpenWeatherMap wire types ---

type currentWeather struct {
	Name string `json:"name"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"` // m/s
	} `json:"wind"`
}

func (w currentWeather) Condition() string {
	if len(w.Weather) == 0 {
		return "unknown"
	}
	return w.Weather[0].Description
}

type forecastResponse struct {
	List []struct {
		DtTxt string `json:"dt_txt"` // "2026-08-24 12:00:00"
		Main  struct {
			TempMin  float64 `json:"temp_min"`
			TempMax  float64 `json:"temp_max"`
			Humidity float64 `json:"humidity"`
		} `json:"main"`
		Weather []struct {
			Description string `json:"description"`
		} `json:"weather"`
		Pop float64 `json:"pop"` // rain probability 0..1
	} `json:"list"`
}

func (h *WeatherHandler) fetchCurrent(ctx context.Context, location string) (currentWeather, error) {
	var cur currentWeather
	if err := h.getJSON(ctx, "/weather", location, &cur); err != nil {
		return cur, err
	}
	return cur, nil
}

// fetchForecast collapses the API's 3-hourly entries into per-day summaries.
func (h *WeatherHandler) fetchForecast(ctx context.Context, location string) ([]domain.ForecastDay, error) {
	var fc forecastResponse
	if err := h.getJSON(ctx, "/forecast", location, &fc); err != nil {
		return nil, err
	}

	type agg struct {
		min, max    float64
		humiditySum float64
		popMax      float64
		conditions  map[string]int
		samples     int
	}
	days := make(map[string]*agg)
	for _, entry := range fc.List {
		date, _, ok := strings.Cut(entry.DtTxt, " ")
		if !ok {
			continue
		}
		a := days[date]
		if a == nil {
			a = &agg{min: entry.Main.TempMin, max: entry.Main.TempMax, conditions: make(map[string]int)}
			days[date] = a
		}
		if entry.Main.TempMin < a.min {
			a.min = entry.Main.TempMin
		}
		if entry.Main.TempMax > a.max {
			a.max = entry.Main.TempMax
		}
		a.humiditySum += entry.Main.Humidity
		if entry.Pop > a.popMax {
			a.popMax = entry.Pop
		}
		if len(entry.Weather) > 0 {
			a.conditions[entry.Weather[0].Description]++
		}
		a.samples++
	}

	dates := make([]string, 0, len(days))
	for d := range days {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	if len(dates) > 5 {
		dates = dates[:5]
	}

	out := make([]domain.ForecastDay, 0, len(dates))
	for _, date := range dates {
		a := days[date]
		out = append(out, domain.ForecastDay{
			Date:      date,
			DayName:   dayName(date),
			MinTemp:   a.min,
			MaxTemp:   a.max,
			Humidity:  a.humiditySum / float64(a.samples),
			Condition: dominantCondition(a.conditions),
			RainProb:  a.popMax * 100,
		})
	}
	return out, nil
}

func (h *WeatherHandler) getJSON(ctx context.Context, path, location string, out any) error {
	q := url.Values{}
	q.Set("q", location)
	q.Set("appid", h.apiKey)
	q.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, "GET", h.apiBase+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("location %q not found", location)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("weather API returned %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func dayName(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return ""
	}
	return t.Weekday().String()
}

func dominantCondition(counts map[string]int) string {
	best, bestN := "unknown", 0
	for c, n := range counts {
		if n > bestN {
			best, bestN = c, n
		}
	}
	return best
}

// extractLocation pulls a trailing "in <place>" phrase out of the request
// text. Crude, but covers the common phrasing; the profile location is
// preferred whenever present.
func extractLocation(text string) string {
	lower := strings.ToLower(text)
	idx := strings.LastIndex(lower, " in ")
	if idx < 0 {
		return ""
	}
	loc := strings.TrimSpace(text[idx+4:])
	loc = strings.Trim(loc, "?.!, ")
	if loc == "" || len(strings.Fields(loc)) > 3 {
		return ""
	}
	return loc
}
