package plugins

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/hupe1980/weathermesh/core"
	"github.com/hupe1980/weathermesh/tool"
)

// Temperature units accepted by get_weather.
const (
	UnitCelsius    = "celsius"
	UnitFahrenheit = "fahrenheit"
)

// Observation is the current weather at a location.
type Observation struct {
	Location  string   `json:"location"`
	TempC     float64  `json:"tempC"`
	TempF     *float64 `json:"tempF,omitempty"`
	Condition string   `json:"condition"`
	Humidity  int      `json:"humidity"`
	WindKph   float64  `json:"windKph"`
}

// WeatherProvider returns current conditions for a location.
type WeatherProvider interface {
	Current(ctx context.Context, location string) (Observation, error)
}

// StaticWeatherProvider serves fixed observations for known cities and
// derives stable synthetic values from the name for anything else.
type StaticWeatherProvider struct {
	known map[string]Observation
}

var conditions = []string{"sunny", "partly cloudy", "cloudy", "light rain", "rain", "windy", "foggy", "snow"}

// NewStaticWeatherProvider builds a provider from fixed observations.
func NewStaticWeatherProvider(known []Observation) *StaticWeatherProvider {
	p := &StaticWeatherProvider{known: make(map[string]Observation, len(known))}
	for _, o := range known {
		p.known[normalize(o.Location)] = o
	}
	return p
}

// DefaultWeatherProvider returns the built-in provider.
func DefaultWeatherProvider() *StaticWeatherProvider {
	return NewStaticWeatherProvider([]Observation{
		{Location: "Paris", TempC: 18, Condition: "cloudy", Humidity: 72, WindKph: 14},
		{Location: "London", TempC: 14, Condition: "light rain", Humidity: 81, WindKph: 19},
		{Location: "Berlin", TempC: 16, Condition: "partly cloudy", Humidity: 64, WindKph: 11},
		{Location: "Rome", TempC: 24, Condition: "sunny", Humidity: 48, WindKph: 8},
		{Location: "Madrid", TempC: 27, Condition: "sunny", Humidity: 33, WindKph: 10},
		{Location: "Amsterdam", TempC: 15, Condition: "windy", Humidity: 77, WindKph: 28},
		{Location: "New York", TempC: 21, Condition: "partly cloudy", Humidity: 58, WindKph: 16},
		{Location: "Seattle", TempC: 12, Condition: "rain", Humidity: 86, WindKph: 13},
		{Location: "Tokyo", TempC: 23, Condition: "cloudy", Humidity: 69, WindKph: 9},
		{Location: "Sydney", TempC: 19, Condition: "sunny", Humidity: 55, WindKph: 21},
	})
}

// Current implements WeatherProvider.
func (p *StaticWeatherProvider) Current(_ context.Context, location string) (Observation, error) {
	if o, ok := p.known[normalize(location)]; ok {
		return o, nil
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(normalize(location)))
	sum := h.Sum32()

	return Observation{
		Location:  location,
		TempC:     float64(int(sum%35) - 5),
		Condition: conditions[int(sum>>8)%len(conditions)],
		Humidity:  30 + int(sum>>16)%60,
		WindKph:   float64(int(sum>>4) % 40),
	}, nil
}

// WeatherPlugin exposes get_weather.
type WeatherPlugin struct {
	provider  WeatherProvider
	gazetteer Gazetteer
}

// NewWeatherPlugin creates the plugin. A non-nil gazetteer canonicalizes the
// requested location before the provider is asked.
func NewWeatherPlugin(provider WeatherProvider, gazetteer Gazetteer) *WeatherPlugin {
	if provider == nil {
		provider = DefaultWeatherProvider()
	}
	return &WeatherPlugin{provider: provider, gazetteer: gazetteer}
}

type getWeatherArgs struct {
	Location string  `json:"location" description:"City or place name, e.g. 'Paris'"`
	Unit     *string `json:"unit,omitempty" description:"Temperature unit" enum:"celsius|fahrenheit"`
}

// Tools returns the plugin's tools.
func (p *WeatherPlugin) Tools() []tool.Tool {
	return []tool.Tool{
		tool.NewFunctionToolFromStruct(
			"get_weather",
			"Get the current weather for a location.",
			getWeatherArgs{},
			p.getWeather,
		),
	}
}

func (p *WeatherPlugin) getWeather(tc *core.ToolContext, args map[string]any) (any, error) {
	location, _ := args["location"].(string)
	unit, _ := args["unit"].(string)

	if p.gazetteer != nil {
		if place, ok, err := p.gazetteer.Lookup(tc.Context(), location); err == nil && ok {
			location = place.Name
		}
	}

	obs, err := p.provider.Current(tc.Context(), location)
	if err != nil {
		return nil, err
	}

	if unit == UnitFahrenheit {
		f := math.Round((obs.TempC*9/5+32)*10) / 10
		obs.TempF = &f
	}

	return obs, nil
}
