package plugins

import (
	"context"
	"strings"

	"github.com/hupe1980/weathermesh/core"
	"github.com/hupe1980/weathermesh/tool"
)

// Place is a resolved geographic location.
type Place struct {
	Name      string  `json:"name"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Gazetteer resolves free-form place names.
type Gazetteer interface {
	Lookup(ctx context.Context, query string) (Place, bool, error)
}

// StaticGazetteer is an in-memory Gazetteer keyed by lower-cased name or alias.
type StaticGazetteer struct {
	places map[string]Place
}

// NewStaticGazetteer builds a gazetteer from places. Each place is reachable
// by its name and by any alias in aliases[place.Name].
func NewStaticGazetteer(places []Place, aliases map[string][]string) *StaticGazetteer {
	g := &StaticGazetteer{places: make(map[string]Place, len(places))}
	for _, p := range places {
		g.places[normalize(p.Name)] = p
		for _, a := range aliases[p.Name] {
			g.places[normalize(a)] = p
		}
	}
	return g
}

// DefaultGazetteer returns a small built-in gazetteer of major cities.
func DefaultGazetteer() *StaticGazetteer {
	return NewStaticGazetteer([]Place{
		{Name: "Amsterdam", Country: "Netherlands", Latitude: 52.3676, Longitude: 4.9041},
		{Name: "Berlin", Country: "Germany", Latitude: 52.52, Longitude: 13.405},
		{Name: "London", Country: "United Kingdom", Latitude: 51.5072, Longitude: -0.1276},
		{Name: "Madrid", Country: "Spain", Latitude: 40.4168, Longitude: -3.7038},
		{Name: "New York", Country: "United States", Latitude: 40.7128, Longitude: -74.006},
		{Name: "Paris", Country: "France", Latitude: 48.8566, Longitude: 2.3522},
		{Name: "Rome", Country: "Italy", Latitude: 41.9028, Longitude: 12.4964},
		{Name: "Seattle", Country: "United States", Latitude: 47.6062, Longitude: -122.3321},
		{Name: "Sydney", Country: "Australia", Latitude: -33.8688, Longitude: 151.2093},
		{Name: "Tokyo", Country: "Japan", Latitude: 35.6762, Longitude: 139.6503},
	}, map[string][]string{
		"New York": {"NYC", "New York City"},
		"Rome":     {"Roma"},
		"Paris":    {"Paris, France"},
	})
}

// Lookup implements Gazetteer.
func (g *StaticGazetteer) Lookup(_ context.Context, query string) (Place, bool, error) {
	p, ok := g.places[normalize(query)]
	return p, ok, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// LocationPlugin exposes resolve_location and get_user_location.
type LocationPlugin struct {
	gazetteer Gazetteer
	home      string
}

// NewLocationPlugin creates the plugin. home is reported by get_user_location.
func NewLocationPlugin(g Gazetteer, home string) *LocationPlugin {
	if g == nil {
		g = DefaultGazetteer()
	}
	return &LocationPlugin{gazetteer: g, home: home}
}

type resolveLocationArgs struct {
	Query string `json:"query" description:"Free-form place name, e.g. 'Paris' or 'NYC'"`
}

type userLocationArgs struct{}

// Tools returns the plugin's tools.
func (p *LocationPlugin) Tools() []tool.Tool {
	return []tool.Tool{
		tool.NewFunctionToolFromStruct(
			"resolve_location",
			"Resolve a place name to its canonical name, country and coordinates.",
			resolveLocationArgs{},
			p.resolveLocation,
		),
		tool.NewFunctionToolFromStruct(
			"get_user_location",
			"Get the user's home location. Use it when the user does not name a place.",
			userLocationArgs{},
			p.userLocation,
		),
	}
}

func (p *LocationPlugin) resolveLocation(tc *core.ToolContext, args map[string]any) (any, error) {
	query, _ := args["query"].(string)
	place, ok, err := p.gazetteer.Lookup(tc.Context(), query)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, tool.NewToolError("resolve_location", "no place found for "+query, tool.CodeNotFound)
	}
	return place, nil
}

func (p *LocationPlugin) userLocation(tc *core.ToolContext, _ map[string]any) (any, error) {
	if p.home == "" {
		return nil, tool.NewToolError("get_user_location", "home location is not configured", tool.CodeNotFound)
	}
	tc.LogDebug("plugins.location.home", "location", p.home)
	return map[string]any{"location": p.home}, nil
}
