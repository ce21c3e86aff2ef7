package settings

import "github.com/kailas-cloud/meilifed/internal/domain"

// Settings is the remote index settings object (displayedAttributes, filterableAttributes, ...).
// Keys follow the remote engine's camelCase naming.
type Settings map[string]any

// With returns a new Settings with overrides layered on top; overrides win on collisions.
func (s Settings) With(overrides ...Settings) Settings {
	layers := make([]map[string]any, 0, len(overrides)+1)
	layers = append(layers, s)
	for _, o := range overrides {
		layers = append(layers, o)
	}
	return domain.MergeLayers(layers...)
}
