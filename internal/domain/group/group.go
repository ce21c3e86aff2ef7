package group

import (
	"fmt"
	"math"

	"github.com/kailas-cloud/meilifed/internal/domain"
)

// DefaultWeight applies to group members declared without a weight.
const DefaultWeight = 1.0

// Entry is one raw member declaration, as read from configuration.
type Entry struct {
	Index  string   `yaml:"index" toml:"index" json:"index"`
	Weight *float64 `yaml:"weight,omitempty" toml:"weight,omitempty" json:"weight,omitempty"`
}

// Member is a weighted index inside a group.
type Member struct {
	Index  string
	Weight float64
}

// Config is a named virtual index: an ordered set of weighted member indexes.
type Config struct {
	name    string
	members []Member
	byIndex map[string]int
}

// New builds a group from raw entries. Missing weights default to 1.0;
// a repeated index keeps its first position and takes the last declared weight.
func New(name string, entries []Entry) (Config, error) {
	if name == "" {
		return Config{}, fmt.Errorf("group name is required: %w", domain.ErrInvalidGroup)
	}

	cfg := Config{name: name, byIndex: make(map[string]int, len(entries))}
	for _, e := range entries {
		if e.Index == "" {
			return Config{}, fmt.Errorf("group %q: member index is required: %w", name, domain.ErrInvalidGroup)
		}
		weight := DefaultWeight
		if e.Weight != nil {
			weight = *e.Weight
		}
		if !(weight > 0) || math.IsInf(weight, 0) {
			return Config{}, fmt.Errorf(
				"group %q: weight for %q must be positive and finite, got %g: %w",
				name, e.Index, weight, domain.ErrInvalidGroup,
			)
		}

		if pos, ok := cfg.byIndex[e.Index]; ok {
			cfg.members[pos].Weight = weight
			continue
		}
		cfg.byIndex[e.Index] = len(cfg.members)
		cfg.members = append(cfg.members, Member{Index: e.Index, Weight: weight})
	}
	return cfg, nil
}

// Name returns the group name.
func (c Config) Name() string { return c.name }

// Members returns the members in declaration order.
func (c Config) Members() []Member {
	out := make([]Member, len(c.members))
	copy(out, c.members)
	return out
}

// Member returns the member entry for an index id.
func (c Config) Member(index string) (Member, bool) {
	pos, ok := c.byIndex[index]
	if !ok {
		return Member{}, false
	}
	return c.members[pos], true
}

// Indexes returns the member index ids in declaration order.
func (c Config) Indexes() []string {
	out := make([]string, len(c.members))
	for i, m := range c.members {
		out[i] = m.Index
	}
	return out
}

// Weight is a helper for building entries with an explicit weight.
func Weight(w float64) *float64 { return &w }
