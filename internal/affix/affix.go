// Package affix maps logical index ids to remote index uids and back.
//
// Remove is a left inverse of Add only for ids that do not themselves start with
// the prefix or end with the suffix; such ids are ambiguous once decorated.
package affix

import "strings"

// Codec applies a configured prefix and suffix to index ids.
type Codec struct {
	prefix string
	suffix string
}

// New creates a codec. Both affixes may be empty.
func New(prefix, suffix string) Codec {
	return Codec{prefix: prefix, suffix: suffix}
}

// Add decorates a logical id for the remote engine.
func (c Codec) Add(id string) string {
	return c.prefix + id + c.suffix
}

// Remove strips the prefix and suffix when present.
func (c Codec) Remove(uid string) string {
	if c.prefix != "" {
		uid = strings.TrimPrefix(uid, c.prefix)
	}
	if c.suffix != "" {
		uid = strings.TrimSuffix(uid, c.suffix)
	}
	return uid
}

// Prefix returns the configured prefix.
func (c Codec) Prefix() string { return c.prefix }

// Suffix returns the configured suffix.
func (c Codec) Suffix() string { return c.suffix }

// IsZero reports whether no affixes are configured.
func (c Codec) IsZero() bool { return c.prefix == "" && c.suffix == "" }
