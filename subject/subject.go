// Package subject holds the static catalog of tutoring subjects. Each profile
// carries the system prompt that conditions the model and the formatting mode
// its replies are rendered with. The catalog is built once at startup and is
// read-only afterwards, so it is safe for concurrent use.
package subject

import (
	"fmt"
	"strings"
)

// DefaultPrompt is used when a request names no subject or an unknown one.
const DefaultPrompt = "You are a helpful tutor."

// FormatMode selects how replies for a subject are rendered.
type FormatMode string

const (
	// FormatPlain returns the model text untouched; the client formats it.
	FormatPlain FormatMode = "plain"
	// FormatBasic renders bold text, lists and paragraphs server-side.
	FormatBasic FormatMode = "basic"
	// FormatRich renders the full markup set server-side.
	FormatRich FormatMode = "rich"
)

// Valid reports whether m is a known mode.
func (m FormatMode) Valid() bool {
	switch m {
	case FormatPlain, FormatBasic, FormatRich:
		return true
	}
	return false
}

// Formatted reports whether replies are converted to markup on the server.
func (m FormatMode) Formatted() bool {
	return m == FormatBasic || m == FormatRich
}

// Profile describes one subject.
type Profile struct {
	Key         string     `json:"key"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Icon        string     `json:"icon,omitempty"`
	Prompt      string     `json:"-"`
	Format      FormatMode `json:"format"`
}

// Greeting is the opening message a client sends once the subject is picked.
func (p Profile) Greeting() string {
	if p.Name == "" {
		return "I need help with my studies"
	}
	return "I need help with " + p.Name
}

func (p Profile) validate() error {
	if strings.TrimSpace(p.Key) == "" {
		return fmt.Errorf("subject key is empty")
	}
	if strings.TrimSpace(p.Prompt) == "" {
		return fmt.Errorf("subject %q: empty prompt", p.Key)
	}
	if !p.Format.Valid() {
		return fmt.Errorf("subject %q: invalid format mode %q", p.Key, p.Format)
	}
	return nil
}

// Catalog maps subject keys to profiles.
type Catalog struct {
	profiles map[string]Profile
	order    []string
	fallback Profile
}

// NewCatalog builds a catalog from profiles. Keys must be unique. The order
// of profiles is kept for listing.
func NewCatalog(profiles ...Profile) (*Catalog, error) {
	c := &Catalog{
		profiles: make(map[string]Profile, len(profiles)),
		fallback: Profile{Prompt: DefaultPrompt, Format: FormatPlain},
	}
	for _, p := range profiles {
		if p.Format == "" {
			p.Format = FormatPlain
		}
		if err := p.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.profiles[p.Key]; dup {
			return nil, fmt.Errorf("duplicate subject %q", p.Key)
		}
		c.profiles[p.Key] = p
		c.order = append(c.order, p.Key)
	}
	return c, nil
}

// Merge returns a new catalog where overrides replace profiles with the same
// key and new keys are appended. Empty override fields keep the existing value.
func (c *Catalog) Merge(overrides ...Profile) (*Catalog, error) {
	merged := make([]Profile, 0, len(c.order)+len(overrides))
	for _, key := range c.order {
		merged = append(merged, c.profiles[key])
	}

	for _, o := range overrides {
		idx := -1
		for i := range merged {
			if merged[i].Key == o.Key {
				idx = i
				break
			}
		}
		if idx < 0 {
			merged = append(merged, o)
			continue
		}
		base := merged[idx]
		if o.Name != "" {
			base.Name = o.Name
		}
		if o.Description != "" {
			base.Description = o.Description
		}
		if o.Icon != "" {
			base.Icon = o.Icon
		}
		if o.Prompt != "" {
			base.Prompt = o.Prompt
		}
		if o.Format != "" {
			base.Format = o.Format
		}
		merged[idx] = base
	}

	return NewCatalog(merged...)
}

// Lookup returns the profile for key.
func (c *Catalog) Lookup(key string) (Profile, bool) {
	p, ok := c.profiles[key]
	return p, ok
}

// Resolve returns the profile for key, or the generic tutor profile when
// the key is empty or unknown.
func (c *Catalog) Resolve(key string) Profile {
	if p, ok := c.profiles[key]; ok {
		return p
	}
	return c.fallback
}

// ResolvePrompt returns the system prompt for key.
func (c *Catalog) ResolvePrompt(key string) string {
	return c.Resolve(key).Prompt
}

// Profiles lists profiles in catalog order.
func (c *Catalog) Profiles() []Profile {
	out := make([]Profile, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, c.profiles[key])
	}
	return out
}

// Len returns the number of subjects.
func (c *Catalog) Len() int {
	return len(c.order)
}
