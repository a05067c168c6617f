// Package section models the fixed set of named page sections a template
// exposes and the per-template state that orders and toggles them.
package section

import "slices"

// Key names a section. Only the values in Keys are valid.
type Key string

const (
	Hero     Key = "hero"
	Features Key = "features"
	Gallery  Key = "gallery"
	Pricing  Key = "pricing"
	FAQ      Key = "faq"
	CTA      Key = "cta"
)

// Keys is the closed key set in canonical order.
var Keys = []Key{Hero, Features, Gallery, Pricing, FAQ, CTA}

// Valid reports whether k belongs to the closed key set.
func (k Key) Valid() bool {
	return slices.Contains(Keys, k)
}

// Label returns the default display label for k.
func (k Key) Label() string {
	switch k {
	case Hero:
		return "Hero"
	case Features:
		return "Features"
	case Gallery:
		return "Gallery"
	case Pricing:
		return "Pricing"
	case FAQ:
		return "FAQ"
	case CTA:
		return "Call to Action"
	}
	return string(k)
}

// TemplateSection is a section a template offers.
type TemplateSection struct {
	ID               Key    `json:"id" yaml:"id"`
	Label            string `json:"label" yaml:"label"`
	EnabledByDefault bool   `json:"enabledByDefault" yaml:"enabled_by_default"`
}

// State is the stored arrangement of one template's sections.
type State struct {
	TemplateKey string       `json:"template"`
	Order       []Key        `json:"order"`
	Enabled     map[Key]bool `json:"enabled"`
	UpdatedAt   int64        `json:"updatedAt"`
}

// Schema is the canonical section list of one template.
type Schema struct {
	TemplateKey string
	Sections    []TemplateSection
}

// AllSections returns every key enabled, used for templates the registry
// does not know.
func AllSections() []TemplateSection {
	out := make([]TemplateSection, len(Keys))
	for i, k := range Keys {
		out[i] = TemplateSection{ID: k, Label: k.Label(), EnabledByDefault: true}
	}
	return out
}

// Canonical returns the section keys in canonical order.
func (s Schema) Canonical() []Key {
	keys := make([]Key, len(s.Sections))
	for i, sec := range s.Sections {
		keys[i] = sec.ID
	}
	return keys
}

// Label returns the display label of k within this template.
func (s Schema) Label(k Key) string {
	for _, sec := range s.Sections {
		if sec.ID == k && sec.Label != "" {
			return sec.Label
		}
	}
	return k.Label()
}

// Defaults returns the canonical state: canonical order with every section
// at its default visibility. UpdatedAt is zero.
func (s Schema) Defaults() State {
	enabled := make(map[Key]bool, len(s.Sections))
	for _, sec := range s.Sections {
		enabled[sec.ID] = sec.EnabledByDefault
	}
	return State{
		TemplateKey: s.TemplateKey,
		Order:       s.Canonical(),
		Enabled:     enabled,
	}
}

// Sanitize coerces st into a valid state for this schema. Unknown and
// repeated keys are dropped from the order, missing keys are appended in
// canonical order, and visibility falls back to the default for keys the
// state does not mention. Sanitize is idempotent.
func (s Schema) Sanitize(st State) State {
	canonical := s.Canonical()
	inSchema := make(map[Key]bool, len(canonical))
	for _, k := range canonical {
		inSchema[k] = true
	}

	order := make([]Key, 0, len(canonical))
	seen := make(map[Key]bool, len(canonical))
	for _, k := range st.Order {
		if inSchema[k] && !seen[k] {
			seen[k] = true
			order = append(order, k)
		}
	}
	for _, k := range canonical {
		if !seen[k] {
			order = append(order, k)
		}
	}

	enabled := make(map[Key]bool, len(canonical))
	for _, sec := range s.Sections {
		if v, ok := st.Enabled[sec.ID]; ok {
			enabled[sec.ID] = v
		} else {
			enabled[sec.ID] = sec.EnabledByDefault
		}
	}

	return State{
		TemplateKey: s.TemplateKey,
		Order:       order,
		Enabled:     enabled,
		UpdatedAt:   st.UpdatedAt,
	}
}

// Toggle flips the visibility of k. Keys outside the schema are ignored.
func (st State) Toggle(k Key) State {
	return st.SetEnabled(k, !st.Enabled[k])
}

// SetEnabled sets the visibility of k. Keys the state does not track are
// ignored.
func (st State) SetEnabled(k Key, on bool) State {
	out := st.Clone()
	if _, ok := out.Enabled[k]; !ok {
		return out
	}
	out.Enabled[k] = on
	return out
}

// WithOrder returns a copy using order.
func (st State) WithOrder(order []Key) State {
	out := st.Clone()
	out.Order = slices.Clone(order)
	return out
}

// Visible returns the enabled keys in order.
func (st State) Visible() []Key {
	var out []Key
	for _, k := range st.Order {
		if st.Enabled[k] {
			out = append(out, k)
		}
	}
	return out
}

// Clone returns a deep copy.
func (st State) Clone() State {
	out := st
	out.Order = slices.Clone(st.Order)
	out.Enabled = make(map[Key]bool, len(st.Enabled))
	for k, v := range st.Enabled {
		out.Enabled[k] = v
	}
	return out
}
