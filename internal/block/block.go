// Package block defines the typed content blocks a page is composed of
// and the pure operations that edit an ordered collection of them.
package block

// Type identifies the kind of a block. It never changes after creation.
type Type string

const (
	TypeHero     Type = "hero"
	TypeFeatures Type = "features"
	TypePricing  Type = "pricing"
	TypeFAQ      Type = "faq"
	TypeFooter   Type = "footer"
)

// Types lists every known block type in palette order.
var Types = []Type{TypeHero, TypeFeatures, TypePricing, TypeFAQ, TypeFooter}

// Known reports whether t is one of the built-in block types.
func (t Type) Known() bool {
	for _, k := range Types {
		if k == t {
			return true
		}
	}
	return false
}

// Title returns the human readable name shown in the palette and in
// reorder announcements.
func (t Type) Title() string {
	switch t {
	case TypeHero:
		return "Hero"
	case TypeFeatures:
		return "Features"
	case TypePricing:
		return "Pricing"
	case TypeFAQ:
		return "FAQ"
	case TypeFooter:
		return "Footer"
	}
	return string(t)
}

// Block is one unit of page content.
type Block struct {
	ID   string
	Type Type
	Data Payload
}

// Payload is the type-specific content of a block. Implementations are
// value types; Set never modifies the receiver.
type Payload interface {
	// Kind reports the block type this payload belongs to.
	Kind() Type
	// Set returns a copy with field replaced by value. ok is false when the
	// field is unknown or the value has the wrong shape.
	Set(field string, value any) (p Payload, ok bool)
}

// Hero is the page banner.
type Hero struct {
	Headline string `json:"headline"`
	Sub      string `json:"sub"`
	CTA      string `json:"cta"`
}

// Features is a grid of short feature blurbs.
type Features struct {
	Items []string `json:"items"`
}

// Pricing is a single plan card.
type Pricing struct {
	Title   string   `json:"title"`
	Price   string   `json:"price"`
	Bullets []string `json:"bullets"`
}

// QA is one question and answer pair.
type QA struct {
	Q string `json:"q"`
	A string `json:"a"`
}

// FAQ is a list of collapsible questions.
type FAQ struct {
	Items []QA `json:"items"`
}

// Footer is the closing line of the page.
type Footer struct {
	Text string `json:"text"`
}

// Unknown holds the raw payload of a block whose type is not recognized.
// It renders as nothing and cannot be edited.
type Unknown struct {
	Type Type
	Raw  []byte
}

func (Hero) Kind() Type     { return TypeHero }
func (Features) Kind() Type { return TypeFeatures }
func (Pricing) Kind() Type  { return TypePricing }
func (FAQ) Kind() Type      { return TypeFAQ }
func (Footer) Kind() Type   { return TypeFooter }
func (u Unknown) Kind() Type {
	return u.Type
}

func (h Hero) Set(field string, value any) (Payload, bool) {
	s, ok := value.(string)
	if !ok {
		return h, false
	}
	switch field {
	case "headline":
		h.Headline = s
	case "sub":
		h.Sub = s
	case "cta":
		h.CTA = s
	default:
		return h, false
	}
	return h, true
}

func (f Features) Set(field string, value any) (Payload, bool) {
	if field != "items" {
		return f, false
	}
	items, ok := toStrings(value)
	if !ok {
		return f, false
	}
	f.Items = items
	return f, true
}

func (p Pricing) Set(field string, value any) (Payload, bool) {
	switch field {
	case "title", "price":
		s, ok := value.(string)
		if !ok {
			return p, false
		}
		if field == "title" {
			p.Title = s
		} else {
			p.Price = s
		}
	case "bullets":
		bullets, ok := toStrings(value)
		if !ok {
			return p, false
		}
		p.Bullets = bullets
	default:
		return p, false
	}
	return p, true
}

func (f FAQ) Set(field string, value any) (Payload, bool) {
	if field != "items" {
		return f, false
	}
	items, ok := toQAs(value)
	if !ok {
		return f, false
	}
	f.Items = items
	return f, true
}

func (f Footer) Set(field string, value any) (Payload, bool) {
	s, ok := value.(string)
	if !ok || field != "text" {
		return f, false
	}
	f.Text = s
	return f, true
}

func (u Unknown) Set(string, any) (Payload, bool) {
	return u, false
}

// toStrings accepts the list shapes a decoded JSON request can produce and
// always returns a fresh slice.
func toStrings(value any) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		return append([]string{}, v...), true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func toQAs(value any) ([]QA, bool) {
	switch v := value.(type) {
	case []QA:
		return append([]QA{}, v...), true
	case []map[string]any:
		out := make([]QA, 0, len(v))
		for _, m := range v {
			qa, ok := qaFromMap(m)
			if !ok {
				return nil, false
			}
			out = append(out, qa)
		}
		return out, true
	case []any:
		out := make([]QA, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, false
			}
			qa, ok := qaFromMap(m)
			if !ok {
				return nil, false
			}
			out = append(out, qa)
		}
		return out, true
	}
	return nil, false
}

func qaFromMap(m map[string]any) (QA, bool) {
	var qa QA
	for k, raw := range m {
		s, ok := raw.(string)
		if !ok {
			return QA{}, false
		}
		switch k {
		case "q":
			qa.Q = s
		case "a":
			qa.A = s
		}
	}
	return qa, true
}
