package block

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Direction is the neighbour a block is swapped with by Move.
type Direction int

const (
	Up Direction = iota
	Down
)

// ParseDirection accepts "up" or "down".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "up":
		return Up, nil
	case "down":
		return Down, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// Default returns the payload a new block of type t starts with. The footer
// year is taken from now. ok is false for unknown types.
func Default(t Type, now time.Time) (Payload, bool) {
	switch t {
	case TypeHero:
		return Hero{Headline: "Your Headline", Sub: "A short subtitle", CTA: "Call to Action"}, true
	case TypeFeatures:
		return Features{Items: []string{"Feature one", "Feature two", "Feature three"}}, true
	case TypePricing:
		return Pricing{Title: "Pricing", Price: "RM0.00/mo", Bullets: []string{"Item 1", "Item 2"}}, true
	case TypeFAQ:
		return FAQ{Items: []QA{{Q: "Question?", A: "Answer."}}}, true
	case TypeFooter:
		return Footer{Text: fmt.Sprintf("© %d Your Brand", now.Year())}, true
	}
	return nil, false
}

// Store creates and edits block collections. Every operation returns a new
// slice and leaves its input untouched; a no-op still returns a copy.
type Store struct {
	newID func() string
	now   func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithIDFunc replaces the uuid generator.
func WithIDFunc(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// WithClock replaces time.Now.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) { s.now = fn }
}

// NewStore returns a Store that mints uuid identifiers.
func NewStore(opts ...Option) *Store {
	s := &Store{
		newID: uuid.NewString,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// New builds a block of type t with its default payload.
func (s *Store) New(t Type) (Block, bool) {
	data, ok := Default(t, s.now())
	if !ok {
		return Block{}, false
	}
	return Block{ID: s.newID(), Type: t, Data: data}, true
}

// Add appends a new block of type t. Unknown types leave the collection as is.
func (s *Store) Add(blocks []Block, t Type) []Block {
	out := slices.Clone(blocks)
	b, ok := s.New(t)
	if !ok {
		return out
	}
	return append(out, b)
}

// Starter returns the page a new workspace opens with.
func (s *Store) Starter() []Block {
	var out []Block
	for _, t := range Types {
		out = s.Add(out, t)
	}
	return out
}

// Move swaps the block with its neighbour. Moving past either end or
// moving an absent id is a no-op.
func Move(blocks []Block, id string, dir Direction) []Block {
	out := slices.Clone(blocks)
	i := IndexOf(out, id)
	if i < 0 {
		return out
	}
	j := i - 1
	if dir == Down {
		j = i + 1
	}
	if j < 0 || j >= len(out) {
		return out
	}
	out[i], out[j] = out[j], out[i]
	return out
}

// Remove drops the block with the given id.
func Remove(blocks []Block, id string) []Block {
	out := make([]Block, 0, len(blocks))
	for _, b := range blocks {
		if b.ID != id {
			out = append(out, b)
		}
	}
	return out
}

// UpdateField replaces a single field of a block's payload. Unknown ids,
// unknown fields and values of the wrong shape leave the collection as is.
func UpdateField(blocks []Block, id, field string, value any) []Block {
	out := slices.Clone(blocks)
	i := IndexOf(out, id)
	if i < 0 || out[i].Data == nil {
		return out
	}
	data, ok := out[i].Data.Set(field, value)
	if !ok {
		return out
	}
	out[i].Data = data
	return out
}

// Reorder arranges blocks to follow ids. When ids is not a permutation of
// the collection's identifiers the collection is returned unchanged.
func Reorder(blocks []Block, ids []string) []Block {
	if len(ids) != len(blocks) {
		return slices.Clone(blocks)
	}
	byID := make(map[string]Block, len(blocks))
	for _, b := range blocks {
		byID[b.ID] = b
	}
	out := make([]Block, 0, len(ids))
	for _, id := range ids {
		b, ok := byID[id]
		if !ok {
			return slices.Clone(blocks)
		}
		delete(byID, id)
		out = append(out, b)
	}
	return out
}

// IDs returns the identifiers in collection order.
func IDs(blocks []Block) []string {
	ids := make([]string, len(blocks))
	for i, b := range blocks {
		ids[i] = b.ID
	}
	return ids
}

// IndexOf returns the position of id, or -1.
func IndexOf(blocks []Block, id string) int {
	return slices.IndexFunc(blocks, func(b Block) bool { return b.ID == id })
}

// Find returns the block with the given id.
func Find(blocks []Block, id string) (Block, bool) {
	i := IndexOf(blocks, id)
	if i < 0 {
		return Block{}, false
	}
	return blocks[i], true
}

// Validate repairs a collection read from storage: blocks without an id,
// duplicate ids and unknown types are dropped.
func Validate(blocks []Block) []Block {
	seen := make(map[string]bool, len(blocks))
	out := make([]Block, 0, len(blocks))
	for _, b := range blocks {
		if b.ID == "" || seen[b.ID] || !b.Type.Known() || b.Data == nil || b.Data.Kind() != b.Type {
			continue
		}
		seen[b.ID] = true
		out = append(out, b)
	}
	return out
}
