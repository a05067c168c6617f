package block

import (
	"encoding/json"
	"fmt"
)

type wireBlock struct {
	ID   string          `json:"id"`
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalJSON writes {"id","type","data"}.
func (b Block) MarshalJSON() ([]byte, error) {
	var data json.RawMessage
	switch p := b.Data.(type) {
	case nil:
		data = json.RawMessage("{}")
	case Unknown:
		data = json.RawMessage(p.Raw)
		if len(data) == 0 {
			data = json.RawMessage("{}")
		}
	default:
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("block %s: %w", b.ID, err)
		}
		data = raw
	}
	return json.Marshal(wireBlock{ID: b.ID, Type: b.Type, Data: data})
}

// UnmarshalJSON decodes the payload according to the block type. Types it
// does not recognize are kept as Unknown so they survive a round trip.
func (b *Block) UnmarshalJSON(raw []byte) error {
	var w wireBlock
	if err := json.Unmarshal(raw, &w); err != nil {
		return err
	}
	data, err := decodePayload(w.Type, w.Data)
	if err != nil {
		return fmt.Errorf("block %s: %w", w.ID, err)
	}
	*b = Block{ID: w.ID, Type: w.Type, Data: data}
	return nil
}

func decodePayload(t Type, raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}
	switch t {
	case TypeHero:
		var p Hero
		err := json.Unmarshal(raw, &p)
		return p, err
	case TypeFeatures:
		var p Features
		err := json.Unmarshal(raw, &p)
		return p, err
	case TypePricing:
		var p Pricing
		err := json.Unmarshal(raw, &p)
		return p, err
	case TypeFAQ:
		var p FAQ
		err := json.Unmarshal(raw, &p)
		return p, err
	case TypeFooter:
		var p Footer
		err := json.Unmarshal(raw, &p)
		return p, err
	}
	return Unknown{Type: t, Raw: append([]byte(nil), raw...)}, nil
}
