package validity

import (
	"encoding/json"
	"fmt"
)

type wireToken struct {
	Kind     string      `json:"kind"`
	Millis   int64       `json:"ms,omitempty"`
	Children []wireToken `json:"children,omitempty"`
}

// Marshal encodes a concrete token as JSON.
func Marshal(t Token) ([]byte, error) {
	w, err := toWire(t)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// Unmarshal decodes a token produced by Marshal.
func Unmarshal(data []byte) (Token, error) {
	var w wireToken
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("validity: decode: %w", err)
	}
	return fromWire(w)
}

func toWire(t Token) (wireToken, error) {
	switch v := t.(type) {
	case nil:
		return wireToken{Kind: KindNever.String()}, nil
	case never:
		return wireToken{Kind: KindNever.String()}, nil
	case always:
		return wireToken{Kind: KindAlways.String()}, nil
	case TimeStampToken:
		return wireToken{Kind: KindTimeStamp.String(), Millis: v.ms}, nil
	case CompositeToken:
		w := wireToken{Kind: KindComposite.String(), Children: make([]wireToken, 0, len(v.children))}
		for _, child := range v.children {
			cw, err := toWire(child)
			if err != nil {
				return wireToken{}, err
			}
			w.Children = append(w.Children, cw)
		}
		return w, nil
	case *Deferred:
		return wireToken{}, ErrNotPersistable
	default:
		return wireToken{}, fmt.Errorf("%w: %T", ErrUnknownKind, t)
	}
}

func fromWire(w wireToken) (Token, error) {
	switch w.Kind {
	case "never":
		return Never(), nil
	case "always":
		return Always(), nil
	case "timestamp":
		return TimeStamp(w.Millis), nil
	case "composite":
		children := make([]Token, 0, len(w.Children))
		for _, cw := range w.Children {
			child, err := fromWire(cw)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		return CompositeToken{children: children}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, w.Kind)
	}
}
