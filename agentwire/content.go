package agentwire

import (
	"encoding/json"
	"strings"
)

// FragmentType identifies the kind of content fragment.
type FragmentType string

const (
	FragmentTypeText       FragmentType = "text"
	FragmentTypeToolUse    FragmentType = "tool_use"
	FragmentTypeToolResult FragmentType = "tool_result"
	FragmentTypeImage      FragmentType = "image"
)

// Fragment is the interface for message content fragments.
type Fragment interface {
	FragmentType() FragmentType
}

// TextFragment is a plain text fragment.
type TextFragment struct {
	Type FragmentType `json:"type"`
	Text string       `json:"text"`
}

// FragmentType returns the fragment type.
func (f TextFragment) FragmentType() FragmentType { return FragmentTypeText }

// ToolUseFragment is a tool invocation request.
type ToolUseFragment struct {
	Type  FragmentType           `json:"type"`
	ID    string                 `json:"id"`
	Name  string                 `json:"name"`
	Input map[string]interface{} `json:"input,omitempty"`
}

// FragmentType returns the fragment type.
func (f ToolUseFragment) FragmentType() FragmentType { return FragmentTypeToolUse }

// ToolResultFragment is the outcome of a tool invocation.
type ToolResultFragment struct {
	Type      FragmentType    `json:"type"`
	ToolUseID string          `json:"tool_use_id"`
	Content   FlexibleContent `json:"content"`
	IsError   *bool           `json:"is_error,omitempty"`
}

// FragmentType returns the fragment type.
func (f ToolResultFragment) FragmentType() FragmentType { return FragmentTypeToolResult }

// ImageSource holds base64 image data.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// ImageFragment is an inline image.
type ImageFragment struct {
	Type   FragmentType `json:"type"`
	Source ImageSource  `json:"source"`
}

// FragmentType returns the fragment type.
func (f ImageFragment) FragmentType() FragmentType { return FragmentTypeImage }

// UnmarshalFragment parses a single content fragment.
// Unknown fragment types return (nil, nil) so callers skip them.
func UnmarshalFragment(data json.RawMessage) (Fragment, error) {
	var base struct {
		Type FragmentType `json:"type"`
	}
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, err
	}

	switch base.Type {
	case FragmentTypeText:
		var f TextFragment
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
		return f, nil
	case FragmentTypeToolUse:
		var f ToolUseFragment
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
		return f, nil
	case FragmentTypeToolResult:
		var f ToolResultFragment
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
		return f, nil
	case FragmentTypeImage:
		var f ImageFragment
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, nil
	}
}

// Fragments is an ordered list of content fragments.
type Fragments []Fragment

// UnmarshalJSON implements json.Unmarshaler, skipping unknown fragment types.
func (fs *Fragments) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}

	out := make(Fragments, 0, len(raws))
	for _, raw := range raws {
		f, err := UnmarshalFragment(raw)
		if err != nil {
			return err
		}
		if f != nil {
			out = append(out, f)
		}
	}
	*fs = out
	return nil
}

// FlexibleContent can be either a string or an array of content fragments.
type FlexibleContent struct {
	raw json.RawMessage
}

// UnmarshalJSON implements json.Unmarshaler.
func (fc *FlexibleContent) UnmarshalJSON(data []byte) error {
	fc.raw = data
	return nil
}

// MarshalJSON implements json.Marshaler.
func (fc FlexibleContent) MarshalJSON() ([]byte, error) {
	if fc.raw == nil {
		return []byte("null"), nil
	}
	return fc.raw, nil
}

// IsString returns true if the content is a string.
func (fc FlexibleContent) IsString() bool {
	if len(fc.raw) == 0 {
		return false
	}
	return fc.raw[0] == '"'
}

// AsString returns the content as a string (if it is one).
func (fc FlexibleContent) AsString() (string, bool) {
	if !fc.IsString() {
		return "", false
	}
	var s string
	if err := json.Unmarshal(fc.raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// AsFragments returns the content as fragments (if it is an array).
func (fc FlexibleContent) AsFragments() (Fragments, bool) {
	if fc.IsString() || len(fc.raw) == 0 {
		return nil, false
	}
	var fs Fragments
	if err := json.Unmarshal(fc.raw, &fs); err != nil {
		return nil, false
	}
	return fs, true
}

// FlattenText reduces the content to display text: a string content is
// returned as-is, fragment arrays join the text fragments with newlines,
// and anything else falls back to the raw JSON.
func (fc FlexibleContent) FlattenText() string {
	if s, ok := fc.AsString(); ok {
		return s
	}
	if fs, ok := fc.AsFragments(); ok {
		var texts []string
		for _, f := range fs {
			if t, ok := f.(TextFragment); ok {
				texts = append(texts, t.Text)
			}
		}
		if len(texts) > 0 {
			return strings.Join(texts, "\n")
		}
	}
	return string(fc.raw)
}
