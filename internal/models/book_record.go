package models

import (
	"bytes"
	"encoding/json"
)

// BookRecord is a single search result document. Author and Title are lifted
// out for sinks that index them; Raw keeps the document exactly as received.
type BookRecord struct {
	Author string          `json:"-"`
	Title  string          `json:"-"`
	Raw    json.RawMessage `json:"-"`
}

// UnmarshalJSON keeps the raw document and extracts author and title. Open
// Library documents carry author_name as a list; the first entry is used.
func (b *BookRecord) UnmarshalJSON(data []byte) error {
	var fields struct {
		Author     any      `json:"author"`
		AuthorName []string `json:"author_name"`
		Title      any      `json:"title"`
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	b.Author = textValue(fields.Author)
	if b.Author == "" && len(fields.AuthorName) > 0 {
		b.Author = fields.AuthorName[0]
	}
	b.Title = textValue(fields.Title)
	b.Raw = append(json.RawMessage(nil), bytes.TrimSpace(data)...)
	return nil
}

// MarshalJSON writes the raw document back unchanged.
func (b BookRecord) MarshalJSON() ([]byte, error) {
	if len(b.Raw) > 0 {
		return b.Raw, nil
	}
	return json.Marshal(map[string]string{"author": b.Author, "title": b.Title})
}

func textValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return ""
}
