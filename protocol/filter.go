package protocol

import (
	"encoding/json"
	"strings"
)

// Filter is the query descriptor used both for relay subscriptions and for
// local cache queries. It is a pure value type.
type Filter struct {
	IDs     []string
	Authors []string
	Kinds   []int
	Since   *Timestamp
	Until   *Timestamp
	Limit   int
	// Tags maps a single-letter tag name (without the '#') to accepted values.
	Tags map[string][]string
}

type Filters []Filter

// Matches reports whether the event satisfies every constraint in the filter.
// Ids and authors match by prefix, as relays do.
func (f Filter) Matches(e *Event) bool {
	if e == nil {
		return false
	}
	if len(f.IDs) > 0 && !prefixMatch(f.IDs, e.ID) {
		return false
	}
	if len(f.Authors) > 0 && !prefixMatch(f.Authors, e.PubKey) {
		return false
	}
	if len(f.Kinds) > 0 && !containsInt(f.Kinds, e.Kind) {
		return false
	}
	if f.Since != nil && e.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && e.CreatedAt > *f.Until {
		return false
	}
	for key, wanted := range f.Tags {
		if !tagMatch(e.Tags, key, wanted) {
			return false
		}
	}
	return true
}

// Match reports whether any filter in the set matches the event.
func (fs Filters) Match(e *Event) bool {
	for _, f := range fs {
		if f.Matches(e) {
			return true
		}
	}
	return false
}

func prefixMatch(prefixes []string, value string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(value, p) {
			return true
		}
	}
	return false
}

func containsInt(haystack []int, needle int) bool {
	for _, k := range haystack {
		if k == needle {
			return true
		}
	}
	return false
}

func tagMatch(tags Tags, key string, wanted []string) bool {
	for _, tag := range tags.All(key) {
		for _, w := range wanted {
			if tag.Value() == w {
				return true
			}
		}
	}
	return false
}

// MarshalJSON renders the filter in the wire shape relays expect, with tag
// constraints under "#<name>" keys and empty fields omitted.
func (f Filter) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{})
	if len(f.IDs) > 0 {
		m["ids"] = f.IDs
	}
	if len(f.Authors) > 0 {
		m["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		m["kinds"] = f.Kinds
	}
	if f.Since != nil {
		m["since"] = *f.Since
	}
	if f.Until != nil {
		m["until"] = *f.Until
	}
	if f.Limit > 0 {
		m["limit"] = f.Limit
	}
	for key, values := range f.Tags {
		m["#"+key] = values
	}
	return json.Marshal(m)
}

// UnmarshalJSON accepts the same wire shape MarshalJSON produces.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var raw struct {
		IDs     []string   `json:"ids"`
		Authors []string   `json:"authors"`
		Kinds   []int      `json:"kinds"`
		Since   *Timestamp `json:"since"`
		Until   *Timestamp `json:"until"`
		Limit   int        `json:"limit"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return err
	}
	*f = Filter{
		IDs:     raw.IDs,
		Authors: raw.Authors,
		Kinds:   raw.Kinds,
		Since:   raw.Since,
		Until:   raw.Until,
		Limit:   raw.Limit,
	}
	for key, value := range tagged {
		if !strings.HasPrefix(key, "#") || len(key) < 2 {
			continue
		}
		var values []string
		if err := json.Unmarshal(value, &values); err != nil {
			return err
		}
		if f.Tags == nil {
			f.Tags = make(map[string][]string)
		}
		f.Tags[key[1:]] = values
	}
	return nil
}
