package domain

import (
	"strings"
	"unicode/utf8"
)

// Entity tags recognized as rich content: audio, button, attachment,
// hashtag, image, link, mention, quote, video.
var RichEntityTags = []string{"AU", "BN", "EX", "HT", "IM", "LN", "MN", "QQ", "VD"}

// Entity is a formatting or attachment annotation on message content.
type Entity struct {
	Tag  string         `json:"tp,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

// Content is a message payload: plain text plus optional entities.
type Content struct {
	Text string   `json:"txt,omitempty"`
	Ent  []Entity `json:"ent,omitempty"`
}

func NewTextContent(text string) Content {
	return Content{Text: text}
}

func (c Content) IsZero() bool {
	return c.Text == "" && len(c.Ent) == 0
}

// HasEntity reports whether any entity carries one of the given tags.
func (c Content) HasEntity(tags ...string) bool {
	for _, ent := range c.Ent {
		for _, tag := range tags {
			if ent.Tag == tag {
				return true
			}
		}
	}

	return false
}

// References returns entities that point at out-of-band data, i.e.
// attachments that need (or needed) an upload.
func (c Content) References() []Entity {
	var refs []Entity
	for _, ent := range c.Ent {
		if ent.Data == nil {
			continue
		}
		if _, ok := ent.Data["ref"]; ok {
			refs = append(refs, ent)
			continue
		}
		if _, ok := ent.Data["val"]; ok {
			refs = append(refs, ent)
		}
	}

	return refs
}

// Preview returns a single-line excerpt of at most maxRunes runes.
func (c Content) Preview(maxRunes int) string {
	text := strings.Join(strings.Fields(c.Text), " ")
	if utf8.RuneCountInString(text) <= maxRunes {
		return text
	}

	runes := []rune(text)

	return string(runes[:maxRunes])
}
