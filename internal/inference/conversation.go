package inference

import (
	"strings"

	"github.com/ent0n29/mockinterview/internal/audio"
)

type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Segment is one piece of turn content: either text or a decoded audio sample.
type Segment struct {
	Text  string
	Audio *audio.Sample
}

func (s Segment) IsAudio() bool { return s.Audio != nil }

func TextSegment(text string) Segment { return Segment{Text: text} }

func AudioSegment(sample *audio.Sample) Segment { return Segment{Audio: sample} }

// Turn is one message in a conversation.
type Turn struct {
	Role     Role
	Segments []Segment
}

func TextTurn(role Role, text string) Turn {
	return Turn{Role: role, Segments: []Segment{TextSegment(text)}}
}

// Text joins the turn's text segments, skipping audio.
func (t Turn) Text() string {
	parts := make([]string, 0, len(t.Segments))
	for _, seg := range t.Segments {
		if !seg.IsAudio() {
			parts = append(parts, seg.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Conversation is the ordered turn sequence submitted for one generation.
type Conversation struct {
	Turns []Turn
}

// AudioCount reports how many audio segments the conversation carries.
func (c Conversation) AudioCount() int {
	n := 0
	for _, t := range c.Turns {
		for _, seg := range t.Segments {
			if seg.IsAudio() {
				n++
			}
		}
	}
	return n
}

// SystemText joins every system turn's text.
func (c Conversation) SystemText() string {
	var parts []string
	for _, t := range c.Turns {
		if t.Role == RoleSystem {
			parts = append(parts, t.Text())
		}
	}
	return strings.Join(parts, "\n")
}
