package bus

import (
	"strings"
	"time"
)

// Kind is the coarse shape of an inbound message.
type Kind string

const (
	KindUnknown Kind = "unknown"
	KindCommand Kind = "command"
	KindText    Kind = "text"
	KindMedia   Kind = "media"
)

// MediaType names one of the supported attachment types.
type MediaType string

const (
	MediaPhoto    MediaType = "photo"
	MediaDocument MediaType = "document"
	MediaVoice    MediaType = "voice"
	MediaVideo    MediaType = "video"
	MediaAudio    MediaType = "audio"
	MediaSticker  MediaType = "sticker"
)

// Media describes the attachment of a media message. Only the fields the
// platform reported are set.
type Media struct {
	Type      MediaType     `json:"type"`
	Count     int           `json:"count,omitempty"`
	Size      int64         `json:"size,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	FileName  string        `json:"file_name,omitempty"`
	MimeType  string        `json:"mime_type,omitempty"`
	Title     string        `json:"title,omitempty"`
	Performer string        `json:"performer,omitempty"`
	Emoji     string        `json:"emoji,omitempty"`
	SetName   string        `json:"set_name,omitempty"`
}

// Sender identifies who wrote a message. All fields are optional.
type Sender struct {
	ID        string `json:"id,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// InboundMessage is a read-only view of one received message.
type InboundMessage struct {
	Channel    string            `json:"channel"`
	ChatID     string            `json:"chat_id"`
	ChatType   string            `json:"chat_type,omitempty"`
	ChatTitle  string            `json:"chat_title,omitempty"`
	Sender     Sender            `json:"sender"`
	Text       string            `json:"text,omitempty"`
	Media      *Media            `json:"media,omitempty"`
	ReceivedAt time.Time         `json:"received_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Kind derives the message kind from its text and media payload.
func (m InboundMessage) Kind() Kind {
	text := strings.TrimSpace(m.Text)
	switch {
	case strings.HasPrefix(text, "/") && len(text) > 1:
		return KindCommand
	case text != "":
		return KindText
	case m.Media != nil && m.Media.Type != "":
		return KindMedia
	default:
		return KindUnknown
	}
}

// OutboundMessage is one reply addressed to a chat on a channel.
type OutboundMessage struct {
	Channel string `json:"channel"`
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
	// HTML marks Content as using the bold/code markup subset.
	HTML bool `json:"html,omitempty"`
}

// Reply builds an HTML outbound message addressed to the chat m came from.
func (m InboundMessage) Reply(content string) OutboundMessage {
	return OutboundMessage{Channel: m.Channel, ChatID: m.ChatID, Content: content, HTML: true}
}
