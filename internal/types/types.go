package types

import (
	"time"
)

// User is the chat identity attached to outgoing messages. Id is either a
// stable account id or a client-generated anonymous id of the form
// anon_<millis>_<suffix>.
type User struct {
	Id        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Image     string    `json:"image,omitempty"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Message is the unit of communication. Room is the routing key and is the
// only required field on the wire; Text may be empty when an attachment URL
// is present. At most one of ImageUrl, VideoUrl and RawFileUrl is set.
type Message struct {
	Id          string    `json:"id,omitempty"`
	Text        string    `json:"message,omitempty"`
	Room        string    `json:"room"`
	UserName    string    `json:"userName,omitempty"`
	UserImage   string    `json:"userImage,omitempty"`
	UserId      string    `json:"userId,omitempty"`
	ImageUrl    string    `json:"imageUrl,omitempty"`
	VideoUrl    string    `json:"videoUrl,omitempty"`
	RawFileUrl  string    `json:"rawFileUrl,omitempty"`
	ReplyToId   string    `json:"replyToId,omitempty"`
	ReplyToText string    `json:"replyToText,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// HasContent reports whether the message carries a body or at least one
// attachment URL.
func (m Message) HasContent() bool {
	return m.Text != "" || m.ImageUrl != "" || m.VideoUrl != "" || m.RawFileUrl != ""
}
