package store

import "time"

type Account struct {
	Id           int
	Name         string
	Email        string
	PasswordHash string
	Image        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Message is a persisted chat message. MessageId is the server-assigned
// wire id; UserId may be an account id or an anonymous client id.
type Message struct {
	Id          int
	MessageId   string
	Room        string
	Text        string
	UserId      string
	UserName    string
	UserImage   string
	ImageUrl    string
	VideoUrl    string
	RawFileUrl  string
	ReplyToId   string
	ReplyToText string
	CreatedAt   time.Time
}

type CreateAccountParams struct {
	Name         string
	Email        string
	PasswordHash string
	Image        string
}
