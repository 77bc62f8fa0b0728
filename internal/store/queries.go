package store

import (
	"time"
)

// defaultHistoryLimit bounds a backlog fetch when the caller does not
// specify a limit.
const defaultHistoryLimit = 500

func (db *PgRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (name, email, password_hash, image, created_at) "+
			"VALUES ($1, $2, $3, $4, $5) RETURNING id, name, email, image, created_at",
		params.Name,
		params.Email,
		params.PasswordHash,
		params.Image,
		time.Now().UTC(),
	)

	var a Account
	err := res.Scan(
		&a.Id,
		&a.Name,
		&a.Email,
		&a.Image,
		&a.CreatedAt,
	)

	return a, err
}

func (db *PgRepository) GetAccountById(accountId int) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, email, image FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		accountId,
	)

	var a Account
	err := row.Scan(
		&a.Id,
		&a.Name,
		&a.Email,
		&a.Image,
	)

	return a, err
}

func (db *PgRepository) GetAccountByEmail(email string) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, email, image, password_hash FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var a Account
	err := row.Scan(
		&a.Id,
		&a.Name,
		&a.Email,
		&a.Image,
		&a.PasswordHash,
	)

	return a, err
}

func (db *PgRepository) SaveMessage(msg Message) (Message, error) {
	res := db.conn.QueryRow(
		"INSERT INTO messages (message_id, room, text, user_id, user_name, user_image, "+
			"image_url, video_url, raw_file_url, reply_to_id, reply_to_text, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) "+
			"RETURNING id",
		msg.MessageId,
		msg.Room,
		msg.Text,
		msg.UserId,
		msg.UserName,
		msg.UserImage,
		msg.ImageUrl,
		msg.VideoUrl,
		msg.RawFileUrl,
		msg.ReplyToId,
		msg.ReplyToText,
		msg.CreatedAt,
	)

	err := res.Scan(&msg.Id)
	return msg, err
}

// RoomMessages returns the persisted backlog for a room ordered
// oldest-first, the authoritative base ordering for a room view.
func (db *PgRepository) RoomMessages(room string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	rows, err := db.conn.Query(
		"SELECT id, message_id, room, text, user_id, user_name, user_image, "+
			"image_url, video_url, raw_file_url, reply_to_id, reply_to_text, created_at "+
			"FROM messages WHERE room = $1 ORDER BY id ASC LIMIT $2",
		room,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.Id,
			&m.MessageId,
			&m.Room,
			&m.Text,
			&m.UserId,
			&m.UserName,
			&m.UserImage,
			&m.ImageUrl,
			&m.VideoUrl,
			&m.RawFileUrl,
			&m.ReplyToId,
			&m.ReplyToText,
			&m.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}
