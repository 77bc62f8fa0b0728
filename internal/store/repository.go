package store

// Repository is the durable storage boundary for accounts and the message
// backlog served back to clients on room entry.
type Repository interface {
	Ping() error
	CreateAccount(params CreateAccountParams) (Account, error)
	GetAccountById(accountId int) (Account, error)
	GetAccountByEmail(email string) (Account, error)
	SaveMessage(msg Message) (Message, error)
	RoomMessages(room string, limit int) ([]Message, error)
}
