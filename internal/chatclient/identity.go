package chatclient

import (
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"time"
)

const anonSuffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Identity is who outgoing messages are attributed to. An unresolved
// identity cannot send.
type Identity struct {
	Id    string
	Name  string
	Image string
}

func (i Identity) Resolved() bool {
	return i.Id != ""
}

// NewAnonymousId generates a fresh anonymous client id. The millisecond
// prefix keeps ids roughly sortable by first connection.
func NewAnonymousId() string {
	suffix := make([]byte, 9)
	for i := range suffix {
		suffix[i] = anonSuffixAlphabet[rand.IntN(len(anonSuffixAlphabet))]
	}

	return fmt.Sprintf("anon_%d_%s", time.Now().UnixMilli(), suffix)
}

// LoadOrCreateAnonymousId returns the anonymous id persisted at path,
// generating and storing one on first use. The id survives reconnects and
// is shared across all rooms of this client.
func LoadOrCreateAnonymousId(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read identity file: %w", err)
	}

	id := NewAnonymousId()
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write identity file: %w", err)
	}

	return id, nil
}
