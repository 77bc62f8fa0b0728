package chatclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vidshare/roomchat/internal/types"
)

// HistoryClient fetches the persisted backlog for a room over HTTP.
type HistoryClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewHistoryClient(baseURL string, httpClient *http.Client) *HistoryClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &HistoryClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

type historyMessage struct {
	Id          string    `json:"id"`
	Text        string    `json:"text"`
	Room        string    `json:"room"`
	UserId      string    `json:"userId"`
	UserName    string    `json:"userName"`
	UserImage   string    `json:"userImage"`
	ImageUrl    string    `json:"imageUrl"`
	VideoUrl    string    `json:"videoUrl"`
	RawFileUrl  string    `json:"rawFileUrl"`
	ReplyToId   string    `json:"replyToId"`
	ReplyToText string    `json:"replyToText"`
	Timestamp   time.Time `json:"timestamp"`
}

type historyResponse struct {
	Success  bool             `json:"success"`
	Messages []historyMessage `json:"messages"`
	Count    int              `json:"count"`
}

// Fetch returns the backlog for a room oldest first. An unknown room is an
// empty backlog, not an error.
func (hc *HistoryClient) Fetch(ctx context.Context, room string) ([]types.Message, error) {
	u := hc.baseURL + "/api/messages/room/" + url.PathEscape(room)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build history request: %w", err)
	}

	resp, err := hc.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch history for room %q: %w", room, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch history for room %q: status %d", room, resp.StatusCode)
	}

	var hr historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&hr); err != nil {
		return nil, fmt.Errorf("decode history for room %q: %w", room, err)
	}

	if !hr.Success {
		return nil, fmt.Errorf("history fetch for room %q unsuccessful", room)
	}

	messages := make([]types.Message, 0, len(hr.Messages))
	for _, m := range hr.Messages {
		messages = append(messages, types.Message{
			Id:          m.Id,
			Text:        m.Text,
			Room:        m.Room,
			UserId:      m.UserId,
			UserName:    m.UserName,
			UserImage:   m.UserImage,
			ImageUrl:    m.ImageUrl,
			VideoUrl:    m.VideoUrl,
			RawFileUrl:  m.RawFileUrl,
			ReplyToId:   m.ReplyToId,
			ReplyToText: m.ReplyToText,
			Timestamp:   m.Timestamp,
		})
	}

	return messages, nil
}
