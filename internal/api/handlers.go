package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vidshare/roomchat/internal/server"
	"github.com/vidshare/roomchat/internal/store"
)

// maxUploadBytes bounds the multipart body held in memory on upload.
const maxUploadBytes = 32 << 20

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Image    string `json:"image"`
}

// HistoryMessage is one backlog entry as served over HTTP. The body field
// is named text here, unlike the socket envelope where it is message.
type HistoryMessage struct {
	Id          string    `json:"id,omitempty"`
	Text        string    `json:"text"`
	Room        string    `json:"room"`
	UserId      string    `json:"userId,omitempty"`
	UserName    string    `json:"userName,omitempty"`
	UserImage   string    `json:"userImage,omitempty"`
	ImageUrl    string    `json:"imageUrl,omitempty"`
	VideoUrl    string    `json:"videoUrl,omitempty"`
	RawFileUrl  string    `json:"rawFileUrl,omitempty"`
	ReplyToId   string    `json:"replyToId,omitempty"`
	ReplyToText string    `json:"replyToText,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type HistoryResponse struct {
	Success  bool             `json:"success"`
	Messages []HistoryMessage `json:"messages"`
	Count    int              `json:"count"`
}

type UploadResponse struct {
	Success      bool   `json:"success"`
	URL          string `json:"url"`
	ResourceType string `json:"resourceType"`
}

func (a *App) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.Printf("json encode: %v", err)
	}
}

func (a *App) createAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Name == "" || req.Email == "" || req.Password == "" {
		errResp := NewBadRequestError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		errResp := NewInternalServerError(err)
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	account, err := a.db.CreateAccount(store.CreateAccountParams{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: pwdHash,
		Image:        req.Image,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	a.writeJson(w, http.StatusCreated, accountUser(account))
}

func (a *App) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&lr); err != nil {
		errResp := NewBadRequestError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if lr.Email == "" || lr.Password == "" {
		errResp := NewBadRequestError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	account, err := a.db.GetAccountByEmail(lr.Email)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !verifyPassword(account.PasswordHash, lr.Password) {
		errResp := NewUnauthorizedError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	token, err := a.createJwtForSession(account.Id, defaultJwtExpiration)
	if err != nil {
		errResp := NewInternalServerError(err)
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	http.SetCookie(w, createJwtCookie(token, defaultJwtExpiration))

	a.writeJson(w, http.StatusOK, accountUser(account))
}

func (a *App) session(w http.ResponseWriter, r *http.Request) {
	accountId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	account, err := a.db.GetAccountById(accountId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	a.writeJson(w, http.StatusOK, accountUser(account))
}

func (a *App) logout(w http.ResponseWriter, _ *http.Request) {
	// instruct browser to delete cookie by overwriting it with an expired token
	http.SetCookie(w, createJwtCookie("", time.Duration(time.Unix(0, 0).Unix())))
	w.WriteHeader(http.StatusNoContent)
}

// roomMessages serves the persisted backlog for a room, oldest first.
// Unknown rooms are indistinguishable from empty ones.
func (a *App) roomMessages(w http.ResponseWriter, r *http.Request) {
	room := r.PathValue("roomId")
	if room == "" {
		errResp := NewBadRequestError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbMessages, err := a.db.RoomMessages(room, 0)
	if err != nil {
		a.log.Printf("fetch messages for room %q: %v", room, err)
		errResp := NewInternalServerError(err)
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messages := make([]HistoryMessage, 0, len(dbMessages))
	for _, m := range dbMessages {
		messages = append(messages, HistoryMessage{
			Id:          m.MessageId,
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
			Timestamp:   m.CreatedAt,
		})
	}

	a.writeJson(w, http.StatusOK, HistoryResponse{
		Success:  true,
		Messages: messages,
		Count:    len(messages),
	})
}

func (a *App) upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		errResp := NewBadRequestError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		errResp := NewBadRequestError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	defer file.Close()

	up, err := a.uploads.Save(header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		a.log.Printf("store upload %q: %v", header.Filename, err)
		errResp := NewInternalServerError(err)
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	a.writeJson(w, http.StatusCreated, UploadResponse{
		Success:      true,
		URL:          up.URL,
		ResourceType: up.ResourceType,
	})
}

// serveWs upgrades the connection and hands it to the chat server. A
// session cookie is optional; without one the connection is anonymous and
// identity travels inside each published envelope.
func (a *App) serveWs(w http.ResponseWriter, r *http.Request) {
	user := a.sessionUser(r)

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(a.allowedOrigins, origin) || slices.Contains(a.allowedOrigins, "*")
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(user, conn, a.cs, a.log)
	a.cs.RegisterClient(client)
	go client.Write()
	go client.Read()
}
