package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"campus_live/internal/domain"
	"campus_live/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// Connection - одно WebSocket-соединение аутентифицированного пользователя.
// Весь вывод идёт через буферизованный канал send, пишет только WritePump.
type Connection struct {
	ID       uuid.UUID
	Identity domain.Identity

	ws   *websocket.Conn
	send chan []byte
	log  logger.Logger

	mu     sync.Mutex
	rooms  map[uuid.UUID]string // roomID -> вид комнаты ("meeting" | "chat")
	closed bool
}

const (
	RoomKindMeeting = "meeting"
	RoomKindChat    = "chat"
)

func NewConnection(ws *websocket.Conn, identity domain.Identity, log logger.Logger) *Connection {
	return &Connection{
		ID:       uuid.New(),
		Identity: identity,
		ws:       ws,
		send:     make(chan []byte, sendBufferSize),
		log:      log,
		rooms:    make(map[uuid.UUID]string),
	}
}

// Send сериализует кадр и ставит его в очередь. Медленный потребитель
// не блокирует отправителя: при переполненном буфере кадр отбрасывается.
func (c *Connection) Send(event string, data interface{}) {
	payload, err := json.Marshal(ServerMessage{Event: event, Data: data})
	if err != nil {
		c.log.Error("Failed to marshal server message", "event", event, "error", err)
		return
	}
	c.SendRaw(payload)
}

// SendRaw пишет кадр в канал под мьютексом: Close закрывает канал под тем же
// мьютексом, поэтому запись в закрытый канал невозможна. Запись неблокирующая,
// мьютекс не удерживается дольше одной попытки постановки в очередь.
func (c *Connection) SendRaw(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	select {
	case c.send <- payload:
	default:
		c.log.Warn("Send buffer full, dropping frame", "conn_id", c.ID, "user_id", c.Identity.UserID)
	}
}

func (c *Connection) SendError(code, message string) {
	c.Send(EventError, ErrorPayload{Code: code, Message: message})
}

// Close закрывает канал отправки ровно один раз; WritePump завершится
// и закроет сокет.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Connection) TrackRoom(roomID uuid.UUID, kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[roomID] = kind
}

func (c *Connection) ForgetRoom(roomID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, roomID)
}

// Rooms возвращает копию: вызывающий итерирует без блокировки
func (c *Connection) Rooms() map[uuid.UUID]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make(map[uuid.UUID]string, len(c.rooms))
	for id, kind := range c.rooms {
		rooms[id] = kind
	}
	return rooms
}

// ReadPump читает кадры клиента и передаёт их диспетчеру.
// Возвращается при любой ошибке чтения; очистку делает вызывающий.
func (c *Connection) ReadPump(dispatch func(*Connection, *ClientMessage)) {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("WebSocket read error", "conn_id", c.ID, "error", err)
			}
			return
		}

		msg := &ClientMessage{}
		if err := json.Unmarshal(data, msg); err != nil {
			c.SendError("bad_request", "malformed frame")
			continue
		}
		if msg.Event == "" {
			c.SendError("bad_request", "missing event name")
			continue
		}

		dispatch(c, msg)
	}
}

// WritePump - единственный писатель сокета: кадры из send плюс периодический ping
func (c *Connection) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
