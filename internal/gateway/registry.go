package gateway

import (
	"sync"

	"github.com/google/uuid"

	"campus_live/pkg/logger"
)

// Registry - процесс-локальный реестр живых соединений.
// Единственный источник правды о том, кому этот процесс может доставить кадр.
type Registry struct {
	mu          sync.RWMutex
	connections map[uuid.UUID]*Connection            // connID -> соединение
	byUser      map[uuid.UUID]uuid.UUID              // userID -> connID
	rooms       map[uuid.UUID]map[uuid.UUID]struct{} // roomID -> connIDs
	log         logger.Logger
}

func NewRegistry(log logger.Logger) *Registry {
	return &Registry{
		connections: make(map[uuid.UUID]*Connection),
		byUser:      make(map[uuid.UUID]uuid.UUID),
		rooms:       make(map[uuid.UUID]map[uuid.UUID]struct{}),
		log:         log,
	}
}

// Register добавляет соединение. Существующее соединение того же пользователя
// вытесняется: новое подключение всегда побеждает старое.
func (r *Registry) Register(conn *Connection) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted *Connection
	if oldID, ok := r.byUser[conn.Identity.UserID]; ok {
		if old, ok := r.connections[oldID]; ok {
			evicted = old
			r.removeLocked(old)
		}
	}

	r.connections[conn.ID] = conn
	r.byUser[conn.Identity.UserID] = conn.ID
	return evicted
}

// Unregister идемпотентен: чужое или уже удалённое соединение не трогается
func (r *Registry) Unregister(conn *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connections[conn.ID]; !ok {
		return false
	}
	r.removeLocked(conn)
	return true
}

func (r *Registry) removeLocked(conn *Connection) {
	delete(r.connections, conn.ID)
	if id, ok := r.byUser[conn.Identity.UserID]; ok && id == conn.ID {
		delete(r.byUser, conn.Identity.UserID)
	}
	for roomID := range r.rooms {
		delete(r.rooms[roomID], conn.ID)
		if len(r.rooms[roomID]) == 0 {
			delete(r.rooms, roomID)
		}
	}
}

// JoinRoom возвращает true, если это первое локальное соединение в комнате
func (r *Registry) JoinRoom(roomID uuid.UUID, conn *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connections[conn.ID]; !ok {
		return false
	}

	first := len(r.rooms[roomID]) == 0
	if r.rooms[roomID] == nil {
		r.rooms[roomID] = make(map[uuid.UUID]struct{})
	}
	r.rooms[roomID][conn.ID] = struct{}{}
	return first
}

// LeaveRoom возвращает true, если комната опустела локально
func (r *Registry) LeaveRoom(roomID uuid.UUID, conn *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	delete(set, conn.ID)
	if len(set) == 0 {
		delete(r.rooms, roomID)
		return true
	}
	return false
}

func (r *Registry) RoomConnections(roomID uuid.UUID) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	conns := make([]*Connection, 0, len(set))
	for connID := range set {
		if conn, ok := r.connections[connID]; ok {
			conns = append(conns, conn)
		}
	}
	return conns
}

// LocalRoomUsers - деградированный источник присутствия, когда Redis недоступен
func (r *Registry) LocalRoomUsers(roomID uuid.UUID) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	users := make([]uuid.UUID, 0, len(set))
	for connID := range set {
		if conn, ok := r.connections[connID]; ok {
			users = append(users, conn.Identity.UserID)
		}
	}
	return users
}

func (r *Registry) ByUser(userID uuid.UUID) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connID, ok := r.byUser[userID]
	if !ok {
		return nil, false
	}
	conn, ok := r.connections[connID]
	return conn, ok
}

func (r *Registry) All() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		conns = append(conns, conn)
	}
	return conns
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}
