package gateway

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"campus_live/pkg/logger"
)

// Broker разносит конверты между процессами. Доставка at-most-once:
// потерянный конверт не ретраится, durable-состояние уже в базе.
type Broker interface {
	Publish(env *Envelope) error
	Subscribe(roomID uuid.UUID, fn func(*Envelope)) (func(), error)
	Status() string
	Close()
}

type natsBroker struct {
	nc  *nats.Conn
	log logger.Logger
}

func NewNATSBroker(url string, log logger.Logger) (Broker, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &natsBroker{nc: nc, log: log}, nil
}

func roomSubject(roomID uuid.UUID) string {
	return "room." + roomID.String()
}

func (b *natsBroker) Publish(env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.nc.Publish(roomSubject(env.RoomID), data)
}

func (b *natsBroker) Subscribe(roomID uuid.UUID, fn func(*Envelope)) (func(), error) {
	sub, err := b.nc.Subscribe(roomSubject(roomID), func(msg *nats.Msg) {
		env := &Envelope{}
		if err := json.Unmarshal(msg.Data, env); err != nil {
			b.log.Warn("Failed to decode broker envelope", "subject", msg.Subject, "error", err)
			return
		}
		fn(env)
	})
	if err != nil {
		return nil, err
	}

	return func() {
		if err := sub.Unsubscribe(); err != nil {
			b.log.Warn("Failed to unsubscribe", "room_id", roomID, "error", err)
		}
	}, nil
}

func (b *natsBroker) Status() string {
	if b.nc.IsConnected() {
		return "ok"
	}
	return "reconnecting"
}

func (b *natsBroker) Close() {
	if err := b.nc.Drain(); err != nil {
		b.log.Warn("NATS drain failed", "error", err)
	}
}

// localBroker - внутрипроцессный fan-out для single-process развёртывания.
// Публикация синхронна, порядок конвертов одного отправителя сохраняется.
type localBroker struct {
	mu     sync.RWMutex
	nextID int
	subs   map[uuid.UUID]map[int]func(*Envelope)
}

func NewLocalBroker() Broker {
	return &localBroker{subs: make(map[uuid.UUID]map[int]func(*Envelope))}
}

func (b *localBroker) Publish(env *Envelope) error {
	b.mu.RLock()
	fns := make([]func(*Envelope), 0, len(b.subs[env.RoomID]))
	for _, fn := range b.subs[env.RoomID] {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(env)
	}
	return nil
}

func (b *localBroker) Subscribe(roomID uuid.UUID, fn func(*Envelope)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[roomID] == nil {
		b.subs[roomID] = make(map[int]func(*Envelope))
	}
	id := b.nextID
	b.nextID++
	b.subs[roomID][id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[roomID], id)
		if len(b.subs[roomID]) == 0 {
			delete(b.subs, roomID)
		}
	}, nil
}

func (b *localBroker) Status() string { return "local" }

func (b *localBroker) Close() {}
