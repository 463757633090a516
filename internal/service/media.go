package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/livekit/protocol/auth"

	"campus_live/internal/config"
	"campus_live/internal/domain"
	apperrors "campus_live/pkg/errors"
	"campus_live/pkg/logger"
)

// MediaCapabilities - всё, что нужно новому участнику для начала переговоров с движком
type MediaCapabilities struct {
	AccessToken string          `json:"access_token"`
	EngineURL   string          `json:"engine_url"`
	Router      json.RawMessage `json:"router,omitempty"`
}

// Engine - control-plane контракт внешнего медиа-движка.
// Все payload'ы непрозрачны для бэкенда и пересылаются как есть.
type Engine interface {
	EnsureSession(ctx context.Context, room string) (json.RawMessage, error)
	CreateTransport(ctx context.Context, room string, participantID uuid.UUID, direction string) (json.RawMessage, error)
	ConnectTransport(ctx context.Context, transportID string, params json.RawMessage) error
	Produce(ctx context.Context, room string, participantID uuid.UUID, kind string, params json.RawMessage) (string, error)
	Consume(ctx context.Context, room string, consumerID, producerID uuid.UUID, kind string, capabilities json.RawMessage) (json.RawMessage, error)
	CloseSession(ctx context.Context, room string) error
}

type MediaService interface {
	Engine
	Capabilities(ctx context.Context, room string, identity domain.Identity) (*MediaCapabilities, error)
}

type mediaService struct {
	engine Engine
	cfg    config.EngineConfig
	log    logger.Logger

	mu       sync.Mutex
	sessions map[string]json.RawMessage // room -> router capabilities, для идемпотентного EnsureSession
}

func NewMediaService(engine Engine, cfg config.EngineConfig, log logger.Logger) MediaService {
	return &mediaService{
		engine:   engine,
		cfg:      cfg,
		log:      log,
		sessions: make(map[string]json.RawMessage),
	}
}

func (s *mediaService) EnsureSession(ctx context.Context, room string) (json.RawMessage, error) {
	s.mu.Lock()
	if caps, ok := s.sessions[room]; ok {
		s.mu.Unlock()
		return caps, nil
	}
	s.mu.Unlock()

	caps, err := s.engine.EnsureSession(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("%w: ensure session: %v", apperrors.ErrDependencyFailure, err)
	}

	s.mu.Lock()
	s.sessions[room] = caps
	s.mu.Unlock()

	return caps, nil
}

func (s *mediaService) CreateTransport(ctx context.Context, room string, participantID uuid.UUID, direction string) (json.RawMessage, error) {
	result, err := s.engine.CreateTransport(ctx, room, participantID, direction)
	if err != nil {
		return nil, fmt.Errorf("%w: create transport: %v", apperrors.ErrDependencyFailure, err)
	}
	return result, nil
}

func (s *mediaService) ConnectTransport(ctx context.Context, transportID string, params json.RawMessage) error {
	if err := s.engine.ConnectTransport(ctx, transportID, params); err != nil {
		return fmt.Errorf("%w: connect transport: %v", apperrors.ErrDependencyFailure, err)
	}
	return nil
}

func (s *mediaService) Produce(ctx context.Context, room string, participantID uuid.UUID, kind string, params json.RawMessage) (string, error) {
	producerID, err := s.engine.Produce(ctx, room, participantID, kind, params)
	if err != nil {
		return "", fmt.Errorf("%w: produce: %v", apperrors.ErrDependencyFailure, err)
	}
	return producerID, nil
}

func (s *mediaService) Consume(ctx context.Context, room string, consumerID, producerID uuid.UUID, kind string, capabilities json.RawMessage) (json.RawMessage, error) {
	result, err := s.engine.Consume(ctx, room, consumerID, producerID, kind, capabilities)
	if err != nil {
		return nil, fmt.Errorf("%w: consume: %v", apperrors.ErrDependencyFailure, err)
	}
	return result, nil
}

func (s *mediaService) CloseSession(ctx context.Context, room string) error {
	s.mu.Lock()
	delete(s.sessions, room)
	s.mu.Unlock()

	if err := s.engine.CloseSession(ctx, room); err != nil {
		return fmt.Errorf("%w: close session: %v", apperrors.ErrDependencyFailure, err)
	}
	return nil
}

func (s *mediaService) Capabilities(ctx context.Context, room string, identity domain.Identity) (*MediaCapabilities, error) {
	at := auth.NewAccessToken(s.cfg.APIKey, s.cfg.APISecret)
	canPublish := true
	canSubscribe := true
	grant := &auth.VideoGrant{
		RoomJoin:     true,
		Room:         room,
		CanPublish:   &canPublish,
		CanSubscribe: &canSubscribe,
	}

	at.AddGrant(grant).
		SetIdentity(identity.UserID.String()).
		SetName(identity.DisplayName).
		SetValidFor(s.cfg.TokenTTL)

	token, err := at.ToJWT()
	if err != nil {
		s.log.Error("Failed to generate engine access token", "error", err)
		return nil, fmt.Errorf("%w: access token: %v", apperrors.ErrDependencyFailure, err)
	}

	url := s.cfg.FrontendURL
	if url == "" {
		url = s.cfg.URL
	}

	s.mu.Lock()
	router := s.sessions[room]
	s.mu.Unlock()

	return &MediaCapabilities{
		AccessToken: token,
		EngineURL:   url,
		Router:      router,
	}, nil
}

// httpEngine пересылает каждый вызов как есть в control-plane API движка
type httpEngine struct {
	baseURL string
	client  *http.Client
	log     logger.Logger
}

func NewHTTPEngine(cfg config.EngineConfig, log logger.Logger) Engine {
	return &httpEngine{
		baseURL: cfg.URL,
		client:  &http.Client{Timeout: cfg.Timeout},
		log:     log,
	}
}

func (e *httpEngine) EnsureSession(ctx context.Context, room string) (json.RawMessage, error) {
	body := map[string]interface{}{"room": room}
	var result struct {
		RouterCapabilities json.RawMessage `json:"router_capabilities"`
	}
	if err := e.post(ctx, "/v1/sessions", body, &result); err != nil {
		return nil, err
	}
	return result.RouterCapabilities, nil
}

func (e *httpEngine) CreateTransport(ctx context.Context, room string, participantID uuid.UUID, direction string) (json.RawMessage, error) {
	body := map[string]interface{}{
		"participant_id": participantID,
		"direction":      direction,
	}
	var result json.RawMessage
	if err := e.post(ctx, "/v1/sessions/"+room+"/transports", body, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (e *httpEngine) ConnectTransport(ctx context.Context, transportID string, params json.RawMessage) error {
	body := map[string]interface{}{"params": params}
	return e.post(ctx, "/v1/transports/"+transportID+"/connect", body, nil)
}

func (e *httpEngine) Produce(ctx context.Context, room string, participantID uuid.UUID, kind string, params json.RawMessage) (string, error) {
	body := map[string]interface{}{
		"participant_id": participantID,
		"kind":           kind,
		"params":         params,
	}
	var result struct {
		ProducerID string `json:"producer_id"`
	}
	if err := e.post(ctx, "/v1/sessions/"+room+"/producers", body, &result); err != nil {
		return "", err
	}
	return result.ProducerID, nil
}

func (e *httpEngine) Consume(ctx context.Context, room string, consumerID, producerID uuid.UUID, kind string, capabilities json.RawMessage) (json.RawMessage, error) {
	body := map[string]interface{}{
		"consumer_participant_id": consumerID,
		"producer_participant_id": producerID,
		"kind":                    kind,
		"capabilities":            capabilities,
	}
	var result json.RawMessage
	if err := e.post(ctx, "/v1/sessions/"+room+"/consumers", body, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (e *httpEngine) CloseSession(ctx context.Context, room string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, e.baseURL+"/v1/sessions/"+room, nil)
	if err != nil {
		return err
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("engine returned status %d", resp.StatusCode)
	}
	return nil
}

func (e *httpEngine) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("engine returned status %d: %s", resp.StatusCode, string(data))
	}

	e.log.Debug("Engine call completed", "path", path, "latency", time.Since(start))

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
