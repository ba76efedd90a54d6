package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facetag/internal/domain"
)

// Hub fans pipeline events out to the websocket connections of each user.
// A user may hold several connections (one per open tab).
type Hub struct {
	clients    map[*Client]bool
	users      map[uuid.UUID]map[*Client]bool
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	logger     *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		users:      make(map[uuid.UUID]map[*Client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case event := <-h.broadcast:
			h.sendToUser(event)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true

	if h.users[client.userID] == nil {
		h.users[client.userID] = make(map[*Client]bool)
	}
	h.users[client.userID][client] = true
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.dropLocked(client)
}

func (h *Hub) dropLocked(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	delete(h.users[client.userID], client)
	if len(h.users[client.userID]) == 0 {
		delete(h.users, client.userID)
	}
	close(client.send)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		h.dropLocked(client)
	}
}

func (h *Hub) sendToUser(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.users[event.UserID]
	if len(clients) == 0 {
		return
	}

	message, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("encode ws event", "type", event.Type, "error", err)
		return
	}

	for client := range clients {
		select {
		case client.send <- message:
		default:
			// slow consumer, drop the connection
			h.dropLocked(client)
		}
	}
}

// SendToUser queues an event for every connection of userID. It never
// blocks; events are dropped when the queue is full.
func (h *Hub) SendToUser(userID uuid.UUID, eventType EventType, data interface{}) {
	event := Event{
		UserID:    userID,
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("ws broadcast queue full, event dropped", "type", eventType, "user_id", userID)
	}
}

// PublishPhotoProcessed tells the uploader the pass finished and every
// matched user (other than the uploader) that they were found in a photo.
func (h *Hub) PublishPhotoProcessed(_ context.Context, e domain.PhotoProcessedEvent) error {
	notice := noticeFrom(e)
	h.SendToUser(e.UploaderID, EventPhotoProcessed, notice)

	if e.Status != domain.StatusCompleted {
		return nil
	}
	for _, userID := range e.MatchedUserIDs {
		if userID == e.UploaderID {
			continue
		}
		h.SendToUser(userID, EventPhotoMatched, notice)
	}
	return nil
}

func (h *Hub) PublishProfileUpdated(_ context.Context, e domain.ProfileUpdatedEvent) error {
	h.SendToUser(e.UserID, EventProfileUpdated, e)
	return nil
}

func (h *Hub) ConnectedClients(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.users[userID])
}
