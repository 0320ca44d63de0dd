package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// LobbyManager pushes the published-games list to clients sitting on
// the landing page, so newly published games appear without a reload.
type LobbyManager struct {
	clients map[int64]*LobbyClient
	mu      sync.RWMutex
}

type LobbyClient struct {
	conn   *websocket.Conn
	userID int64
	send   chan []byte
}

func NewLobbyManager() *LobbyManager {
	return &LobbyManager{
		clients: make(map[int64]*LobbyClient),
	}
}

func (lm *LobbyManager) HandleConnection(conn *websocket.Conn, userID int64) {
	client := &LobbyClient{
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, 256),
	}

	lm.mu.Lock()
	lm.clients[userID] = client
	lm.mu.Unlock()

	go client.writePump()
	client.readPump(lm)
}

// BroadcastUpdate sends the current published-games list to all
// connected lobby clients.
func (lm *LobbyManager) BroadcastUpdate(games interface{}) {
	message := OutgoingMessage{
		Type:    "games_update",
		Payload: games,
	}

	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("Failed to marshal lobby update: %v", err)
		return
	}

	lm.mu.RLock()
	defer lm.mu.RUnlock()

	for _, client := range lm.clients {
		select {
		case client.send <- data:
		default:
			// Client buffer full, skip
		}
	}
}

func (c *LobbyClient) readPump(lm *LobbyManager) {
	defer func() {
		lm.removeClient(c.userID)
		c.conn.Close()
	}()

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("Lobby WebSocket error: %v", err)
			}
			break
		}
		// Lobby doesn't handle incoming messages, just keeps connection alive
	}
}

func (c *LobbyClient) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (lm *LobbyManager) removeClient(userID int64) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if client, ok := lm.clients[userID]; ok {
		close(client.send)
		delete(lm.clients, userID)
	}
}
