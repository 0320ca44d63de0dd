package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"votelynch/auth"
	"votelynch/game"
	"votelynch/store"
	"votelynch/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// In production, check against allowed origins
		// For now, only allow same origin
		return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
	},
}

type Handlers struct {
	authService  *auth.Service
	lobby        *game.Lobby
	engine       *game.Engine
	wsManager    *ws.Manager
	lobbyManager *ws.LobbyManager
	store        store.Store
}

func NewHandlers(authService *auth.Service, lobby *game.Lobby, engine *game.Engine, wsManager *ws.Manager, lobbyManager *ws.LobbyManager, store store.Store) *Handlers {
	return &Handlers{
		authService:  authService,
		lobby:        lobby,
		engine:       engine,
		wsManager:    wsManager,
		lobbyManager: lobbyManager,
		store:        store,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to write JSON response: %v", err)
	}
}

// writeGameError maps the core error taxonomy onto HTTP statuses.
// Missing resources answer 403 rather than 404, so probing for other
// people's game ids reveals nothing.
func writeGameError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, game.ErrForbidden), errors.Is(err, game.ErrNotFound):
		http.Error(w, "Forbidden", http.StatusForbidden)
	case errors.Is(err, game.ErrInvalidState), errors.Is(err, game.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, game.ErrTransient):
		http.Error(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
	default:
		log.Printf("Unexpected error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	return id, err == nil && id > 0
}

func requestUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}
	return userID, ok
}

// Auth handlers

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.authService.Register(req.Username, req.Password); err != nil {
		switch err {
		case auth.ErrInvalidUsername, auth.ErrInvalidPassword, auth.ErrUserExists:
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			log.Printf("Register error: %v", err)
			http.Error(w, "Registration failed", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"message": "User registered successfully"})
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sessionID, user, err := h.authService.Login(req.Username, req.Password)
	if err != nil {
		if err == auth.ErrInvalidCredentials {
			http.Error(w, err.Error(), http.StatusUnauthorized)
		} else {
			log.Printf("Login error: %v", err)
			http.Error(w, "Login failed", http.StatusInternalServerError)
		}
		return
	}

	h.authService.GetSessionManager().SetSessionCookie(w, sessionID)

	log.Printf("Login successful for user %s (ID: %d)", user.Username, user.ID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "Login successful",
		"userId":   user.ID,
		"username": user.Username,
	})
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID := h.authService.GetSessionManager().SessionFromRequest(r)
	if sessionID != "" {
		h.authService.Logout(sessionID)
		h.authService.GetSessionManager().ClearSessionCookie(w)
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// Game lifecycle handlers

func (h *Handlers) Landing(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(w, r)
	if !ok {
		return
	}

	view, err := h.lobby.Landing(userID, r.URL.Query().Get("archive") != "")
	if err != nil {
		writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) CreateGame(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(w, r)
	if !ok {
		return
	}

	var req struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	summary, err := h.lobby.CreateGame(req.Name, req.Password, userID)
	if err != nil {
		writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

func (h *Handlers) ManageGame(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(w, r)
	if !ok {
		return
	}
	gameID, ok := pathID(r, "gameId")
	if !ok {
		http.Error(w, "Invalid game ID", http.StatusBadRequest)
		return
	}

	view, err := h.lobby.ManageView(gameID, userID)
	if err != nil {
		writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) PlayGame(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(w, r)
	if !ok {
		return
	}
	gameID, ok := pathID(r, "gameId")
	if !ok {
		http.Error(w, "Invalid game ID", http.StatusBadRequest)
		return
	}

	view, err := h.lobby.PlayView(gameID, userID)
	if err != nil {
		writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) JoinGame(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(w, r)
	if !ok {
		return
	}
	token := mux.Vars(r)["token"]

	var req struct {
		Password string `json:"password"`
		Alias    string `json:"alias"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	event, err := h.lobby.JoinByToken(token, userID, req.Password, req.Alias)
	if err != nil {
		writeGameError(w, err)
		return
	}

	h.wsManager.BroadcastEvent(event)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Joined game successfully",
		"gameId":  event.GameID,
	})
}

func (h *Handlers) AddModerator(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(w, r)
	if !ok {
		return
	}
	gameID, ok := pathID(r, "gameId")
	if !ok {
		http.Error(w, "Invalid game ID", http.StatusBadRequest)
		return
	}

	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	event, err := h.lobby.AddModerator(gameID, userID, req.Username)
	if err != nil {
		writeGameError(w, err)
		return
	}

	h.wsManager.BroadcastEvent(event)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Moderator added"})
}

// SetGameFlag handles publish/archive/lock. The flag name comes from
// the route; the body may carry {"value": false} to clear it.
func (h *Handlers) SetGameFlag(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(w, r)
	if !ok {
		return
	}
	gameID, ok := pathID(r, "gameId")
	if !ok {
		http.Error(w, "Invalid game ID", http.StatusBadRequest)
		return
	}

	req := struct {
		Value *bool `json:"value"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		req.Value = nil // empty body means "set"
	}
	value := req.Value == nil || *req.Value

	flag := mux.Vars(r)["flag"]
	var err error
	switch flag {
	case "publish":
		err = h.lobby.SetPublished(gameID, userID, value)
	case "archive":
		err = h.lobby.SetArchived(gameID, userID, value)
	case "lock":
		err = h.lobby.SetLocked(gameID, userID, value)
	default:
		http.Error(w, "Unknown flag", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeGameError(w, err)
		return
	}

	if flag == "publish" {
		if games, err := h.lobby.PublishedGames(); err == nil {
			h.lobbyManager.BroadcastUpdate(games)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Game updated"})
}

// Stage handlers

func (h *Handlers) AdvanceStage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(w, r)
	if !ok {
		return
	}
	gameID, ok := pathID(r, "gameId")
	if !ok {
		http.Error(w, "Invalid game ID", http.StatusBadRequest)
		return
	}

	stage, event, err := h.engine.AdvanceStage(gameID, userID)
	if err != nil {
		writeGameError(w, err)
		return
	}

	h.wsManager.BroadcastEvent(event)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"stageId": stage.ID,
		"index":   stage.Index,
		"isDay":   stage.IsDay,
	})
}

func (h *Handlers) SetLiveness(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(w, r)
	if !ok {
		return
	}
	snapshotID, ok := pathID(r, "snapshotId")
	if !ok {
		http.Error(w, "Invalid player ID", http.StatusBadRequest)
		return
	}

	var event *game.Event
	var err error
	switch mux.Vars(r)["action"] {
	case "kill":
		event, err = h.engine.Kill(snapshotID, userID)
	case "revive":
		event, err = h.engine.Revive(snapshotID, userID)
	default:
		http.Error(w, "Unknown action", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeGameError(w, err)
		return
	}

	h.wsManager.BroadcastEvent(event)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Player updated"})
}

// Vote handlers

func (h *Handlers) CreateVote(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(w, r)
	if !ok {
		return
	}
	gameID, ok := pathID(r, "gameId")
	if !ok {
		http.Error(w, "Invalid game ID", http.StatusBadRequest)
		return
	}

	req := struct {
		Name string `json:"name"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		req.Name = ""
	}

	vote, event, err := h.engine.CreateVote(gameID, userID, req.Name)
	if err != nil {
		writeGameError(w, err)
		return
	}

	h.wsManager.BroadcastEvent(event)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"voteId": vote.ID,
		"index":  vote.Index,
	})
}

func (h *Handlers) SetVoteState(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(w, r)
	if !ok {
		return
	}
	voteID, ok := pathID(r, "voteId")
	if !ok {
		http.Error(w, "Invalid vote ID", http.StatusBadRequest)
		return
	}

	var event *game.Event
	var err error
	switch mux.Vars(r)["action"] {
	case "open":
		event, err = h.engine.OpenVote(voteID, userID)
	case "close":
		event, err = h.engine.CloseVote(voteID, userID)
	case "publish":
		event, err = h.engine.PublishVote(voteID, userID)
	default:
		http.Error(w, "Unknown action", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeGameError(w, err)
		return
	}

	h.wsManager.BroadcastEvent(event)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Vote updated"})
}

func (h *Handlers) CastVote(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(w, r)
	if !ok {
		return
	}
	voteID, ok := pathID(r, "voteId")
	if !ok {
		http.Error(w, "Invalid vote ID", http.StatusBadRequest)
		return
	}

	var req struct {
		ChoiceID int64 `json:"choiceId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	event, err := h.engine.CastVote(voteID, userID, req.ChoiceID)
	if err != nil {
		writeGameError(w, err)
		return
	}

	h.wsManager.BroadcastEvent(event)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Ballot recorded"})
}

func (h *Handlers) GetVote(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(w, r)
	if !ok {
		return
	}
	voteID, ok := pathID(r, "voteId")
	if !ok {
		http.Error(w, "Invalid vote ID", http.StatusBadRequest)
		return
	}

	view, err := h.engine.VoteView(voteID, userID)
	if err != nil {
		writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// WebSocket handlers

func (h *Handlers) HandleGameSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(w, r)
	if !ok {
		return
	}
	gameID, ok := pathID(r, "gameId")
	if !ok {
		http.Error(w, "Invalid game ID", http.StatusBadRequest)
		return
	}

	// Only members of the game may watch its room.
	playing, err := h.lobby.IsPlayer(gameID, userID)
	if err != nil {
		writeGameError(w, err)
		return
	}
	if !playing {
		moderating, err := h.lobby.IsModerator(gameID, userID)
		if err != nil {
			writeGameError(w, err)
			return
		}
		if !moderating {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	h.wsManager.HandleConnection(conn, gameID, userID)
}

func (h *Handlers) HandleLobbySocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	h.lobbyManager.HandleConnection(conn, userID)
}
