package game

import (
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"votelynch/store"
)

// Lobby owns game lifecycle and membership: creating games, joining
// them, moderator grants, and the landing/manage/play view models.
type Lobby struct {
	store      store.Store
	bcryptCost int
}

func NewLobby(s store.Store, bcryptCost int) *Lobby {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Lobby{store: s, bcryptCost: bcryptCost}
}

func summarize(g *store.Game) *GameSummary {
	return &GameSummary{
		ID:         g.ID,
		Name:       g.Name,
		Published:  g.Published,
		Archived:   g.Archived,
		Locked:     g.Locked,
		HasStage:   g.CurrentStageID != 0,
		Created:    g.CreatedAt,
		CreatedAgo: ago(g.CreatedAt),
		UpdatedAgo: ago(g.UpdatedAt),
	}
}

// CreateGame creates a game with a hashed join credential and grants
// the creator moderator access.
func (l *Lobby) CreateGame(name, password string, creatorID int64) (*GameSummary, error) {
	name = sanitize(name)
	if name == "" || password == "" || creatorID == 0 {
		return nil, fmt.Errorf("%w: name, password and an account are required", ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), l.bcryptCost)
	if err != nil {
		// bcrypt rejects passwords over 72 bytes.
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	gameID, err := l.store.CreateGame(name, string(hash), uuid.NewString(), creatorID)
	if err != nil {
		return nil, storageErr(err)
	}

	g, err := l.store.GetGame(gameID)
	if err != nil {
		return nil, storageErr(err)
	}
	return summarize(g), nil
}

// Landing lists the caller's games in both roles. An unauthenticated
// caller gets empty lists, not an error. Archived games are hidden
// unless includeArchive is set.
func (l *Lobby) Landing(userID int64, includeArchive bool) (*LandingView, error) {
	view := &LandingView{
		GamesPlaying:    []*GameSummary{},
		GamesModerating: []*GameSummary{},
		Archive:         includeArchive,
	}
	if userID == 0 {
		return view, nil
	}

	playing, err := l.store.ListGamesPlaying(userID)
	if err != nil {
		return nil, storageErr(err)
	}
	moderating, err := l.store.ListGamesModerating(userID)
	if err != nil {
		return nil, storageErr(err)
	}

	for _, g := range playing {
		if g.Archived && !includeArchive {
			continue
		}
		view.GamesPlaying = append(view.GamesPlaying, summarize(g))
	}
	for _, g := range moderating {
		if g.Archived && !includeArchive {
			continue
		}
		view.GamesModerating = append(view.GamesModerating, summarize(g))
	}
	return view, nil
}

// JoinByToken joins via the opaque token in the game's share URL.
func (l *Lobby) JoinByToken(token string, userID int64, password, alias string) (*Event, error) {
	g, err := l.store.GetGameByJoinToken(token)
	if err != nil {
		return nil, storageErr(err)
	}
	return l.join(g, userID, password, alias)
}

// JoinGame joins by game id; same credential check as JoinByToken.
func (l *Lobby) JoinGame(gameID, userID int64, password, alias string) (*Event, error) {
	g, err := l.store.GetGame(gameID)
	if err != nil {
		return nil, storageErr(err)
	}
	return l.join(g, userID, password, alias)
}

func (l *Lobby) join(g *store.Game, userID int64, password, alias string) (*Event, error) {
	if g == nil {
		return nil, ErrNotFound
	}
	if userID == 0 {
		return nil, ErrForbidden
	}
	if g.Archived || g.Locked {
		return nil, fmt.Errorf("%w: game is closed to new players", ErrInvalidState)
	}

	// Credential check comes before any membership write, so a wrong
	// password can never leave a player row behind.
	if err := bcrypt.CompareHashAndPassword([]byte(g.PasswordHash), []byte(password)); err != nil {
		return nil, ErrForbidden
	}

	existing, err := l.store.GetPlayer(g.ID, userID)
	if err != nil {
		return nil, storageErr(err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: already joined", ErrValidation)
	}

	alias = sanitize(alias)
	if alias == "" {
		user, err := l.store.GetUserByID(userID)
		if err != nil {
			return nil, storageErr(err)
		}
		if user == nil {
			return nil, ErrForbidden
		}
		alias = user.Username
	}

	playerID, err := l.store.AddPlayer(g.ID, userID, alias)
	if err != nil {
		// Unique constraint backstops the existence check above when
		// two joins race.
		return nil, raceErr(err)
	}

	return &Event{
		Type:   "player_joined",
		GameID: g.ID,
		Payload: PlayerJoinedPayload{
			PlayerID: playerID,
			Alias:    alias,
		},
	}, nil
}

// AddModerator grants moderator access to the named account.
// Idempotent for an existing grant.
func (l *Lobby) AddModerator(gameID, actorID int64, username string) (*Event, error) {
	if _, err := requireModerator(l.store, gameID, actorID); err != nil {
		return nil, err
	}

	user, err := l.store.GetUserByUsername(sanitize(username))
	if err != nil {
		return nil, storageErr(err)
	}
	if user == nil {
		return nil, ErrNotFound
	}

	if err := l.store.AddModerator(gameID, user.ID); err != nil {
		return nil, storageErr(err)
	}

	return &Event{
		Type:    "moderator_added",
		GameID:  gameID,
		Payload: map[string]string{"username": user.Username},
	}, nil
}

func (l *Lobby) SetPublished(gameID, actorID int64, published bool) error {
	if _, err := requireModerator(l.store, gameID, actorID); err != nil {
		return err
	}
	if err := l.store.SetGamePublished(gameID, published); err != nil {
		return storageErr(err)
	}
	return nil
}

func (l *Lobby) SetArchived(gameID, actorID int64, archived bool) error {
	if _, err := requireModerator(l.store, gameID, actorID); err != nil {
		return err
	}
	if err := l.store.SetGameArchived(gameID, archived); err != nil {
		return storageErr(err)
	}
	return nil
}

func (l *Lobby) SetLocked(gameID, actorID int64, locked bool) error {
	if _, err := requireModerator(l.store, gameID, actorID); err != nil {
		return err
	}
	if err := l.store.SetGameLocked(gameID, locked); err != nil {
		return storageErr(err)
	}
	return nil
}

// PublishedGames lists games visibly in play, newest first. Feeds the
// landing page's live list.
func (l *Lobby) PublishedGames() ([]*GameSummary, error) {
	games, err := l.store.ListPublishedGames()
	if err != nil {
		return nil, storageErr(err)
	}
	summaries := make([]*GameSummary, 0, len(games))
	for _, g := range games {
		summaries = append(summaries, summarize(g))
	}
	return summaries, nil
}

// IsModerator reports whether userID moderates the game. The zero
// user is never a member.
func (l *Lobby) IsModerator(gameID, userID int64) (bool, error) {
	if userID == 0 {
		return false, nil
	}
	ok, err := l.store.IsModerator(gameID, userID)
	if err != nil {
		return false, storageErr(err)
	}
	return ok, nil
}

func (l *Lobby) IsPlayer(gameID, userID int64) (bool, error) {
	if userID == 0 {
		return false, nil
	}
	player, err := l.store.GetPlayer(gameID, userID)
	if err != nil {
		return false, storageErr(err)
	}
	return player != nil, nil
}

func stageInfo(s *store.Stage) *StageInfo {
	return &StageInfo{
		ID:            s.ID,
		Index:         s.Index,
		IsDay:         s.IsDay,
		CurrentVoteID: s.CurrentVoteID,
	}
}

func voteInfo(v *store.Vote) *VoteInfo {
	return &VoteInfo{
		ID:         v.ID,
		Index:      v.Index,
		Name:       v.Name,
		IsOpen:     v.IsOpen,
		Published:  v.Published,
		CreatedAgo: ago(v.CreatedAt),
	}
}

func playerStatus(sp *store.StagePlayer) *PlayerStatus {
	return &PlayerStatus{
		SnapshotID: sp.ID,
		PlayerID:   sp.GamePlayerID,
		Alias:      sp.Alias,
		Alive:      sp.Alive,
	}
}

// ManageView builds the moderator page: the stage timeline, the
// current stage's votes, and its liveness snapshots.
func (l *Lobby) ManageView(gameID, actorID int64) (*ManageView, error) {
	g, err := requireModerator(l.store, gameID, actorID)
	if err != nil {
		return nil, err
	}

	stages, err := l.store.ListStages(gameID)
	if err != nil {
		return nil, storageErr(err)
	}

	view := &ManageView{
		Game:         summarize(g),
		JoinToken:    g.JoinToken,
		Stages:       make([]*StageInfo, 0, len(stages)),
		Votes:        []*VoteInfo{},
		StagePlayers: []*PlayerStatus{},
	}
	for _, s := range stages {
		view.Stages = append(view.Stages, stageInfo(s))
	}

	if g.CurrentStageID == 0 {
		return view, nil
	}

	current, err := l.store.GetStage(g.CurrentStageID)
	if err != nil {
		return nil, storageErr(err)
	}
	if current == nil {
		return nil, fmt.Errorf("%w: current stage %d missing", ErrTransient, g.CurrentStageID)
	}
	view.CurrentStage = stageInfo(current)

	votes, err := l.store.ListVotes(current.ID)
	if err != nil {
		return nil, storageErr(err)
	}
	for _, v := range votes {
		view.Votes = append(view.Votes, voteInfo(v))
	}

	snapshots, err := l.store.ListStagePlayers(current.ID)
	if err != nil {
		return nil, storageErr(err)
	}
	for _, sp := range snapshots {
		view.StagePlayers = append(view.StagePlayers, playerStatus(sp))
	}
	return view, nil
}

// PlayView builds the player page: current stage, live players, and
// the stage's votes. Any member of the game may read it.
func (l *Lobby) PlayView(gameID, actorID int64) (*PlayView, error) {
	g, err := l.store.GetGame(gameID)
	if err != nil {
		return nil, storageErr(err)
	}
	if g == nil {
		return nil, ErrNotFound
	}

	playing, err := l.IsPlayer(gameID, actorID)
	if err != nil {
		return nil, err
	}
	if !playing {
		moderating, err := l.IsModerator(gameID, actorID)
		if err != nil {
			return nil, err
		}
		if !moderating {
			return nil, ErrForbidden
		}
	}

	view := &PlayView{
		Game:        summarize(g),
		LivePlayers: []*PlayerStatus{},
		Votes:       []*VoteInfo{},
	}
	if g.CurrentStageID == 0 {
		return view, nil
	}

	current, err := l.store.GetStage(g.CurrentStageID)
	if err != nil {
		return nil, storageErr(err)
	}
	if current == nil {
		return nil, fmt.Errorf("%w: current stage %d missing", ErrTransient, g.CurrentStageID)
	}
	view.Stage = stageInfo(current)

	snapshots, err := l.store.ListStagePlayers(current.ID)
	if err != nil {
		return nil, storageErr(err)
	}
	for _, sp := range snapshots {
		if sp.Alive {
			view.LivePlayers = append(view.LivePlayers, playerStatus(sp))
		}
	}

	votes, err := l.store.ListVotes(current.ID)
	if err != nil {
		return nil, storageErr(err)
	}
	for _, v := range votes {
		view.Votes = append(view.Votes, voteInfo(v))
	}
	return view, nil
}
