package store

import "errors"

var (
	// ErrDuplicate reports a uniqueness-constraint violation, e.g. a
	// second membership row for the same (game, user) pair.
	ErrDuplicate = errors.New("duplicate row")

	// ErrStale reports a failed optimistic check: the row a writer
	// guarded on changed between read and commit.
	ErrStale = errors.New("stale read")
)

type Store interface {
	CreateUser(username, passwordHash string) (int64, error)
	GetUserByUsername(username string) (*User, error)
	GetUserByID(userID int64) (*User, error)

	CreateGame(name, passwordHash, joinToken string, creatorID int64) (int64, error)
	GetGame(gameID int64) (*Game, error)
	GetGameByJoinToken(token string) (*Game, error)
	SetGamePublished(gameID int64, published bool) error
	SetGameArchived(gameID int64, archived bool) error
	SetGameLocked(gameID int64, locked bool) error
	ListGamesModerating(userID int64) ([]*Game, error)
	ListGamesPlaying(userID int64) ([]*Game, error)
	ListPublishedGames() ([]*Game, error)

	AddModerator(gameID, userID int64) error
	IsModerator(gameID, userID int64) (bool, error)
	AddPlayer(gameID, userID int64, alias string) (int64, error)
	GetPlayer(gameID, userID int64) (*GamePlayer, error)
	ListPlayers(gameID int64) ([]*GamePlayer, error)

	AdvanceStage(gameID, prevStageID int64, newIndex int, isDay bool) (*Stage, error)
	GetStage(stageID int64) (*Stage, error)
	ListStages(gameID int64) ([]*Stage, error)

	GetStagePlayer(stagePlayerID int64) (*StagePlayer, error)
	GetStagePlayerByPlayer(stageID, gamePlayerID int64) (*StagePlayer, error)
	ListStagePlayers(stageID int64) ([]*StagePlayer, error)
	SetStagePlayerAlive(stagePlayerID int64, alive bool) error

	CreateVote(stageID int64, index int, name string) (*Vote, error)
	GetVote(voteID int64) (*Vote, error)
	ListVotes(stageID int64) ([]*Vote, error)
	SetVoteOpen(voteID int64, open bool) error
	SetVotePublished(voteID int64, published bool) error
	UpsertBallot(voteID, gamePlayerID, choiceID int64) error
	GetBallot(voteID, gamePlayerID int64) (*Ballot, error)
	TallyVote(voteID int64) ([]*TallyRow, error)

	Close() error
}

type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    string
}

// Game is one match instance. CurrentStageID is 0 while no stage has
// been created yet; once set it only ever moves to a newer stage.
type Game struct {
	ID             int64
	Name           string
	PasswordHash   string
	JoinToken      string
	CurrentStageID int64
	Archived       bool
	Published      bool
	Locked         bool
	CreatedAt      string
	UpdatedAt      string
}

// GamePlayer is the membership of a user in a game as a player.
type GamePlayer struct {
	ID       int64
	GameID   int64
	UserID   int64
	Alias    string
	Username string
}

// Stage is one day or night turn. CurrentVoteID is 0 while the stage
// has no votes.
type Stage struct {
	ID            int64
	GameID        int64
	Index         int
	IsDay         bool
	CurrentVoteID int64
}

// StagePlayer is the per-stage liveness snapshot of a GamePlayer.
type StagePlayer struct {
	ID           int64
	StageID      int64
	GamePlayerID int64
	Alias        string
	Alive        bool
}

type Vote struct {
	ID        int64
	StageID   int64
	Index     int
	Name      string
	IsOpen    bool
	Archived  bool
	Published bool
	CreatedAt string
	UpdatedAt string
}

// Ballot is one player's recorded choice within one vote.
type Ballot struct {
	VoteID       int64
	GamePlayerID int64
	ChoiceID     int64
	UpdatedAt    string
}

type TallyRow struct {
	ChoiceID int64
	Alias    string
	Count    int
}
