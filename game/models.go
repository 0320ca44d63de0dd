package game

import (
	"time"

	"github.com/dustin/go-humanize"
)

type GameSummary struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Published  bool   `json:"published"`
	Archived   bool   `json:"archived"`
	Locked     bool   `json:"locked"`
	HasStage   bool   `json:"hasStage"`
	Created    string `json:"created"`
	CreatedAgo string `json:"createdAgo"`
	UpdatedAgo string `json:"updatedAgo"`
}

type StageInfo struct {
	ID            int64 `json:"id"`
	Index         int   `json:"index"`
	IsDay         bool  `json:"isDay"`
	CurrentVoteID int64 `json:"currentVoteId,omitempty"`
}

// PlayerStatus is one liveness snapshot as shown to moderators and
// players. SnapshotID is what kill/revive and ballots reference.
type PlayerStatus struct {
	SnapshotID int64  `json:"snapshotId"`
	PlayerID   int64  `json:"playerId"`
	Alias      string `json:"alias"`
	Alive      bool   `json:"alive"`
}

type VoteInfo struct {
	ID         int64  `json:"id"`
	Index      int    `json:"index"`
	Name       string `json:"name"`
	IsOpen     bool   `json:"isOpen"`
	Published  bool   `json:"published"`
	CreatedAgo string `json:"createdAgo"`
}

type TallyEntry struct {
	SnapshotID int64  `json:"snapshotId"`
	Alias      string `json:"alias"`
	Count      int    `json:"count"`
}

// LandingView backs the index page: the caller's games in both roles.
type LandingView struct {
	GamesPlaying    []*GameSummary `json:"gamesPlaying"`
	GamesModerating []*GameSummary `json:"gamesModerating"`
	Archive         bool           `json:"archive"`
}

// ManageView backs the moderator page for one game.
type ManageView struct {
	Game         *GameSummary    `json:"game"`
	JoinToken    string          `json:"joinToken"`
	Stages       []*StageInfo    `json:"stages"`
	CurrentStage *StageInfo      `json:"currentStage,omitempty"`
	Votes        []*VoteInfo     `json:"votes"`
	StagePlayers []*PlayerStatus `json:"stagePlayers"`
}

// PlayView backs the player page: the current stage, who is alive, and
// the stage's votes.
type PlayView struct {
	Game        *GameSummary    `json:"game"`
	Stage       *StageInfo      `json:"stage,omitempty"`
	LivePlayers []*PlayerStatus `json:"livePlayers"`
	Votes       []*VoteInfo     `json:"votes"`
}

// VoteView backs the vote page. Choices are the targets a ballot may
// name; Tally is nil until the viewer is allowed to see results.
type VoteView struct {
	Vote      *VoteInfo       `json:"vote"`
	Choices   []*PlayerStatus `json:"choices"`
	Tally     []*TallyEntry   `json:"tally,omitempty"`
	OwnChoice int64           `json:"ownChoice,omitempty"`
}

type Event struct {
	Type    string      `json:"type"`
	GameID  int64       `json:"gameId"`
	Payload interface{} `json:"payload"`
}

type PlayerJoinedPayload struct {
	PlayerID int64  `json:"playerId"`
	Alias    string `json:"alias"`
}

type StageAdvancedPayload struct {
	StageID int64 `json:"stageId"`
	Index   int   `json:"index"`
	IsDay   bool  `json:"isDay"`
}

type LivenessChangedPayload struct {
	SnapshotID int64 `json:"snapshotId"`
	Alive      bool  `json:"alive"`
}

type VoteChangedPayload struct {
	VoteID int64  `json:"voteId"`
	State  string `json:"state"`
}

type BallotCastPayload struct {
	VoteID  int64 `json:"voteId"`
	Ballots int   `json:"ballots"`
}

// sqliteTime is the layout of DATETIME values as sqlite stores them.
const sqliteTime = "2006-01-02 15:04:05"

func ago(ts string) string {
	t, err := time.Parse(sqliteTime, ts)
	if err != nil {
		return ts
	}
	return humanize.Time(t)
}
