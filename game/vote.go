package game

import (
	"fmt"

	"votelynch/store"
)

// CreateVote opens a new poll on the game's current stage. The index
// continues from the stage's current vote; the store assigns it
// transactionally so racing creates cannot collide. A new vote starts
// closed and must be opened explicitly.
func (e *Engine) CreateVote(gameID, actorID int64, name string) (*store.Vote, *Event, error) {
	g, err := requireModerator(e.store, gameID, actorID)
	if err != nil {
		return nil, nil, err
	}
	if g.CurrentStageID == 0 {
		return nil, nil, fmt.Errorf("%w: game has no stage yet", ErrInvalidState)
	}

	stage, err := e.store.GetStage(g.CurrentStageID)
	if err != nil {
		return nil, nil, storageErr(err)
	}
	if stage == nil {
		return nil, nil, fmt.Errorf("%w: current stage %d missing", ErrTransient, g.CurrentStageID)
	}

	index := 0
	if stage.CurrentVoteID != 0 {
		current, err := e.store.GetVote(stage.CurrentVoteID)
		if err != nil {
			return nil, nil, storageErr(err)
		}
		if current != nil {
			index = current.Index + 1
		}
	}

	vote, err := e.store.CreateVote(stage.ID, index, sanitize(name))
	if err != nil {
		return nil, nil, raceErr(err)
	}

	return vote, &Event{
		Type:   "vote_created",
		GameID: g.ID,
		Payload: VoteChangedPayload{
			VoteID: vote.ID,
			State:  "created",
		},
	}, nil
}

// OpenVote lets ballots in. Idempotent.
func (e *Engine) OpenVote(voteID, actorID int64) (*Event, error) {
	return e.setVoteState(voteID, actorID, "opened")
}

// CloseVote stops ballots. Idempotent; the vote can be reopened.
func (e *Engine) CloseVote(voteID, actorID int64) (*Event, error) {
	return e.setVoteState(voteID, actorID, "closed")
}

// PublishVote makes the tally visible to players once the vote is
// closed.
func (e *Engine) PublishVote(voteID, actorID int64) (*Event, error) {
	return e.setVoteState(voteID, actorID, "published")
}

func (e *Engine) setVoteState(voteID, actorID int64, state string) (*Event, error) {
	vote, stage, err := e.resolveVote(voteID)
	if err != nil {
		return nil, err
	}
	if _, err := requireModerator(e.store, stage.GameID, actorID); err != nil {
		return nil, err
	}

	switch state {
	case "opened":
		err = e.store.SetVoteOpen(voteID, true)
	case "closed":
		err = e.store.SetVoteOpen(voteID, false)
	case "published":
		err = e.store.SetVotePublished(voteID, true)
	}
	if err != nil {
		return nil, storageErr(err)
	}

	return &Event{
		Type:   "vote_" + state,
		GameID: stage.GameID,
		Payload: VoteChangedPayload{
			VoteID: vote.ID,
			State:  state,
		},
	}, nil
}

// CastVote records the caller's ballot. The vote must be open, the
// caller must be a live player of the vote's stage, and the chosen
// target must be a live snapshot of that same stage. Re-voting while
// the vote is open overwrites the earlier ballot.
func (e *Engine) CastVote(voteID, actorID, choiceID int64) (*Event, error) {
	vote, stage, err := e.resolveVote(voteID)
	if err != nil {
		return nil, err
	}
	if !vote.IsOpen {
		return nil, ErrForbidden
	}

	voter, err := liveVoter(e.store, stage, actorID)
	if err != nil {
		return nil, err
	}

	choice, err := e.store.GetStagePlayer(choiceID)
	if err != nil {
		return nil, storageErr(err)
	}
	if choice == nil || choice.StageID != stage.ID || !choice.Alive {
		return nil, fmt.Errorf("%w: choice is not a live player of this stage", ErrValidation)
	}

	if err := e.store.UpsertBallot(vote.ID, voter.GamePlayerID, choice.ID); err != nil {
		return nil, storageErr(err)
	}

	tally, err := e.store.TallyVote(vote.ID)
	if err != nil {
		return nil, storageErr(err)
	}
	ballots := 0
	for _, row := range tally {
		ballots += row.Count
	}

	return &Event{
		Type:   "ballot_cast",
		GameID: stage.GameID,
		Payload: BallotCastPayload{
			VoteID:  vote.ID,
			Ballots: ballots,
		},
	}, nil
}

// Tally aggregates ballots by chosen snapshot. Read-only; no state
// transition ever depends on it.
func (e *Engine) Tally(voteID int64) ([]*TallyEntry, error) {
	vote, err := e.store.GetVote(voteID)
	if err != nil {
		return nil, storageErr(err)
	}
	if vote == nil {
		return nil, ErrNotFound
	}

	rows, err := e.store.TallyVote(voteID)
	if err != nil {
		return nil, storageErr(err)
	}
	tally := make([]*TallyEntry, 0, len(rows))
	for _, row := range rows {
		tally = append(tally, &TallyEntry{
			SnapshotID: row.ChoiceID,
			Alias:      row.Alias,
			Count:      row.Count,
		})
	}
	return tally, nil
}

// VoteView builds the vote page. Moderators always see the tally;
// players see the live choices and their own ballot, plus the tally
// once the vote is closed and published.
func (e *Engine) VoteView(voteID, actorID int64) (*VoteView, error) {
	vote, stage, err := e.resolveVote(voteID)
	if err != nil {
		return nil, err
	}

	moderating := false
	if actorID != 0 {
		moderating, err = e.store.IsModerator(stage.GameID, actorID)
		if err != nil {
			return nil, storageErr(err)
		}
	}

	var player *store.GamePlayer
	if !moderating {
		if actorID == 0 {
			return nil, ErrForbidden
		}
		player, err = e.store.GetPlayer(stage.GameID, actorID)
		if err != nil {
			return nil, storageErr(err)
		}
		if player == nil {
			return nil, ErrForbidden
		}
	}

	view := &VoteView{
		Vote:    voteInfo(vote),
		Choices: []*PlayerStatus{},
	}

	snapshots, err := e.store.ListStagePlayers(stage.ID)
	if err != nil {
		return nil, storageErr(err)
	}
	for _, sp := range snapshots {
		if sp.Alive {
			view.Choices = append(view.Choices, playerStatus(sp))
		}
	}

	if moderating || (!vote.IsOpen && vote.Published) {
		view.Tally, err = e.Tally(voteID)
		if err != nil {
			return nil, err
		}
	}

	if player != nil {
		ballot, err := e.store.GetBallot(vote.ID, player.ID)
		if err != nil {
			return nil, storageErr(err)
		}
		if ballot != nil {
			view.OwnChoice = ballot.ChoiceID
		}
	}
	return view, nil
}

func (e *Engine) resolveVote(voteID int64) (*store.Vote, *store.Stage, error) {
	vote, err := e.store.GetVote(voteID)
	if err != nil {
		return nil, nil, storageErr(err)
	}
	if vote == nil {
		return nil, nil, ErrNotFound
	}
	stage, err := e.store.GetStage(vote.StageID)
	if err != nil {
		return nil, nil, storageErr(err)
	}
	if stage == nil {
		return nil, nil, ErrNotFound
	}
	return vote, stage, nil
}
