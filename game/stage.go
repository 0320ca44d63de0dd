package game

import (
	"fmt"

	"votelynch/store"
)

// Engine owns the per-game state machines: stage advancement, the
// liveness ledger, and the vote lifecycle. Every operation reads fresh
// state from the store and checks access before mutating anything.
type Engine struct {
	store store.Store
}

func NewEngine(s store.Store) *Engine {
	return &Engine{store: s}
}

// AdvanceStage moves a game to its next stage. Stage 0 is a day and
// seeds one alive snapshot per current member; later stages alternate
// day/night and carry each snapshot's liveness forward unchanged. The
// store performs the stage insert, the snapshot copy, and the pointer
// move in a single transaction guarded on the stage pointer read here,
// so two racing advances cannot both fork off the same predecessor.
func (e *Engine) AdvanceStage(gameID, actorID int64) (*store.Stage, *Event, error) {
	g, err := requireModerator(e.store, gameID, actorID)
	if err != nil {
		return nil, nil, err
	}

	newIndex := 0
	isDay := true
	if g.CurrentStageID != 0 {
		prev, err := e.store.GetStage(g.CurrentStageID)
		if err != nil {
			return nil, nil, storageErr(err)
		}
		if prev == nil {
			return nil, nil, fmt.Errorf("%w: current stage %d missing", ErrTransient, g.CurrentStageID)
		}
		newIndex = prev.Index + 1
		isDay = !prev.IsDay
	}

	stage, err := e.store.AdvanceStage(gameID, g.CurrentStageID, newIndex, isDay)
	if err != nil {
		return nil, nil, raceErr(err)
	}

	return stage, &Event{
		Type:   "stage_advanced",
		GameID: gameID,
		Payload: StageAdvancedPayload{
			StageID: stage.ID,
			Index:   stage.Index,
			IsDay:   stage.IsDay,
		},
	}, nil
}

// Kill marks a snapshot dead. Killing an already-dead player succeeds
// without effect.
func (e *Engine) Kill(snapshotID, actorID int64) (*Event, error) {
	return e.setAlive(snapshotID, actorID, false)
}

// Revive marks a snapshot alive again; the inverse of Kill and equally
// idempotent.
func (e *Engine) Revive(snapshotID, actorID int64) (*Event, error) {
	return e.setAlive(snapshotID, actorID, true)
}

func (e *Engine) setAlive(snapshotID, actorID int64, alive bool) (*Event, error) {
	snapshot, err := e.store.GetStagePlayer(snapshotID)
	if err != nil {
		return nil, storageErr(err)
	}
	if snapshot == nil {
		return nil, ErrNotFound
	}

	stage, err := e.store.GetStage(snapshot.StageID)
	if err != nil {
		return nil, storageErr(err)
	}
	if stage == nil {
		return nil, ErrNotFound
	}
	if _, err := requireModerator(e.store, stage.GameID, actorID); err != nil {
		return nil, err
	}

	if err := e.store.SetStagePlayerAlive(snapshotID, alive); err != nil {
		return nil, storageErr(err)
	}

	eventType := "player_killed"
	if alive {
		eventType = "player_revived"
	}
	return &Event{
		Type:   eventType,
		GameID: stage.GameID,
		Payload: LivenessChangedPayload{
			SnapshotID: snapshotID,
			Alive:      alive,
		},
	}, nil
}
