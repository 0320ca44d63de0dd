package game

import "votelynch/store"

// The access checks fail closed: an unauthenticated caller, a missing
// game, and a missing grant all terminate the operation before any
// state is touched.

func requireModerator(s store.Store, gameID, userID int64) (*store.Game, error) {
	g, err := s.GetGame(gameID)
	if err != nil {
		return nil, storageErr(err)
	}
	if g == nil {
		return nil, ErrNotFound
	}
	if userID == 0 {
		return nil, ErrForbidden
	}
	ok, err := s.IsModerator(gameID, userID)
	if err != nil {
		return nil, storageErr(err)
	}
	if !ok {
		return nil, ErrForbidden
	}
	return g, nil
}

// liveVoter resolves the caller's liveness snapshot in the given stage.
// Non-members, members without a snapshot in this stage, and dead
// players are all turned away identically.
func liveVoter(s store.Store, stage *store.Stage, userID int64) (*store.StagePlayer, error) {
	if userID == 0 {
		return nil, ErrForbidden
	}
	player, err := s.GetPlayer(stage.GameID, userID)
	if err != nil {
		return nil, storageErr(err)
	}
	if player == nil {
		return nil, ErrForbidden
	}
	snapshot, err := s.GetStagePlayerByPlayer(stage.ID, player.ID)
	if err != nil {
		return nil, storageErr(err)
	}
	if snapshot == nil || !snapshot.Alive {
		return nil, ErrForbidden
	}
	return snapshot, nil
}
