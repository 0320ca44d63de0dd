package store

import (
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "votelynch.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateUserDuplicate(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.CreateUser("alice", "hash"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if _, err := s.CreateUser("alice", "other"); !errors.Is(err, ErrDuplicate) {
		t.Errorf("second CreateUser = %v, want ErrDuplicate", err)
	}
}

func TestLookupsReturnNilForMissingRows(t *testing.T) {
	s := newTestStore(t)

	user, err := s.GetUserByUsername("nobody")
	if err != nil || user != nil {
		t.Errorf("GetUserByUsername(nobody) = %v, %v, want nil, nil", user, err)
	}
	g, err := s.GetGameByJoinToken("no-such-token")
	if err != nil || g != nil {
		t.Errorf("GetGameByJoinToken = %v, %v, want nil, nil", g, err)
	}
	v, err := s.GetVote(99)
	if err != nil || v != nil {
		t.Errorf("GetVote(99) = %v, %v, want nil, nil", v, err)
	}
}

func TestAddPlayerDuplicate(t *testing.T) {
	s := newTestStore(t)

	modID, _ := s.CreateUser("alice", "hash")
	userID, _ := s.CreateUser("bob", "hash")
	gameID, err := s.CreateGame("town", "hash", "token-1", modID)
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}

	if _, err := s.AddPlayer(gameID, userID, "bob"); err != nil {
		t.Fatalf("AddPlayer failed: %v", err)
	}
	if _, err := s.AddPlayer(gameID, userID, "bob again"); !errors.Is(err, ErrDuplicate) {
		t.Errorf("second AddPlayer = %v, want ErrDuplicate", err)
	}
}

func TestCreateGameGrantsCreatorModerator(t *testing.T) {
	s := newTestStore(t)

	modID, _ := s.CreateUser("alice", "hash")
	gameID, err := s.CreateGame("town", "hash", "token-1", modID)
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}

	ok, err := s.IsModerator(gameID, modID)
	if err != nil {
		t.Fatalf("IsModerator failed: %v", err)
	}
	if !ok {
		t.Error("creator should be a moderator")
	}
}

func TestAdvanceStagePointerGuard(t *testing.T) {
	s := newTestStore(t)

	modID, _ := s.CreateUser("alice", "hash")
	gameID, _ := s.CreateGame("town", "hash", "token-1", modID)

	first, err := s.AdvanceStage(gameID, 0, 0, true)
	if err != nil {
		t.Fatalf("first AdvanceStage failed: %v", err)
	}

	// A writer still holding the pre-advance pointer loses.
	if _, err := s.AdvanceStage(gameID, 0, 0, true); !errors.Is(err, ErrStale) {
		t.Errorf("stale AdvanceStage = %v, want ErrStale", err)
	}

	second, err := s.AdvanceStage(gameID, first.ID, 1, false)
	if err != nil {
		t.Fatalf("second AdvanceStage failed: %v", err)
	}
	g, err := s.GetGame(gameID)
	if err != nil {
		t.Fatalf("GetGame failed: %v", err)
	}
	if g.CurrentStageID != second.ID {
		t.Errorf("game points at stage %d, want %d", g.CurrentStageID, second.ID)
	}
}

func TestBallotUpsertAndTally(t *testing.T) {
	s := newTestStore(t)

	modID, _ := s.CreateUser("alice", "hash")
	gameID, _ := s.CreateGame("town", "hash", "token-1", modID)

	var playerIDs []int64
	for _, name := range []string{"bob", "carol", "dave"} {
		uid, _ := s.CreateUser(name, "hash")
		pid, err := s.AddPlayer(gameID, uid, name)
		if err != nil {
			t.Fatalf("AddPlayer(%s) failed: %v", name, err)
		}
		playerIDs = append(playerIDs, pid)
	}

	stage, err := s.AdvanceStage(gameID, 0, 0, true)
	if err != nil {
		t.Fatalf("AdvanceStage failed: %v", err)
	}
	snaps, err := s.ListStagePlayers(stage.ID)
	if err != nil {
		t.Fatalf("ListStagePlayers failed: %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(snaps))
	}
	snapByAlias := make(map[string]int64, len(snaps))
	for _, sp := range snaps {
		snapByAlias[sp.Alias] = sp.ID
	}

	vote, err := s.CreateVote(stage.ID, 0, "lynch")
	if err != nil {
		t.Fatalf("CreateVote failed: %v", err)
	}

	// bob and carol vote dave, dave votes bob, then carol flips to bob.
	for _, b := range []struct{ voter, choice int64 }{
		{playerIDs[0], snapByAlias["dave"]},
		{playerIDs[1], snapByAlias["dave"]},
		{playerIDs[2], snapByAlias["bob"]},
		{playerIDs[1], snapByAlias["bob"]},
	} {
		if err := s.UpsertBallot(vote.ID, b.voter, b.choice); err != nil {
			t.Fatalf("UpsertBallot failed: %v", err)
		}
	}

	ballot, err := s.GetBallot(vote.ID, playerIDs[1])
	if err != nil {
		t.Fatalf("GetBallot failed: %v", err)
	}
	if ballot == nil || ballot.ChoiceID != snapByAlias["bob"] {
		t.Errorf("carol's ballot should point at bob, got %+v", ballot)
	}

	tally, err := s.TallyVote(vote.ID)
	if err != nil {
		t.Fatalf("TallyVote failed: %v", err)
	}
	counts := make(map[string]int, len(tally))
	for _, row := range tally {
		counts[row.Alias] = row.Count
	}
	if counts["bob"] != 2 || counts["dave"] != 1 {
		t.Errorf("tally = %v, want bob:2 dave:1", counts)
	}
}
