package game

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"votelynch/store"
)

// townWithPlayers builds a game moderated by the returned moderator id
// with the given players joined.
func townWithPlayers(t *testing.T, playerNames ...string) (*Lobby, *Engine, store.Store, int64, int64) {
	t.Helper()
	s := newTestStore(t)
	lobby := NewLobby(s, bcrypt.MinCost)
	engine := NewEngine(s)

	mod := newTestUser(t, s, "mod")
	summary, err := lobby.CreateGame("Town1", "pw1", mod)
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}
	for _, name := range playerNames {
		userID := newTestUser(t, s, name)
		if _, err := lobby.JoinGame(summary.ID, userID, "pw1", ""); err != nil {
			t.Fatalf("JoinGame(%s) failed: %v", name, err)
		}
	}
	return lobby, engine, s, summary.ID, mod
}

func TestAdvanceStageAlternatesDayNight(t *testing.T) {
	_, engine, s, gameID, mod := townWithPlayers(t, "bob", "carol")

	for i := 0; i < 5; i++ {
		stage, _, err := engine.AdvanceStage(gameID, mod)
		if err != nil {
			t.Fatalf("advance %d failed: %v", i, err)
		}
		if stage.Index != i {
			t.Errorf("advance %d: expected index %d, got %d", i, i, stage.Index)
		}
		wantDay := i%2 == 0
		if stage.IsDay != wantDay {
			t.Errorf("advance %d: expected isDay=%v, got %v", i, wantDay, stage.IsDay)
		}
	}

	stages, err := s.ListStages(gameID)
	if err != nil {
		t.Fatalf("ListStages failed: %v", err)
	}
	if len(stages) != 5 {
		t.Fatalf("expected 5 stages, got %d", len(stages))
	}
}

func TestAdvanceStageSeedsMembership(t *testing.T) {
	_, engine, s, gameID, mod := townWithPlayers(t, "bob", "carol")

	stage, _, err := engine.AdvanceStage(gameID, mod)
	if err != nil {
		t.Fatalf("AdvanceStage failed: %v", err)
	}

	snapshots, err := s.ListStagePlayers(stage.ID)
	if err != nil {
		t.Fatalf("ListStagePlayers failed: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snapshots))
	}
	for _, sp := range snapshots {
		if !sp.Alive {
			t.Errorf("snapshot %s should start alive", sp.Alias)
		}
	}
}

func TestAdvanceStageCarriesLiveness(t *testing.T) {
	_, engine, s, gameID, mod := townWithPlayers(t, "bob", "carol", "dave")

	first, _, err := engine.AdvanceStage(gameID, mod)
	if err != nil {
		t.Fatalf("AdvanceStage failed: %v", err)
	}

	snapshots, err := s.ListStagePlayers(first.ID)
	if err != nil {
		t.Fatalf("ListStagePlayers failed: %v", err)
	}
	if _, err := engine.Kill(snapshots[0].ID, mod); err != nil {
		t.Fatalf("Kill failed: %v", err)
	}

	second, _, err := engine.AdvanceStage(gameID, mod)
	if err != nil {
		t.Fatalf("AdvanceStage failed: %v", err)
	}

	before, err := s.ListStagePlayers(first.ID)
	if err != nil {
		t.Fatalf("ListStagePlayers failed: %v", err)
	}
	after, err := s.ListStagePlayers(second.ID)
	if err != nil {
		t.Fatalf("ListStagePlayers failed: %v", err)
	}
	if len(after) != len(before) {
		t.Fatalf("expected %d snapshots carried forward, got %d", len(before), len(after))
	}

	liveness := func(sps []*store.StagePlayer) map[int64]bool {
		m := make(map[int64]bool, len(sps))
		for _, sp := range sps {
			m[sp.GamePlayerID] = sp.Alive
		}
		return m
	}
	wantAlive := liveness(before)
	for player, alive := range liveness(after) {
		if wantAlive[player] != alive {
			t.Errorf("player %d: liveness not carried forward (want %v, got %v)", player, wantAlive[player], alive)
		}
	}
}

func TestLateJoinerInvisibleUntilNextStage(t *testing.T) {
	lobby, engine, s, gameID, mod := townWithPlayers(t, "bob")

	first, _, err := engine.AdvanceStage(gameID, mod)
	if err != nil {
		t.Fatalf("AdvanceStage failed: %v", err)
	}

	// Joining after stage creation does not add a snapshot to it.
	eve := newTestUser(t, s, "eve")
	if _, err := lobby.JoinGame(gameID, eve, "pw1", ""); err != nil {
		t.Fatalf("JoinGame failed: %v", err)
	}
	snapshots, err := s.ListStagePlayers(first.ID)
	if err != nil {
		t.Fatalf("ListStagePlayers failed: %v", err)
	}
	if len(snapshots) != 1 {
		t.Errorf("late joiner should not appear in the current stage, got %d snapshots", len(snapshots))
	}

	// The carry-forward copies the previous stage's set, so the late
	// joiner stays invisible until a fresh seed would include them.
	second, _, err := engine.AdvanceStage(gameID, mod)
	if err != nil {
		t.Fatalf("AdvanceStage failed: %v", err)
	}
	snapshots, err = s.ListStagePlayers(second.ID)
	if err != nil {
		t.Fatalf("ListStagePlayers failed: %v", err)
	}
	if len(snapshots) != 1 {
		t.Errorf("carry-forward should copy the prior set only, got %d snapshots", len(snapshots))
	}
}

func TestKillReviveRoundTrip(t *testing.T) {
	_, engine, s, gameID, mod := townWithPlayers(t, "bob")

	stage, _, err := engine.AdvanceStage(gameID, mod)
	if err != nil {
		t.Fatalf("AdvanceStage failed: %v", err)
	}
	snapshots, err := s.ListStagePlayers(stage.ID)
	if err != nil {
		t.Fatalf("ListStagePlayers failed: %v", err)
	}
	snapshotID := snapshots[0].ID

	if _, err := engine.Kill(snapshotID, mod); err != nil {
		t.Fatalf("Kill failed: %v", err)
	}
	// Killing a dead player is a no-op success.
	if _, err := engine.Kill(snapshotID, mod); err != nil {
		t.Errorf("second Kill should succeed, got %v", err)
	}

	sp, err := s.GetStagePlayer(snapshotID)
	if err != nil {
		t.Fatalf("GetStagePlayer failed: %v", err)
	}
	if sp.Alive {
		t.Error("player should be dead after Kill")
	}

	if _, err := engine.Revive(snapshotID, mod); err != nil {
		t.Fatalf("Revive failed: %v", err)
	}
	sp, err = s.GetStagePlayer(snapshotID)
	if err != nil {
		t.Fatalf("GetStagePlayer failed: %v", err)
	}
	if !sp.Alive {
		t.Error("Kill then Revive should restore alive=true")
	}
}

func TestKillPermissions(t *testing.T) {
	_, engine, s, gameID, mod := townWithPlayers(t, "bob")

	stage, _, err := engine.AdvanceStage(gameID, mod)
	if err != nil {
		t.Fatalf("AdvanceStage failed: %v", err)
	}
	snapshots, err := s.ListStagePlayers(stage.ID)
	if err != nil {
		t.Fatalf("ListStagePlayers failed: %v", err)
	}

	outsider := newTestUser(t, s, "outsider")
	if _, err := engine.Kill(snapshots[0].ID, outsider); !errors.Is(err, ErrForbidden) {
		t.Errorf("non-moderator kill should be forbidden, got %v", err)
	}
	if _, err := engine.Kill(99999, mod); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing snapshot should be ErrNotFound, got %v", err)
	}
}

func TestAdvanceStageRequiresModerator(t *testing.T) {
	_, engine, s, gameID, _ := townWithPlayers(t, "bob")

	outsider := newTestUser(t, s, "outsider")
	if _, _, err := engine.AdvanceStage(gameID, outsider); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if _, _, err := engine.AdvanceStage(gameID, 0); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden for unauthenticated caller, got %v", err)
	}

	g, err := s.GetGame(gameID)
	if err != nil {
		t.Fatalf("GetGame failed: %v", err)
	}
	if g.CurrentStageID != 0 {
		t.Error("rejected advance must leave the stage pointer unchanged")
	}
}

func TestAdvanceStageStaleConflict(t *testing.T) {
	_, engine, s, gameID, mod := townWithPlayers(t, "bob")

	if _, _, err := engine.AdvanceStage(gameID, mod); err != nil {
		t.Fatalf("AdvanceStage failed: %v", err)
	}

	// A writer still holding the pre-advance pointer loses the
	// optimistic check and commits nothing.
	if _, err := s.AdvanceStage(gameID, 0, 1, false); !errors.Is(err, store.ErrStale) {
		t.Fatalf("expected store.ErrStale, got %v", err)
	}
	stages, err := s.ListStages(gameID)
	if err != nil {
		t.Fatalf("ListStages failed: %v", err)
	}
	if len(stages) != 1 {
		t.Errorf("losing writer must not leave a stage behind, got %d stages", len(stages))
	}

	// A retry that re-reads the pointer succeeds.
	stage, _, err := engine.AdvanceStage(gameID, mod)
	if err != nil {
		t.Fatalf("retry advance failed: %v", err)
	}
	if stage.Index != 1 || stage.IsDay {
		t.Errorf("expected Stage(1, night), got index=%d isDay=%v", stage.Index, stage.IsDay)
	}
}
