package game

import (
	"errors"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"votelynch/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "votelynch.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestUser(t *testing.T, s store.Store, username string) int64 {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password1"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	id, err := s.CreateUser(username, string(hash))
	if err != nil {
		t.Fatalf("failed to create user %s: %v", username, err)
	}
	return id
}

func newTestLobby(t *testing.T) (*Lobby, store.Store) {
	t.Helper()
	s := newTestStore(t)
	return NewLobby(s, bcrypt.MinCost), s
}

func TestCreateGameValidation(t *testing.T) {
	lobby, s := newTestLobby(t)
	alice := newTestUser(t, s, "alice")

	tests := []struct {
		name     string
		gameName string
		password string
		creator  int64
	}{
		{"empty name", "", "pw1", alice},
		{"empty password", "Town1", "", alice},
		{"unauthenticated creator", "Town1", "pw1", 0},
		{"html-only name", "<script></script>", "pw1", alice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := lobby.CreateGame(tt.gameName, tt.password, tt.creator)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestCreateGameGrantsModerator(t *testing.T) {
	lobby, s := newTestLobby(t)
	alice := newTestUser(t, s, "alice")

	summary, err := lobby.CreateGame("Town1", "pw1", alice)
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}
	if summary.Name != "Town1" {
		t.Errorf("expected name Town1, got %q", summary.Name)
	}
	if summary.Archived || summary.Published || summary.Locked {
		t.Error("new game should have all flags clear")
	}

	ok, err := lobby.IsModerator(summary.ID, alice)
	if err != nil {
		t.Fatalf("IsModerator failed: %v", err)
	}
	if !ok {
		t.Error("creator should moderate the new game")
	}

	playing, err := lobby.IsPlayer(summary.ID, alice)
	if err != nil {
		t.Fatalf("IsPlayer failed: %v", err)
	}
	if playing {
		t.Error("creator should not be a player")
	}
}

func TestJoinGame(t *testing.T) {
	lobby, s := newTestLobby(t)
	alice := newTestUser(t, s, "alice")
	bob := newTestUser(t, s, "bob")

	summary, err := lobby.CreateGame("Town1", "pw1", alice)
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}

	event, err := lobby.JoinGame(summary.ID, bob, "pw1", "Bobby")
	if err != nil {
		t.Fatalf("JoinGame failed: %v", err)
	}
	if event.Type != "player_joined" {
		t.Errorf("expected player_joined event, got %q", event.Type)
	}

	playing, err := lobby.IsPlayer(summary.ID, bob)
	if err != nil {
		t.Fatalf("IsPlayer failed: %v", err)
	}
	if !playing {
		t.Error("bob should be a player after joining")
	}

	players, err := s.ListPlayers(summary.ID)
	if err != nil {
		t.Fatalf("ListPlayers failed: %v", err)
	}
	if len(players) != 1 {
		t.Fatalf("expected 1 player, got %d", len(players))
	}
	if players[0].Alias != "Bobby" {
		t.Errorf("expected alias Bobby, got %q", players[0].Alias)
	}
}

func TestJoinGameWrongPassword(t *testing.T) {
	lobby, s := newTestLobby(t)
	alice := newTestUser(t, s, "alice")
	bob := newTestUser(t, s, "bob")

	summary, err := lobby.CreateGame("Town1", "pw1", alice)
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}

	if _, err := lobby.JoinGame(summary.ID, bob, "wrong", ""); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}

	players, err := s.ListPlayers(summary.ID)
	if err != nil {
		t.Fatalf("ListPlayers failed: %v", err)
	}
	if len(players) != 0 {
		t.Errorf("wrong password must not create a membership row, got %d rows", len(players))
	}
}

func TestJoinGameTwice(t *testing.T) {
	lobby, s := newTestLobby(t)
	alice := newTestUser(t, s, "alice")
	bob := newTestUser(t, s, "bob")

	summary, err := lobby.CreateGame("Town1", "pw1", alice)
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}

	if _, err := lobby.JoinGame(summary.ID, bob, "pw1", ""); err != nil {
		t.Fatalf("first join failed: %v", err)
	}
	if _, err := lobby.JoinGame(summary.ID, bob, "pw1", ""); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation on second join, got %v", err)
	}
}

func TestJoinGameDefaultsAliasToUsername(t *testing.T) {
	lobby, s := newTestLobby(t)
	alice := newTestUser(t, s, "alice")
	bob := newTestUser(t, s, "bob")

	summary, err := lobby.CreateGame("Town1", "pw1", alice)
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}

	if _, err := lobby.JoinGame(summary.ID, bob, "pw1", "  "); err != nil {
		t.Fatalf("JoinGame failed: %v", err)
	}

	players, err := s.ListPlayers(summary.ID)
	if err != nil {
		t.Fatalf("ListPlayers failed: %v", err)
	}
	if len(players) != 1 || players[0].Alias != "bob" {
		t.Errorf("expected alias to default to username bob, got %+v", players)
	}
}

func TestJoinByToken(t *testing.T) {
	lobby, s := newTestLobby(t)
	alice := newTestUser(t, s, "alice")
	bob := newTestUser(t, s, "bob")

	summary, err := lobby.CreateGame("Town1", "pw1", alice)
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}

	view, err := lobby.ManageView(summary.ID, alice)
	if err != nil {
		t.Fatalf("ManageView failed: %v", err)
	}
	if view.JoinToken == "" {
		t.Fatal("manage view should expose the join token")
	}

	if _, err := lobby.JoinByToken(view.JoinToken, bob, "pw1", ""); err != nil {
		t.Fatalf("JoinByToken failed: %v", err)
	}
	if _, err := lobby.JoinByToken("no-such-token", bob, "pw1", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown token, got %v", err)
	}
}

func TestJoinLockedGame(t *testing.T) {
	lobby, s := newTestLobby(t)
	alice := newTestUser(t, s, "alice")
	bob := newTestUser(t, s, "bob")

	summary, err := lobby.CreateGame("Town1", "pw1", alice)
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}
	if err := lobby.SetLocked(summary.ID, alice, true); err != nil {
		t.Fatalf("SetLocked failed: %v", err)
	}

	if _, err := lobby.JoinGame(summary.ID, bob, "pw1", ""); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState for locked game, got %v", err)
	}
}

func TestLanding(t *testing.T) {
	lobby, s := newTestLobby(t)
	alice := newTestUser(t, s, "alice")
	bob := newTestUser(t, s, "bob")

	town, err := lobby.CreateGame("Town1", "pw1", alice)
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}
	village, err := lobby.CreateGame("Village", "pw2", alice)
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}
	if _, err := lobby.JoinGame(town.ID, bob, "pw1", ""); err != nil {
		t.Fatalf("JoinGame failed: %v", err)
	}

	view, err := lobby.Landing(alice, false)
	if err != nil {
		t.Fatalf("Landing failed: %v", err)
	}
	if len(view.GamesModerating) != 2 {
		t.Errorf("alice should moderate 2 games, got %d", len(view.GamesModerating))
	}
	if len(view.GamesPlaying) != 0 {
		t.Errorf("alice should play 0 games, got %d", len(view.GamesPlaying))
	}

	view, err = lobby.Landing(bob, false)
	if err != nil {
		t.Fatalf("Landing failed: %v", err)
	}
	if len(view.GamesPlaying) != 1 {
		t.Errorf("bob should play 1 game, got %d", len(view.GamesPlaying))
	}

	// Archived games disappear from the default view and come back
	// with the archive switch.
	if err := lobby.SetArchived(village.ID, alice, true); err != nil {
		t.Fatalf("SetArchived failed: %v", err)
	}
	view, err = lobby.Landing(alice, false)
	if err != nil {
		t.Fatalf("Landing failed: %v", err)
	}
	if len(view.GamesModerating) != 1 {
		t.Errorf("archived game should be hidden, got %d games", len(view.GamesModerating))
	}
	view, err = lobby.Landing(alice, true)
	if err != nil {
		t.Fatalf("Landing failed: %v", err)
	}
	if len(view.GamesModerating) != 2 {
		t.Errorf("archive view should show 2 games, got %d", len(view.GamesModerating))
	}
}

func TestLandingUnauthenticated(t *testing.T) {
	lobby, _ := newTestLobby(t)

	view, err := lobby.Landing(0, false)
	if err != nil {
		t.Fatalf("Landing failed: %v", err)
	}
	if len(view.GamesPlaying) != 0 || len(view.GamesModerating) != 0 {
		t.Error("unauthenticated landing should be empty, not an error")
	}
}

func TestAddModerator(t *testing.T) {
	lobby, s := newTestLobby(t)
	alice := newTestUser(t, s, "alice")
	carol := newTestUser(t, s, "carol")
	bob := newTestUser(t, s, "bob")

	summary, err := lobby.CreateGame("Town1", "pw1", alice)
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}

	if _, err := lobby.AddModerator(summary.ID, bob, "carol"); !errors.Is(err, ErrForbidden) {
		t.Errorf("non-moderator grant should be forbidden, got %v", err)
	}

	if _, err := lobby.AddModerator(summary.ID, alice, "carol"); err != nil {
		t.Fatalf("AddModerator failed: %v", err)
	}
	ok, err := lobby.IsModerator(summary.ID, carol)
	if err != nil {
		t.Fatalf("IsModerator failed: %v", err)
	}
	if !ok {
		t.Error("carol should moderate after the grant")
	}

	// Granting again is a no-op, not an error.
	if _, err := lobby.AddModerator(summary.ID, alice, "carol"); err != nil {
		t.Errorf("repeated grant should succeed, got %v", err)
	}

	if _, err := lobby.AddModerator(summary.ID, alice, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown username should be ErrNotFound, got %v", err)
	}
}

func TestManageViewRequiresModerator(t *testing.T) {
	lobby, s := newTestLobby(t)
	alice := newTestUser(t, s, "alice")
	bob := newTestUser(t, s, "bob")

	summary, err := lobby.CreateGame("Town1", "pw1", alice)
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}
	if _, err := lobby.JoinGame(summary.ID, bob, "pw1", ""); err != nil {
		t.Fatalf("JoinGame failed: %v", err)
	}

	if _, err := lobby.ManageView(summary.ID, bob); !errors.Is(err, ErrForbidden) {
		t.Errorf("player should not see manage view, got %v", err)
	}
	if _, err := lobby.ManageView(summary.ID, 0); !errors.Is(err, ErrForbidden) {
		t.Errorf("unauthenticated should not see manage view, got %v", err)
	}
	if _, err := lobby.ManageView(99999, alice); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing game should be ErrNotFound, got %v", err)
	}
}

func TestPlayViewMembership(t *testing.T) {
	lobby, s := newTestLobby(t)
	alice := newTestUser(t, s, "alice")
	bob := newTestUser(t, s, "bob")
	carol := newTestUser(t, s, "carol")

	summary, err := lobby.CreateGame("Town1", "pw1", alice)
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}
	if _, err := lobby.JoinGame(summary.ID, bob, "pw1", ""); err != nil {
		t.Fatalf("JoinGame failed: %v", err)
	}

	if _, err := lobby.PlayView(summary.ID, bob); err != nil {
		t.Errorf("player should see play view, got %v", err)
	}
	if _, err := lobby.PlayView(summary.ID, alice); err != nil {
		t.Errorf("moderator should see play view, got %v", err)
	}
	if _, err := lobby.PlayView(summary.ID, carol); !errors.Is(err, ErrForbidden) {
		t.Errorf("non-member should be forbidden, got %v", err)
	}
}
