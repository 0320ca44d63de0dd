package store

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func boolVal(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLiteStore) CreateUser(username, passwordHash string) (int64, error) {
	result, err := s.db.Exec(
		"INSERT INTO users (username, password_hash) VALUES (?, ?)",
		username, passwordHash,
	)
	if isUniqueViolation(err) {
		return 0, ErrDuplicate
	}
	if err != nil {
		return 0, fmt.Errorf("failed to create user: %w", err)
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) GetUserByUsername(username string) (*User, error) {
	user := &User{}
	err := s.db.QueryRow(
		"SELECT id, username, password_hash, created_at FROM users WHERE username = ?",
		username,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (s *SQLiteStore) GetUserByID(userID int64) (*User, error) {
	user := &User{}
	err := s.db.QueryRow(
		"SELECT id, username, password_hash, created_at FROM users WHERE id = ?",
		userID,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// CreateGame inserts the game and the creator's moderator grant in one
// transaction, so a game is never visible without at least one moderator.
func (s *SQLiteStore) CreateGame(name, passwordHash, joinToken string, creatorID int64) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		"INSERT INTO games (name, password_hash, join_token) VALUES (?, ?, ?)",
		name, passwordHash, joinToken,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create game: %w", err)
	}
	gameID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read game id: %w", err)
	}

	if _, err := tx.Exec(
		"INSERT INTO game_moderators (game_id, user_id) VALUES (?, ?)",
		gameID, creatorID,
	); err != nil {
		return 0, fmt.Errorf("failed to grant moderator: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return gameID, nil
}

const gameColumns = `id, name, password_hash, join_token, COALESCE(current_stage_id, 0),
	archived, published, locked, created_at, updated_at`

const gameColumnsG = `g.id, g.name, g.password_hash, g.join_token, COALESCE(g.current_stage_id, 0),
	g.archived, g.published, g.locked, g.created_at, g.updated_at`

func (s *SQLiteStore) scanGame(row *sql.Row) (*Game, error) {
	game := &Game{}
	var archived, published, locked int
	err := row.Scan(&game.ID, &game.Name, &game.PasswordHash, &game.JoinToken,
		&game.CurrentStageID, &archived, &published, &locked,
		&game.CreatedAt, &game.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	game.Archived = archived == 1
	game.Published = published == 1
	game.Locked = locked == 1
	return game, nil
}

func (s *SQLiteStore) GetGame(gameID int64) (*Game, error) {
	return s.scanGame(s.db.QueryRow(
		"SELECT "+gameColumns+" FROM games WHERE id = ?", gameID,
	))
}

func (s *SQLiteStore) GetGameByJoinToken(token string) (*Game, error) {
	return s.scanGame(s.db.QueryRow(
		"SELECT "+gameColumns+" FROM games WHERE join_token = ?", token,
	))
}

func (s *SQLiteStore) setGameFlag(column string, gameID int64, value bool) error {
	_, err := s.db.Exec(
		"UPDATE games SET "+column+" = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		boolVal(value), gameID,
	)
	if err != nil {
		return fmt.Errorf("failed to update game %s: %w", column, err)
	}
	return nil
}

func (s *SQLiteStore) SetGamePublished(gameID int64, published bool) error {
	return s.setGameFlag("published", gameID, published)
}

func (s *SQLiteStore) SetGameArchived(gameID int64, archived bool) error {
	return s.setGameFlag("archived", gameID, archived)
}

func (s *SQLiteStore) SetGameLocked(gameID int64, locked bool) error {
	return s.setGameFlag("locked", gameID, locked)
}

func (s *SQLiteStore) listGames(query string, args ...interface{}) ([]*Game, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	defer rows.Close()

	var games []*Game
	for rows.Next() {
		game := &Game{}
		var archived, published, locked int
		if err := rows.Scan(&game.ID, &game.Name, &game.PasswordHash, &game.JoinToken,
			&game.CurrentStageID, &archived, &published, &locked,
			&game.CreatedAt, &game.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		game.Archived = archived == 1
		game.Published = published == 1
		game.Locked = locked == 1
		games = append(games, game)
	}
	return games, rows.Err()
}

func (s *SQLiteStore) ListGamesModerating(userID int64) ([]*Game, error) {
	return s.listGames(`
		SELECT `+gameColumnsG+`
		FROM games g
		JOIN game_moderators gm ON gm.game_id = g.id
		WHERE gm.user_id = ?
		ORDER BY g.created_at DESC
	`, userID)
}

func (s *SQLiteStore) ListGamesPlaying(userID int64) ([]*Game, error) {
	return s.listGames(`
		SELECT `+gameColumnsG+`
		FROM games g
		JOIN game_players gp ON gp.game_id = g.id
		WHERE gp.user_id = ?
		ORDER BY g.created_at DESC
	`, userID)
}

func (s *SQLiteStore) ListPublishedGames() ([]*Game, error) {
	return s.listGames(
		"SELECT " + gameColumns + " FROM games WHERE published = 1 AND archived = 0 ORDER BY created_at DESC",
	)
}

func (s *SQLiteStore) AddModerator(gameID, userID int64) error {
	_, err := s.db.Exec(
		"INSERT INTO game_moderators (game_id, user_id) VALUES (?, ?) ON CONFLICT DO NOTHING",
		gameID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to add moderator: %w", err)
	}
	return nil
}

func (s *SQLiteStore) IsModerator(gameID, userID int64) (bool, error) {
	var n int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM game_moderators WHERE game_id = ? AND user_id = ?",
		gameID, userID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check moderator: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) AddPlayer(gameID, userID int64, alias string) (int64, error) {
	result, err := s.db.Exec(
		"INSERT INTO game_players (game_id, user_id, alias) VALUES (?, ?, ?)",
		gameID, userID, alias,
	)
	if isUniqueViolation(err) {
		return 0, ErrDuplicate
	}
	if err != nil {
		return 0, fmt.Errorf("failed to add player: %w", err)
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) GetPlayer(gameID, userID int64) (*GamePlayer, error) {
	player := &GamePlayer{}
	err := s.db.QueryRow(`
		SELECT gp.id, gp.game_id, gp.user_id, gp.alias, u.username
		FROM game_players gp
		JOIN users u ON gp.user_id = u.id
		WHERE gp.game_id = ? AND gp.user_id = ?
	`, gameID, userID).Scan(&player.ID, &player.GameID, &player.UserID, &player.Alias, &player.Username)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	return player, nil
}

func (s *SQLiteStore) ListPlayers(gameID int64) ([]*GamePlayer, error) {
	rows, err := s.db.Query(`
		SELECT gp.id, gp.game_id, gp.user_id, gp.alias, u.username
		FROM game_players gp
		JOIN users u ON gp.user_id = u.id
		WHERE gp.game_id = ?
		ORDER BY gp.id
	`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	defer rows.Close()

	var players []*GamePlayer
	for rows.Next() {
		player := &GamePlayer{}
		if err := rows.Scan(&player.ID, &player.GameID, &player.UserID, &player.Alias, &player.Username); err != nil {
			return nil, fmt.Errorf("failed to scan player: %w", err)
		}
		players = append(players, player)
	}
	return players, rows.Err()
}

// AdvanceStage creates the next stage, copies the liveness snapshots
// onto it, and moves the game's current-stage pointer, all in one
// transaction. The pointer update is guarded on prevStageID: if another
// writer advanced the game in the meantime, nothing is committed and
// ErrStale is returned.
//
// With prevStageID == 0 the snapshots are seeded from the game's
// membership with everyone alive; otherwise they are copied verbatim
// from the previous stage.
func (s *SQLiteStore) AdvanceStage(gameID, prevStageID int64, newIndex int, isDay bool) (*Stage, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		"INSERT INTO stages (game_id, idx, is_day) VALUES (?, ?, ?)",
		gameID, newIndex, boolVal(isDay),
	)
	if isUniqueViolation(err) {
		// Another writer already created a stage with this index.
		return nil, ErrStale
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create stage: %w", err)
	}
	stageID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read stage id: %w", err)
	}

	if prevStageID == 0 {
		_, err = tx.Exec(`
			INSERT INTO stage_players (stage_id, game_player_id, alive)
			SELECT ?, id, 1 FROM game_players WHERE game_id = ?
		`, stageID, gameID)
	} else {
		_, err = tx.Exec(`
			INSERT INTO stage_players (stage_id, game_player_id, alive)
			SELECT ?, game_player_id, alive FROM stage_players WHERE stage_id = ?
		`, stageID, prevStageID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to copy stage players: %w", err)
	}

	result, err = tx.Exec(`
		UPDATE games SET current_stage_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND COALESCE(current_stage_id, 0) = ?
	`, stageID, gameID, prevStageID)
	if err != nil {
		return nil, fmt.Errorf("failed to update current stage: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return nil, ErrStale
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &Stage{ID: stageID, GameID: gameID, Index: newIndex, IsDay: isDay}, nil
}

func (s *SQLiteStore) GetStage(stageID int64) (*Stage, error) {
	stage := &Stage{}
	var isDay int
	err := s.db.QueryRow(
		"SELECT id, game_id, idx, is_day, COALESCE(current_vote_id, 0) FROM stages WHERE id = ?",
		stageID,
	).Scan(&stage.ID, &stage.GameID, &stage.Index, &isDay, &stage.CurrentVoteID)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stage: %w", err)
	}
	stage.IsDay = isDay == 1
	return stage, nil
}

func (s *SQLiteStore) ListStages(gameID int64) ([]*Stage, error) {
	rows, err := s.db.Query(
		"SELECT id, game_id, idx, is_day, COALESCE(current_vote_id, 0) FROM stages WHERE game_id = ? ORDER BY idx",
		gameID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}
	defer rows.Close()

	var stages []*Stage
	for rows.Next() {
		stage := &Stage{}
		var isDay int
		if err := rows.Scan(&stage.ID, &stage.GameID, &stage.Index, &isDay, &stage.CurrentVoteID); err != nil {
			return nil, fmt.Errorf("failed to scan stage: %w", err)
		}
		stage.IsDay = isDay == 1
		stages = append(stages, stage)
	}
	return stages, rows.Err()
}

func (s *SQLiteStore) scanStagePlayer(row *sql.Row) (*StagePlayer, error) {
	sp := &StagePlayer{}
	var alive int
	err := row.Scan(&sp.ID, &sp.StageID, &sp.GamePlayerID, &sp.Alias, &alive)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stage player: %w", err)
	}
	sp.Alive = alive == 1
	return sp, nil
}

func (s *SQLiteStore) GetStagePlayer(stagePlayerID int64) (*StagePlayer, error) {
	return s.scanStagePlayer(s.db.QueryRow(`
		SELECT sp.id, sp.stage_id, sp.game_player_id, gp.alias, sp.alive
		FROM stage_players sp
		JOIN game_players gp ON sp.game_player_id = gp.id
		WHERE sp.id = ?
	`, stagePlayerID))
}

func (s *SQLiteStore) GetStagePlayerByPlayer(stageID, gamePlayerID int64) (*StagePlayer, error) {
	return s.scanStagePlayer(s.db.QueryRow(`
		SELECT sp.id, sp.stage_id, sp.game_player_id, gp.alias, sp.alive
		FROM stage_players sp
		JOIN game_players gp ON sp.game_player_id = gp.id
		WHERE sp.stage_id = ? AND sp.game_player_id = ?
	`, stageID, gamePlayerID))
}

func (s *SQLiteStore) ListStagePlayers(stageID int64) ([]*StagePlayer, error) {
	rows, err := s.db.Query(`
		SELECT sp.id, sp.stage_id, sp.game_player_id, gp.alias, sp.alive
		FROM stage_players sp
		JOIN game_players gp ON sp.game_player_id = gp.id
		WHERE sp.stage_id = ?
		ORDER BY sp.id
	`, stageID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stage players: %w", err)
	}
	defer rows.Close()

	var players []*StagePlayer
	for rows.Next() {
		sp := &StagePlayer{}
		var alive int
		if err := rows.Scan(&sp.ID, &sp.StageID, &sp.GamePlayerID, &sp.Alias, &alive); err != nil {
			return nil, fmt.Errorf("failed to scan stage player: %w", err)
		}
		sp.Alive = alive == 1
		players = append(players, sp)
	}
	return players, rows.Err()
}

func (s *SQLiteStore) SetStagePlayerAlive(stagePlayerID int64, alive bool) error {
	_, err := s.db.Exec(
		"UPDATE stage_players SET alive = ? WHERE id = ?",
		boolVal(alive), stagePlayerID,
	)
	if err != nil {
		return fmt.Errorf("failed to update stage player: %w", err)
	}
	return nil
}

// CreateVote inserts the vote and moves the stage's current-vote
// pointer in one transaction. A concurrent create racing to the same
// index loses on the (stage_id, idx) constraint and gets ErrStale.
func (s *SQLiteStore) CreateVote(stageID int64, index int, name string) (*Vote, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		"INSERT INTO votes (stage_id, idx, name) VALUES (?, ?, ?)",
		stageID, index, name,
	)
	if isUniqueViolation(err) {
		return nil, ErrStale
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create vote: %w", err)
	}
	voteID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read vote id: %w", err)
	}

	if _, err := tx.Exec(
		"UPDATE stages SET current_vote_id = ? WHERE id = ?",
		voteID, stageID,
	); err != nil {
		return nil, fmt.Errorf("failed to update current vote: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return s.GetVote(voteID)
}

func (s *SQLiteStore) GetVote(voteID int64) (*Vote, error) {
	vote := &Vote{}
	var isOpen, archived, published int
	err := s.db.QueryRow(`
		SELECT id, stage_id, idx, name, is_open, archived, published, created_at, updated_at
		FROM votes WHERE id = ?
	`, voteID).Scan(&vote.ID, &vote.StageID, &vote.Index, &vote.Name,
		&isOpen, &archived, &published, &vote.CreatedAt, &vote.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vote: %w", err)
	}
	vote.IsOpen = isOpen == 1
	vote.Archived = archived == 1
	vote.Published = published == 1
	return vote, nil
}

func (s *SQLiteStore) ListVotes(stageID int64) ([]*Vote, error) {
	rows, err := s.db.Query(`
		SELECT id, stage_id, idx, name, is_open, archived, published, created_at, updated_at
		FROM votes WHERE stage_id = ? ORDER BY idx
	`, stageID)
	if err != nil {
		return nil, fmt.Errorf("failed to list votes: %w", err)
	}
	defer rows.Close()

	var votes []*Vote
	for rows.Next() {
		vote := &Vote{}
		var isOpen, archived, published int
		if err := rows.Scan(&vote.ID, &vote.StageID, &vote.Index, &vote.Name,
			&isOpen, &archived, &published, &vote.CreatedAt, &vote.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vote: %w", err)
		}
		vote.IsOpen = isOpen == 1
		vote.Archived = archived == 1
		vote.Published = published == 1
		votes = append(votes, vote)
	}
	return votes, rows.Err()
}

func (s *SQLiteStore) SetVoteOpen(voteID int64, open bool) error {
	_, err := s.db.Exec(
		"UPDATE votes SET is_open = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		boolVal(open), voteID,
	)
	if err != nil {
		return fmt.Errorf("failed to update vote: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SetVotePublished(voteID int64, published bool) error {
	_, err := s.db.Exec(
		"UPDATE votes SET published = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		boolVal(published), voteID,
	)
	if err != nil {
		return fmt.Errorf("failed to update vote: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpsertBallot(voteID, gamePlayerID, choiceID int64) error {
	_, err := s.db.Exec(`
		INSERT INTO vote_players (vote_id, game_player_id, choice_id)
		VALUES (?, ?, ?)
		ON CONFLICT (vote_id, game_player_id)
		DO UPDATE SET choice_id = excluded.choice_id, updated_at = CURRENT_TIMESTAMP
	`, voteID, gamePlayerID, choiceID)
	if err != nil {
		return fmt.Errorf("failed to cast ballot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetBallot(voteID, gamePlayerID int64) (*Ballot, error) {
	ballot := &Ballot{}
	err := s.db.QueryRow(
		"SELECT vote_id, game_player_id, choice_id, updated_at FROM vote_players WHERE vote_id = ? AND game_player_id = ?",
		voteID, gamePlayerID,
	).Scan(&ballot.VoteID, &ballot.GamePlayerID, &ballot.ChoiceID, &ballot.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ballot: %w", err)
	}
	return ballot, nil
}

func (s *SQLiteStore) TallyVote(voteID int64) ([]*TallyRow, error) {
	rows, err := s.db.Query(`
		SELECT vp.choice_id, gp.alias, COUNT(*)
		FROM vote_players vp
		JOIN stage_players sp ON vp.choice_id = sp.id
		JOIN game_players gp ON sp.game_player_id = gp.id
		WHERE vp.vote_id = ?
		GROUP BY vp.choice_id, gp.alias
		ORDER BY COUNT(*) DESC, gp.alias
	`, voteID)
	if err != nil {
		return nil, fmt.Errorf("failed to tally vote: %w", err)
	}
	defer rows.Close()

	var tally []*TallyRow
	for rows.Next() {
		row := &TallyRow{}
		if err := rows.Scan(&row.ChoiceID, &row.Alias, &row.Count); err != nil {
			return nil, fmt.Errorf("failed to scan tally row: %w", err)
		}
		tally = append(tally, row)
	}
	return tally, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
