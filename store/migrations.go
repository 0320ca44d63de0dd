package store

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT UNIQUE NOT NULL,
    password_hash TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS games (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    join_token TEXT UNIQUE NOT NULL,
    current_stage_id INTEGER,
    archived INTEGER DEFAULT 0,
    published INTEGER DEFAULT 0,
    locked INTEGER DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (current_stage_id) REFERENCES stages(id)
);

CREATE TABLE IF NOT EXISTS game_moderators (
    game_id INTEGER NOT NULL,
    user_id INTEGER NOT NULL,
    PRIMARY KEY (game_id, user_id),
    FOREIGN KEY (game_id) REFERENCES games(id),
    FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS game_players (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    game_id INTEGER NOT NULL,
    user_id INTEGER NOT NULL,
    alias TEXT NOT NULL,
    UNIQUE (game_id, user_id),
    FOREIGN KEY (game_id) REFERENCES games(id),
    FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS stages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    game_id INTEGER NOT NULL,
    idx INTEGER NOT NULL,
    is_day INTEGER NOT NULL,
    current_vote_id INTEGER,
    UNIQUE (game_id, idx),
    FOREIGN KEY (game_id) REFERENCES games(id),
    FOREIGN KEY (current_vote_id) REFERENCES votes(id)
);

CREATE TABLE IF NOT EXISTS stage_players (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    stage_id INTEGER NOT NULL,
    game_player_id INTEGER NOT NULL,
    alive INTEGER NOT NULL DEFAULT 0,
    UNIQUE (stage_id, game_player_id),
    FOREIGN KEY (stage_id) REFERENCES stages(id),
    FOREIGN KEY (game_player_id) REFERENCES game_players(id)
);

CREATE TABLE IF NOT EXISTS votes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    stage_id INTEGER NOT NULL,
    idx INTEGER NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    is_open INTEGER NOT NULL DEFAULT 0,
    archived INTEGER DEFAULT 0,
    published INTEGER DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (stage_id, idx),
    FOREIGN KEY (stage_id) REFERENCES stages(id)
);

CREATE TABLE IF NOT EXISTS vote_players (
    vote_id INTEGER NOT NULL,
    game_player_id INTEGER NOT NULL,
    choice_id INTEGER NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (vote_id, game_player_id),
    FOREIGN KEY (vote_id) REFERENCES votes(id),
    FOREIGN KEY (game_player_id) REFERENCES game_players(id),
    FOREIGN KEY (choice_id) REFERENCES stage_players(id)
);

CREATE INDEX IF NOT EXISTS idx_game_moderators_user_id ON game_moderators(user_id);
CREATE INDEX IF NOT EXISTS idx_game_players_user_id ON game_players(user_id);
CREATE INDEX IF NOT EXISTS idx_stages_game_id ON stages(game_id);
CREATE INDEX IF NOT EXISTS idx_stage_players_stage_id ON stage_players(stage_id);
CREATE INDEX IF NOT EXISTS idx_votes_stage_id ON votes(stage_id);
`
