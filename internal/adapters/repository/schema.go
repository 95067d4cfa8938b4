package repository

const schema = `
CREATE TABLE IF NOT EXISTS players (
    user_id       TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    country_code  TEXT NOT NULL DEFAULT '',
    score         INTEGER NOT NULL DEFAULT 0,
    score_details TEXT NOT NULL DEFAULT '[[],[]]',
    last_update   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_players_score ON players(score);
CREATE INDEX IF NOT EXISTS idx_players_country ON players(country_code);

CREATE TABLE IF NOT EXISTS game_values (
    game_id             TEXT NOT NULL,
    category_id         TEXT NOT NULL,
    run_id              TEXT NOT NULL,
    platform_id         TEXT NOT NULL DEFAULT '',
    alternate_platforms TEXT NOT NULL DEFAULT '',
    wr_time             INTEGER NOT NULL,
    wr_points           INTEGER NOT NULL,
    mean_time           INTEGER NOT NULL,
    PRIMARY KEY (game_id, category_id)
);

CREATE INDEX IF NOT EXISTS idx_game_values_points ON game_values(wr_points);
`
