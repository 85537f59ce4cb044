package store

type migration struct {
	version string
	sql     string
}

// migrations are applied in order and recorded in schema_migrations.
var migrations = []migration{
	{
		version: "001_create_players",
		sql: `
			CREATE TABLE IF NOT EXISTS players (
				player_id        VARCHAR(32) PRIMARY KEY,
				full_name        TEXT NOT NULL,
				source_url       TEXT NOT NULL,
				positions        TEXT[] NOT NULL DEFAULT '{}',
				height_m         NUMERIC(4,2),
				weight_lb        NUMERIC(6,1),
				weight_kg        NUMERIC(6,1),
				birth_date       DATE,
				debut_date       DATE,
				year_from        INT NOT NULL,
				year_to          INT,
				defaulted_fields TEXT[] NOT NULL DEFAULT '{}',
				scraped_at       TIMESTAMPTZ NOT NULL,
				created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_players_full_name ON players (LOWER(full_name));
		`,
	},
	{
		version: "002_create_player_season_stats",
		sql: `
			CREATE TABLE IF NOT EXISTS player_season_stats (
				id         BIGSERIAL PRIMARY KEY,
				player_id  VARCHAR(32) NOT NULL REFERENCES players(player_id) ON DELETE CASCADE,
				row_index  INT NOT NULL,
				season     TEXT NOT NULL,
				columns    TEXT[] NOT NULL,
				stat_values JSONB NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				UNIQUE (player_id, row_index)
			);
			CREATE INDEX IF NOT EXISTS idx_player_season_stats_player ON player_season_stats (player_id);
		`,
	},
	{
		version: "003_create_scrape_jobs",
		sql: `
			CREATE TABLE IF NOT EXISTS scrape_jobs (
				job_id           UUID PRIMARY KEY,
				letters          TEXT[] NOT NULL,
				cutoff_year      INT NOT NULL,
				per_letter_limit INT NOT NULL DEFAULT 0,
				dry_run          BOOLEAN NOT NULL DEFAULT FALSE,
				status           VARCHAR(16) NOT NULL,
				status_message   TEXT,
				progress_current INT NOT NULL DEFAULT 0,
				progress_total   INT NOT NULL DEFAULT 0,
				processed        INT NOT NULL DEFAULT 0,
				skipped          INT NOT NULL DEFAULT 0,
				failed           INT NOT NULL DEFAULT 0,
				last_error       TEXT,
				created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				started_at       TIMESTAMPTZ,
				completed_at     TIMESTAMPTZ
			);
			CREATE INDEX IF NOT EXISTS idx_scrape_jobs_status ON scrape_jobs (status, created_at);

			CREATE TABLE IF NOT EXISTS scrape_job_events (
				id         BIGSERIAL PRIMARY KEY,
				job_id     UUID NOT NULL REFERENCES scrape_jobs(job_id) ON DELETE CASCADE,
				event_type VARCHAR(32) NOT NULL,
				message    TEXT NOT NULL,
				player_id  VARCHAR(32),
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
		`,
	},
}
