package sqldb

// schema is applied statement by statement on Open. Every statement is
// idempotent and valid for both SQLite and PostgreSQL.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS profiles (
		id            BIGINT PRIMARY KEY,
		first_name    TEXT NOT NULL,
		last_name     TEXT NOT NULL,
		profession    TEXT NOT NULL,
		balance_cents BIGINT NOT NULL DEFAULT 0 CHECK (balance_cents >= 0),
		type          TEXT NOT NULL CHECK (type IN ('client', 'contractor')),
		version       BIGINT NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS contracts (
		id            BIGINT PRIMARY KEY,
		terms         TEXT NOT NULL,
		status        TEXT NOT NULL CHECK (status IN ('new', 'in_progress', 'terminated')),
		client_id     BIGINT NOT NULL REFERENCES profiles(id),
		contractor_id BIGINT NOT NULL REFERENCES profiles(id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_contracts_client ON contracts(client_id)`,
	`CREATE INDEX IF NOT EXISTS idx_contracts_contractor ON contracts(contractor_id)`,

	// payment_date is set iff paid.
	`CREATE TABLE IF NOT EXISTS jobs (
		id           BIGINT PRIMARY KEY,
		description  TEXT NOT NULL,
		price_cents  BIGINT NOT NULL CHECK (price_cents > 0),
		paid         BOOLEAN NOT NULL DEFAULT FALSE,
		payment_date TIMESTAMP,
		contract_id  BIGINT NOT NULL REFERENCES contracts(id),
		version      BIGINT NOT NULL DEFAULT 0,
		CHECK ((paid AND payment_date IS NOT NULL) OR (NOT paid AND payment_date IS NULL))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_contract ON jobs(contract_id)`,
	// Hot path for both reports.
	`CREATE INDEX IF NOT EXISTS idx_jobs_paid_date ON jobs(paid, payment_date)`,

	// One row per paid job. UNIQUE(job_id) backs the at-most-once payment rule.
	`CREATE TABLE IF NOT EXISTS transfers (
		id            TEXT PRIMARY KEY,
		job_id        BIGINT NOT NULL UNIQUE REFERENCES jobs(id),
		client_id     BIGINT NOT NULL REFERENCES profiles(id),
		contractor_id BIGINT NOT NULL REFERENCES profiles(id),
		amount_cents  BIGINT NOT NULL CHECK (amount_cents > 0),
		created_at    TIMESTAMP NOT NULL
	)`,
}
