package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create clients table
			CREATE TABLE clients (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				credit_balance BIGINT NOT NULL DEFAULT 0 CHECK (credit_balance >= 0),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			-- Create automations table
			CREATE TABLE automations (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				webhook_url TEXT NOT NULL DEFAULT '',
				auth JSONB,
				credits_per_execution BIGINT NOT NULL DEFAULT 0 CHECK (credits_per_execution >= 0)
			);

			-- Create client_automation_assignments table
			CREATE TABLE client_automation_assignments (
				client_id VARCHAR(255) NOT NULL REFERENCES clients(id),
				automation_id VARCHAR(255) NOT NULL REFERENCES automations(id),
				is_active BOOLEAN NOT NULL DEFAULT true,
				credits_per_execution BIGINT NOT NULL CHECK (credits_per_execution >= 0),
				PRIMARY KEY (client_id, automation_id)
			);

			CREATE INDEX idx_assignments_automation_id ON client_automation_assignments(automation_id);
		`,
		2: `
			-- Create executions table (append-only audit trail)
			CREATE TABLE executions (
				id VARCHAR(255) PRIMARY KEY,
				automation_id VARCHAR(255) NOT NULL REFERENCES automations(id),
				client_id VARCHAR(255) REFERENCES clients(id),
				execution_id VARCHAR(255) NOT NULL,
				status VARCHAR(20) NOT NULL CHECK (status IN ('running', 'success', 'failed')),
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at TIMESTAMP WITH TIME ZONE,
				result JSONB,
				credits_used BIGINT CHECK (credits_used IS NULL OR credits_used >= 0)
			);

			CREATE INDEX idx_executions_client_started_at ON executions(client_id, started_at DESC);
			CREATE INDEX idx_executions_automation_id ON executions(automation_id);
			CREATE INDEX idx_executions_execution_id ON executions(execution_id);
			CREATE INDEX idx_executions_status ON executions(status);

			CREATE OR REPLACE FUNCTION executions_append_only() RETURNS trigger AS $$
			BEGIN
				RAISE EXCEPTION 'executions are append-only';
			END;
			$$ LANGUAGE plpgsql;

			CREATE TRIGGER executions_append_only
				BEFORE UPDATE OR DELETE ON executions
				FOR EACH ROW EXECUTE FUNCTION executions_append_only();
		`,
	}
}
