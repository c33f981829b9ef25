package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create sequence_definitions table
			CREATE TABLE sequence_definitions (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				active BOOLEAN NOT NULL DEFAULT true,
				auto_assign_new_leads BOOLEAN NOT NULL DEFAULT false,
				last_step_order INT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_sequence_definitions_auto_assign ON sequence_definitions(active, auto_assign_new_leads);
			CREATE INDEX idx_sequence_definitions_created_at ON sequence_definitions(created_at);

			-- Create sequence_steps table
			CREATE TABLE sequence_steps (
				id UUID PRIMARY KEY,
				sequence_id UUID NOT NULL REFERENCES sequence_definitions(id) ON DELETE CASCADE,
				step_order INT NOT NULL CHECK (step_order > 0),
				delay_days INT NOT NULL DEFAULT 0 CHECK (delay_days >= 0),
				trigger_tag VARCHAR(255) NOT NULL,
				subject TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				UNIQUE (sequence_id, step_order)
			);

			CREATE INDEX idx_sequence_steps_sequence_id ON sequence_steps(sequence_id);

			-- Create sequence_assignments table; no FK to definitions so rows
			-- survive definition deletion
			CREATE TABLE sequence_assignments (
				id UUID PRIMARY KEY,
				lead_id VARCHAR(255) NOT NULL,
				sequence_id UUID NOT NULL,
				current_step_order INT NOT NULL DEFAULT 0,
				status VARCHAR(20) NOT NULL CHECK (status IN ('active', 'completed', 'removed')),
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				last_step_executed_at TIMESTAMP WITH TIME ZONE,
				next_step_due_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE,
				removed_at TIMESTAMP WITH TIME ZONE,
				removal_reason VARCHAR(64) NOT NULL DEFAULT '',
				failed_attempts INT NOT NULL DEFAULT 0,
				last_error TEXT NOT NULL DEFAULT '',
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE UNIQUE INDEX idx_sequence_assignments_active_pair
				ON sequence_assignments(lead_id, sequence_id) WHERE status = 'active';
			CREATE INDEX idx_sequence_assignments_due
				ON sequence_assignments(next_step_due_at) WHERE status = 'active';
			CREATE INDEX idx_sequence_assignments_sequence_id ON sequence_assignments(sequence_id);
			CREATE INDEX idx_sequence_assignments_lead_id ON sequence_assignments(lead_id);
		`,
		2: `
			-- Migration 2: lead directory table, owned by the intake side
			CREATE TABLE IF NOT EXISTS leads (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				email VARCHAR(255) NOT NULL,
				phone VARCHAR(64) NOT NULL DEFAULT '',
				interest TEXT NOT NULL DEFAULT '',
				location TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_leads_email ON leads(email);
		`,
	}
}
