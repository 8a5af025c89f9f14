package store

// Column types are limited to what SQLite, PostgreSQL and MySQL all accept.
// Timestamps are stored as unix seconds so comparisons stay driver independent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS emails (
		message_id VARCHAR(255) NOT NULL PRIMARY KEY,
		source VARCHAR(255) NOT NULL,
		destination VARCHAR(255) NOT NULL,
		delivered_at BIGINT NOT NULL,
		begin_time BIGINT NOT NULL,
		end_time BIGINT NOT NULL,
		duration_seconds BIGINT NOT NULL,
		examined_files BIGINT NOT NULL,
		added_files BIGINT NOT NULL,
		deleted_files BIGINT NOT NULL,
		modified_files BIGINT NOT NULL,
		opened_files BIGINT NOT NULL,
		not_processed_files BIGINT NOT NULL,
		too_large_files BIGINT NOT NULL,
		files_with_error BIGINT NOT NULL,
		added_folders BIGINT NOT NULL,
		deleted_folders BIGINT NOT NULL,
		modified_folders BIGINT NOT NULL,
		size_of_examined_files BIGINT NOT NULL,
		size_of_modified_files BIGINT NOT NULL,
		size_of_added_files BIGINT NOT NULL,
		size_of_opened_files BIGINT NOT NULL,
		main_operation VARCHAR(64) NOT NULL,
		parsed_result VARCHAR(64) NOT NULL,
		partial_backup VARCHAR(64) NOT NULL,
		dry_run VARCHAR(64) NOT NULL,
		version VARCHAR(128) NOT NULL,
		messages TEXT,
		warnings TEXT,
		errors TEXT,
		details TEXT,
		failed TEXT,
		log_data TEXT,
		structured SMALLINT NOT NULL,
		run_failed SMALLINT NOT NULL,
		seen SMALLINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS backupsets (
		source VARCHAR(255) NOT NULL,
		destination VARCHAR(255) NOT NULL,
		last_file_count BIGINT NOT NULL,
		last_file_size BIGINT NOT NULL,
		last_timestamp BIGINT NOT NULL,
		last_version VARCHAR(128) NOT NULL,
		PRIMARY KEY (source, destination)
	)`,
}
