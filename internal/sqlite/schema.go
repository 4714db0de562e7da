package sqlite

import (
	"database/sql"
	"fmt"
)

// Every syncable table carries the same envelope columns:
//
//	local_id    store key, never sent remotely
//	uuid        global identity, unique
//	updated_at  fixed-width UTC text so it sorts lexically
//	synced_at   unix millis of the last remote ack, 0 when dirty
//	deleted_at  tombstone marker, NULL when live
const (
	createProjects = `CREATE TABLE IF NOT EXISTS projects (
    local_id INTEGER PRIMARY KEY AUTOINCREMENT,
    uuid TEXT NOT NULL UNIQUE,
    updated_at TEXT NOT NULL,
    synced_at INTEGER NOT NULL DEFAULT 0,
    deleted_at TEXT,
    title TEXT NOT NULL,
    goal TEXT NOT NULL DEFAULT '',
    color TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);`

	createTasks = `CREATE TABLE IF NOT EXISTS tasks (
    local_id INTEGER PRIMARY KEY AUTOINCREMENT,
    uuid TEXT NOT NULL UNIQUE,
    updated_at TEXT NOT NULL,
    synced_at INTEGER NOT NULL DEFAULT 0,
    deleted_at TEXT,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    priority INTEGER NOT NULL DEFAULT 2,
    effort INTEGER NOT NULL DEFAULT 2,
    kind TEXT NOT NULL DEFAULT 'task',
    execution_date TEXT,
    scheduled_time TEXT,
    duration_minutes INTEGER NOT NULL DEFAULT 0,
    project_uuid TEXT NOT NULL DEFAULT '',
    rollover_count INTEGER NOT NULL DEFAULT 0,
    reminder_minutes INTEGER NOT NULL DEFAULT 0,
    reminded INTEGER NOT NULL DEFAULT 0,
    completed_at TEXT,
    created_at TEXT NOT NULL
);`

	createNotes = `CREATE TABLE IF NOT EXISTS notes (
    local_id INTEGER PRIMARY KEY AUTOINCREMENT,
    uuid TEXT NOT NULL UNIQUE,
    updated_at TEXT NOT NULL,
    synced_at INTEGER NOT NULL DEFAULT 0,
    deleted_at TEXT,
    content TEXT NOT NULL DEFAULT '',
    kind TEXT NOT NULL DEFAULT 'note',
    is_audio INTEGER NOT NULL DEFAULT 0,
    attachment_info TEXT,
    linked_task_uuid TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);`

	createHabits = `CREATE TABLE IF NOT EXISTS habits (
    local_id INTEGER PRIMARY KEY AUTOINCREMENT,
    uuid TEXT NOT NULL UNIQUE,
    updated_at TEXT NOT NULL,
    synced_at INTEGER NOT NULL DEFAULT 0,
    deleted_at TEXT,
    title TEXT NOT NULL,
    frequency TEXT NOT NULL DEFAULT 'daily',
    streak_count INTEGER NOT NULL DEFAULT 0,
    last_completed_date TEXT,
    created_at TEXT NOT NULL
);`

	createSyncCursors = `CREATE TABLE IF NOT EXISTS sync_cursors (
    table_name TEXT PRIMARY KEY,
    cursor TEXT NOT NULL
);`
)

// Index DDL.
const (
	indexTasksSynced     = `CREATE INDEX IF NOT EXISTS idx_tasks_synced ON tasks(synced_at);`
	indexTasksStatus     = `CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);`
	indexTasksExecution  = `CREATE INDEX IF NOT EXISTS idx_tasks_execution_date ON tasks(execution_date);`
	indexTasksProject    = `CREATE INDEX IF NOT EXISTS idx_tasks_project_uuid ON tasks(project_uuid);`
	indexProjectsSynced  = `CREATE INDEX IF NOT EXISTS idx_projects_synced ON projects(synced_at);`
	indexNotesSynced     = `CREATE INDEX IF NOT EXISTS idx_notes_synced ON notes(synced_at);`
	indexHabitsSynced    = `CREATE INDEX IF NOT EXISTS idx_habits_synced ON habits(synced_at);`
	indexNotesLinkedTask = `CREATE INDEX IF NOT EXISTS idx_notes_linked_task ON notes(linked_task_uuid);`
)

var schemaStatements = []string{
	createProjects,
	createTasks,
	createNotes,
	createHabits,
	createSyncCursors,
	indexTasksSynced,
	indexTasksStatus,
	indexTasksExecution,
	indexTasksProject,
	indexProjectsSynced,
	indexNotesSynced,
	indexHabitsSynced,
	indexNotesLinkedTask,
}

// ensureSchema creates missing tables and indexes. Existing data is kept.
func ensureSchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("executing %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
