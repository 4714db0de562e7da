package types

// Standard table names. These are also the remote table names.
const (
	TableProjects = "projects"
	TableTasks    = "tasks"
	TableNotes    = "notes"
	TableHabits   = "habits"
)

// SyncTables lists the syncable tables in push and pull order. Projects come
// first so tasks referencing them arrive after their owner.
var SyncTables = []string{
	TableProjects,
	TableTasks,
	TableNotes,
	TableHabits,
}

// IsSyncTable reports whether name is one of SyncTables.
func IsSyncTable(name string) bool {
	for _, t := range SyncTables {
		if t == name {
			return true
		}
	}
	return false
}
