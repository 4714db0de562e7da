package types

import "context"

// TaskTx is the task view of a store transaction.
type TaskTx interface {
	GetTask(localID int64) (*Task, error)
	GetTaskByUUID(uuid string) (*Task, error)
	CreateTask(t *Task, origin Origin) error
	SaveTask(t *Task, origin Origin) error
	ListTasks(filter TaskFilter) ([]*Task, error)
}

// TaskStore runs task reads and writes in transactions. Update transactions
// are serialized with every other writer of the store.
type TaskStore interface {
	ViewTasks(ctx context.Context, fn func(TaskTx) error) error
	UpdateTasks(ctx context.Context, fn func(TaskTx) error) error
}
