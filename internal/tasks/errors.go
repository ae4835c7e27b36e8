package tasks

import "errors"

var (
	ErrTaskNotFound   = errors.New("task not found")
	ErrTaskFinished   = errors.New("task already finished")
	ErrManagerClosed  = errors.New("task manager closed")
	ErrEmptyCommand   = errors.New("command is required")
	ErrNilTaskFunc    = errors.New("task function is nil")
	ErrTooManyRunning = errors.New("too many running tasks")
)
