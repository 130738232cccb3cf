package models

import "errors"

// Sentinel errors returned by task stores when a referenced entity does not exist.
var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrSubtaskNotFound = errors.New("subtask not found")
)
