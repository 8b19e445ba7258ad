package models

import "context"

// Exercise is one entry of the exercise directory.
type Exercise struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Media  string   `json:"media,omitempty"`
	SetIDs []string `json:"sets"`
}

// ExerciseRepository reads the canonical directory.
type ExerciseRepository interface {
	ListDirectory(ctx context.Context) ([]Exercise, error)
}
