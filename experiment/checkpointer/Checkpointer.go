// Package checkpointer implements versioned, atomically written
// checkpoint files and policies deciding when to write them.
package checkpointer

// Saver is an object which can save its full state to a file
type Saver interface {
	Save(path string) error
}

// Checkpointer checkpoints an object at the end of episodes. Episodes
// are numbered from 1.
type Checkpointer interface {
	Checkpoint(episode int) error
}
