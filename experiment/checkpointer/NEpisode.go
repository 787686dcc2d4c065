package checkpointer

import (
	"fmt"
	"path/filepath"
	"strings"
)

// nEpisode implements checkpointing every N episodes
type nEpisode struct {
	interval int
	object   Saver // Object to save

	// filename returns the filename of the file to save the object in.
	//
	// If each checkpoint should be saved in a separate file with each
	// file having an incremented number as a suffix (e.g. agent1.ckpt,
	// agent2.ckpt, ..., agentK.ckpt), then use FilenameEnumerator.
	// If the filename does not matter, use FileTimer. To keep only the
	// latest checkpoint, use Fixed.
	filename func() string
}

// NewNEpisode returns a checkpointer that checkpoints object every n
// episodes
func NewNEpisode(n int, object Saver,
	filename func() string) (Checkpointer, error) {
	if n < 1 {
		return nil, fmt.Errorf("newnepisode: interval must be positive"+
			"\n\thave(%v)", n)
	}
	if object == nil || filename == nil {
		return nil, fmt.Errorf("newnepisode: nil object or filename function")
	}
	return &nEpisode{
		interval: n,
		object:   object,
		filename: filename,
	}, nil
}

// Checkpoint checkpoints the Checkpointer's tracked object by calling
// its Save() method if episode is a multiple of the interval
func (n *nEpisode) Checkpoint(episode int) error {
	if episode%n.interval == 0 {
		return n.object.Save(n.filename())
	}
	return nil
}

// Naming returns a filename function for the naming scheme with the
// given name. The scheme is one of "fixed", "enumerate", or "time".
// For the enumerate and time schemes, the suffix is inserted before
// the extension of path. Enumerated names continue after start, the
// number of checkpoints already written.
func Naming(scheme, path string, start int) (func() string, error) {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)

	switch strings.ToLower(scheme) {
	case "", "fixed":
		return Fixed(path), nil
	case "enumerate":
		return FilenameEnumerator(start, base, ext), nil
	case "time":
		return FileTimer(base, ext), nil
	}
	return nil, fmt.Errorf("naming: unknown naming scheme %q", scheme)
}
