package checkpointer

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Magic identifies checkpoint files
const Magic = "btcrl-checkpoint"

// Version is the current checkpoint format version. Files with any
// other version are rejected.
const Version = 1

// ErrCorrupt is returned when a checkpoint file cannot be read back,
// either because it is truncated, not a checkpoint, or written with
// a different format version
var ErrCorrupt = errors.New("corrupt checkpoint")

// header precedes the payload of every checkpoint file
type header struct {
	Magic   string
	Version int
}

// Save writes v to a checkpoint file at path. The checkpoint is first
// written to a temporary file in the same directory which then
// replaces path, so that path always holds either the previous or the
// new checkpoint in full.
func Save(path string, v interface{}) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("save: could not create temporary file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = encode(tmp, v); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("save: could not sync checkpoint: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("save: could not close checkpoint: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save: could not replace checkpoint: %w", err)
	}
	return nil
}

// Load reads a checkpoint file written by Save into v
func Load(path string, v interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	defer f.Close()

	if err := decode(f, v); err != nil {
		return fmt.Errorf("load: %v: %w", path, err)
	}
	return nil
}

func encode(w io.Writer, v interface{}) error {
	enc := gob.NewEncoder(w)
	if err := enc.Encode(header{Magic: Magic, Version: Version}); err != nil {
		return fmt.Errorf("could not encode header: %w", err)
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("could not encode payload: %w", err)
	}
	return nil
}

func decode(r io.Reader, v interface{}) error {
	dec := gob.NewDecoder(r)

	var h header
	if err := dec.Decode(&h); err != nil {
		return fmt.Errorf("%w: could not decode header: %v", ErrCorrupt, err)
	}
	if h.Magic != Magic {
		return fmt.Errorf("%w: not a checkpoint file", ErrCorrupt)
	}
	if h.Version != Version {
		return fmt.Errorf("%w: unsupported version\n\twant(%v)\n\thave(%v)",
			ErrCorrupt, Version, h.Version)
	}

	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: could not decode payload: %v", ErrCorrupt, err)
	}
	return nil
}
