package checkpointer

import (
	"fmt"
	"time"
)

// FileTimer returns a function which will append to a filename the
// number of nanoseconds since January 1, 1970.
func FileTimer(filename, extension string) func() string {
	return fileTimer(filename, extension, time.Now)
}

func fileTimer(filename, extension string,
	now func() time.Time) func() string {
	return func() string {
		return fmt.Sprintf("%v-%v%v", filename, now().UnixNano(), extension)
	}
}
