package msh

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// DirSink dumps each inbound request body to a file under Dir, named by
// arrival time and a random suffix.
type DirSink struct {
	Dir string
}

// Open implements DumpSink.
func (d DirSink) Open(info RequestInfo) (io.WriteCloser, error) {
	if err := os.MkdirAll(d.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating dump directory: %w", err)
	}
	name := fmt.Sprintf("%s-%s.dump",
		info.ReceivedAt.UTC().Format("20060102T150405"),
		uuid.NewString()[:8])
	f, err := os.Create(filepath.Join(d.Dir, name))
	if err != nil {
		return nil, fmt.Errorf("creating dump file: %w", err)
	}
	return f, nil
}

var _ DumpSink = DirSink{}
