package access

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// watchedFile remembers the size of a configuration file so a periodic
// reread can skip files that did not change.
type watchedFile struct {
	path string
	size int64
	read bool
}

// changed reports whether the file must be reread. A missing file counts as
// size -1.
func (w *watchedFile) changed() bool {
	if !w.read {
		return true
	}
	return fileSize(w.path) != w.size
}

type line struct {
	number int
	text   string
}

// load returns the file's non-empty lines with "//" and "#" comments
// removed. A missing file yields no lines and no error.
func (w *watchedFile) load() ([]line, error) {
	w.read = true
	data, err := os.ReadFile(w.path)
	if errors.Is(err, fs.ErrNotExist) {
		w.size = -1
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", w.path, err)
	}
	w.size = int64(len(data))

	var out []line
	for i, raw := range strings.Split(string(data), "\n") {
		if c := strings.Index(raw, "//"); c >= 0 {
			raw = raw[:c]
		}
		text := strings.TrimSpace(raw)
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		out = append(out, line{number: i + 1, text: text})
	}
	return out, nil
}

func fileSize(path string) int64 {
	st, err := os.Stat(path)
	if err != nil {
		return -1
	}
	return st.Size()
}
