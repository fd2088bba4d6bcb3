package guard

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
)

// Marker is a read-only view of a lock file.
type Marker struct {
	Identity  string    `json:"identity"`
	Path      string    `json:"path"`
	PID       int       `json:"pid,omitempty"`
	Live      bool      `json:"live"`
	Malformed bool      `json:"malformed,omitempty"`
	ModTime   time.Time `json:"mod_time"`
}

// markerContent is the on-disk form: decimal PID plus newline.
func markerContent(pid int) []byte {
	return []byte(strconv.Itoa(pid) + "\n")
}

// createMarker creates path exclusively and writes pid into it. An
// fs.ErrExist error is returned untouched so callers can detect contention.
func createMarker(path string, pid int) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600) //nolint:gosec // G304 - path from configured lock directory
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return err
		}
		return &MarkerError{Op: "create", Path: path, Err: err}
	}

	_, werr := f.Write(markerContent(pid))
	cerr := f.Close()
	if werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(path)
		return &MarkerError{Op: "write", Path: path, Err: werr}
	}
	return nil
}

// readMarker returns the PID recorded at path together with the file info
// of the same open file. Unparseable content yields errMalformed; a missing
// file yields an error matching fs.ErrNotExist.
func readMarker(path string) (int, fs.FileInfo, error) {
	f, err := os.Open(path) //nolint:gosec // G304 - path from configured lock directory
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return 0, nil, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return 0, info, err
	}

	pid, err := parsePID(data)
	if err != nil {
		return 0, info, err
	}
	return pid, info, nil
}

func parsePID(data []byte) (int, error) {
	s := strings.TrimSpace(string(data))
	if s == "" {
		return 0, fmt.Errorf("%w: empty", errMalformed)
	}
	pid, err := strconv.Atoi(s)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("%w: %q", errMalformed, s)
	}
	return pid, nil
}

// emptyFile reports whether a marker has no content yet.
func emptyFile(info fs.FileInfo) bool {
	return info != nil && info.Size() == 0
}
