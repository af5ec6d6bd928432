// Package safefile reads untrusted input files (agent transcripts, signing
// keys) with a symlink check and a hard size cap, so a hostile workspace
// cannot point the CLI at /etc or feed it a multi-gigabyte file.
package safefile

import (
	"fmt"
	"os"
)

// ReadFileMax reads path after checking, via Lstat so the check is not
// followed through a link, that it is a regular file no larger than
// maxBytes.
func ReadFileMax(path string, maxBytes int64) ([]byte, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("%s is a symbolic link (rejected)", path)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}
	if info.Size() > maxBytes {
		return nil, fmt.Errorf("%s is too large (%d bytes, max %d)", path, info.Size(), maxBytes)
	}
	return os.ReadFile(path)
}
