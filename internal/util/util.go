package util

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
)

func DirExists(path string) bool {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) || err != nil {
		return false
	}
	return info.IsDir()
}

// PathExists reports whether anything, file or directory, lives at path.
func PathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// NextFreeDir returns path itself when nothing exists there, otherwise the
// first path_K (K = 1, 2, ...) that is free.
func NextFreeDir(path string) string {
	if !PathExists(path) {
		return path
	}
	for k := 1; ; k++ {
		candidate := path + "_" + strconv.Itoa(k)
		if !PathExists(candidate) {
			return candidate
		}
	}
}
