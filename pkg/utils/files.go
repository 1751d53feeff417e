package utils

import (
	"path/filepath"
	"strings"
)

func GetPathInfo(relPath string) (fullPath string, parentDir string, err error) {
	// Absolute path, cleaned
	fullPath, err = filepath.Abs(relPath)
	if err != nil {
		return "", "", err
	}

	parentDir = filepath.Dir(fullPath)

	return fullPath, parentDir, nil
}

// ReplaceExt swaps the extension of path for ext, or appends ext when path
// has none.
func ReplaceExt(path, ext string) string {
	old := filepath.Ext(path)
	if old == "" {
		return path + ext
	}
	return strings.TrimSuffix(path, old) + ext
}
