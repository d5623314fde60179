package u_io

import (
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// MaxFilenameLength keeps names well inside common filesystem limits.
const MaxFilenameLength = 200

// CleanFilename removes path separators and characters outside a
// portable set, keeping the extension when the name has to be shortened.
func CleanFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "/", "_")
	filename = strings.ReplaceAll(filename, "\\", "_")

	filename = strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '.' || r == '-' || r == '_' || r == ' ' {
			return r
		}
		return '_'
	}, filename)

	filename = strings.Trim(filename, " .")

	if utf8.RuneCountInString(filename) > MaxFilenameLength {
		ext := filepath.Ext(filename)
		if len(ext) > 16 {
			ext = ""
		}
		filename = filename[:MaxFilenameLength-len(ext)] + ext
	}

	return filename
}

// WriteFileAtomic writes data to a temporary sibling and renames it into
// place so readers never see a partial file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
