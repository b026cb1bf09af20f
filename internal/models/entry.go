package models

import "strings"

// EntryType classifies a single directory entry read from the volume.
type EntryType string

// Entry type constants
const (
	EntryFile      EntryType = "file"      // Regular file, printed
	EntryDirectory EntryType = "directory" // Directory, traversed
	EntryOther     EntryType = "other"     // Symlink, device, socket: ignored
)

// Entry is one item read from an open directory.
type Entry struct {
	Name   string    // Base name as reported by the volume
	Type   EntryType // Classification of the entry
	Parent string    // Directory the entry was read under
}

// Path returns the fully qualified path of the entry.
func (e Entry) Path() string {
	return JoinPath(e.Parent, e.Name)
}

// IsSelfOrParent reports whether the entry is the "." or ".." link.
func (e Entry) IsSelfOrParent() bool {
	return e.Name == "." || e.Name == ".."
}

// DirectoryTask identifies a directory pending expansion.
type DirectoryTask struct {
	Path string
}

// FilePath is the fully qualified path of a discovered regular file.
type FilePath string

// JoinPath joins a parent directory and a child name with a single separator.
// The parent is used as given, so "/" + "f" yields "/f" and "/a" + "f" yields "/a/f".
func JoinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	if strings.HasSuffix(parent, "/") {
		return parent + name
	}
	return parent + "/" + name
}
