package volume

import (
	"strings"

	"github.com/harrison/gpfind/internal/models"
)

// ObjectPrefix maps a directory path to the key prefix an object store lists
// it under: "/" becomes "" and "/a/b" becomes "a/b/".
func ObjectPrefix(dir string) string {
	p := strings.Trim(dir, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

// EntryFromKey converts a key returned by a delimited listing of prefix into
// a directory entry. Keys ending in "/" are directories. ok is false for the
// prefix's own placeholder object and for keys outside the prefix.
func EntryFromKey(parent, prefix, key string) (entry models.Entry, ok bool) {
	if !strings.HasPrefix(key, prefix) {
		return models.Entry{}, false
	}
	name := strings.TrimPrefix(key, prefix)
	typ := models.EntryFile
	if strings.HasSuffix(name, "/") {
		name = strings.TrimSuffix(name, "/")
		typ = models.EntryDirectory
	}
	if name == "" || strings.Contains(name, "/") {
		return models.Entry{}, false
	}
	return models.Entry{Name: name, Type: typ, Parent: parent}, true
}
