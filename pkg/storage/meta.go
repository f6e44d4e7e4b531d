package storage

import (
	"strconv"
	"strings"
	"time"

	"github.com/sdejongh/replisync/pkg/models"
)

// mtimeMetaKey is the object metadata key carrying the uploader's file mtime (epoch seconds).
// Object stores stamp their own LastModified on every put, so the original time travels here.
const mtimeMetaKey = "replica-mtime"

func mtimeMetadata(t time.Time) map[string]string {
	return map[string]string{mtimeMetaKey: strconv.FormatInt(models.Epoch(t), 10)}
}

// mtimeFromMetadata reads mtimeMetaKey, accepting any case and an optional x-amz-meta- prefix
func mtimeFromMetadata(meta map[string]string) (int64, bool) {
	for k, v := range meta {
		key := strings.TrimPrefix(strings.ToLower(k), "x-amz-meta-")
		if key != mtimeMetaKey {
			continue
		}
		sec, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || sec < 0 {
			return 0, false
		}
		return sec, true
	}
	return 0, false
}

// joinKey joins an object key prefix and a file name
func joinKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// listPrefix turns a location into an object listing prefix
func listPrefix(location string) string {
	prefix := strings.Trim(location, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}
