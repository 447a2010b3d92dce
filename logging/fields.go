package logging

import "github.com/sirupsen/logrus"

// Field names shared across components.
const (
	FieldAction = "action"
	FieldName   = "name"
	FieldURL    = "url"
	FieldPath   = "path"
)

// CacheFields describes a cache lookup.
func CacheFields(action, name, url string, hit bool) logrus.Fields {
	return logrus.Fields{
		FieldAction: action,
		FieldName:   name,
		FieldURL:    url,
		"cache_hit": hit,
	}
}

// PathFields describes an action on a filesystem path.
func PathFields(action, path string) logrus.Fields {
	return logrus.Fields{
		FieldAction: action,
		FieldPath:   path,
	}
}
