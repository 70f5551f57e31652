package postgres

import "refcheck/internal/storage"

func init() {
	// registers the postgres backend factory
	storage.Register("postgres", New)
}
