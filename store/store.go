// Package store is the SQLite persistence layer: projects, their extracted
// assets, and export records. The processing core never touches SQL; the
// worker exchanges structs with this package.
package store

import (
	"database/sql"

	"github.com/pipevision/pipevision/dbopen"
)

// Store is the database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the database at path, applies the service pragmas
// and the schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}
