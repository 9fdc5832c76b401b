package repository

import (
	"github.com/Avillegasa/equestrian-fei-system-sub000/pkg/logger"
)

// Option applies a configuration option to the PostgresStore.
type Option func(*PostgresStore)

// WithDebug logs every SQL query through bundebug.
func WithDebug(debug bool) Option {
	return func(s *PostgresStore) {
		s.debug = debug
	}
}

// WithLogger sets the logger used by the store.
func WithLogger(l logger.Logger) Option {
	return func(s *PostgresStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMaxOpenConns caps the connection pool.
func WithMaxOpenConns(n int) Option {
	return func(s *PostgresStore) {
		if n > 0 {
			s.maxOpenConns = n
		}
	}
}
