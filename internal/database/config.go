package database

import "time"

// Config holds everything a driver needs to open a single connection.
// It is built from a registry entry; drivers never read the registry.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string

	// Path is the database file for SQLite.
	Path string

	// SSLMode is passed through to PostgreSQL ("disable", "require", …).
	SSLMode string

	// Params are appended to the driver DSN as-is.
	Params map[string]string

	// ConnectTimeout bounds dialing, authentication and the session setup
	// statements run right after connecting.
	ConnectTimeout time.Duration
}

const defaultConnectTimeout = 10 * time.Second

// Timeout returns ConnectTimeout or the package default when unset.
func (c *Config) Timeout() time.Duration {
	if c.ConnectTimeout <= 0 {
		return defaultConnectTimeout
	}
	return c.ConnectTimeout
}
