package filestore

// Config holds the settings needed to reach an S3-compatible object store.
type Config struct {
	// Endpoint is the host:port of the storage server, without scheme.
	// Example: "localhost:9000" for local MinIO, "s3.amazonaws.com" for AWS.
	Endpoint string

	// AccessKey is the access key ID.
	AccessKey string

	// SecretKey is the secret access key.
	SecretKey string

	// UseSSL controls whether TLS is used for the connection.
	UseSSL bool

	// Region is used by region-aware backends (e.g. AWS S3).
	// Setting it also skips the bucket-location lookup on first access.
	Region string
}

// Enabled reports whether an object store has been configured at all.
func (c *Config) Enabled() bool {
	return c != nil && c.Endpoint != ""
}
