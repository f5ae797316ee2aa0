package config

// StorageConfig holds configuration for a single storage connection.
type StorageConfig struct {
	Type       string `yaml:"type"`        // Type of storage. Only "local" is implemented.
	BucketName string `yaml:"bucket_name"` // Default bucket used when a call passes an empty bucket.
	BaseDir    string `yaml:"base_dir"`    // Base directory for local file system operations.
}
