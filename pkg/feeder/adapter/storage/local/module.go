package local

import (
	"go.uber.org/fx"

	storageAdapter "github.com/tigerroll/feeder/pkg/feeder/adapter/storage"
	storageConfig "github.com/tigerroll/feeder/pkg/feeder/adapter/storage/config"
	coreConfig "github.com/tigerroll/feeder/pkg/feeder/core/config"
)

// NewArtifactStorage builds the local connection holding extraction artifacts from feeder.artifact.
func NewArtifactStorage(cfg *coreConfig.Config) (storageAdapter.StorageConnection, error) {
	return NewLocalAdapter(storageConfig.StorageConfig{
		Type:       ProviderType,
		BaseDir:    cfg.Feeder.Artifact.BaseDir,
		BucketName: cfg.Feeder.Artifact.Bucket,
	}, "artifacts")
}

// Module provides the artifact storage connection.
var Module = fx.Options(
	fx.Provide(NewArtifactStorage),
)
