package backup

import (
	"context"
	"fmt"

	"ispledger/internal/config"
	"ispledger/internal/log"
)

// Kind names a backup target implementation.
type Kind string

const (
	KindLocal  Kind = "local"
	KindDrive  Kind = "drive"
	KindS3     Kind = "s3"
	KindMemory Kind = "memory"
)

func (k Kind) IsValid() bool {
	switch k {
	case KindLocal, KindDrive, KindS3, KindMemory:
		return true
	}
	return false
}

func (k Kind) String() string { return string(k) }

// Config holds what NewTarget needs for every kind.
type Config struct {
	Kind     Kind
	LocalDir string
	Drive    DriveCredentials
	S3       S3Config
}

// FromAppConfig converts the application config to a target config.
func FromAppConfig(app *config.Config) (Config, error) {
	if app == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}
	kind := Kind(app.BackupTarget)
	if !kind.IsValid() {
		return Config{}, fmt.Errorf("invalid backup target in config: %s", app.BackupTarget)
	}
	return Config{
		Kind:     kind,
		LocalDir: app.BackupDir,
		Drive: DriveCredentials{
			ClientFile: app.GoogleOAuthClientFile,
			ClientJSON: app.GoogleOAuthClientJSON,
			TokenFile:  app.GoogleOAuthTokenFile,
			TokenJSON:  app.GoogleOAuthTokenJSON,
		},
		S3: S3Config{
			Bucket:    app.S3Bucket,
			Region:    app.S3Region,
			Endpoint:  app.S3Endpoint,
			AccessKey: app.S3AccessKey,
			SecretKey: app.S3SecretKey,
			Prefix:    app.BackupPrefix,
		},
	}, nil
}

// NewTarget creates the target selected by cfg.Kind.
func NewTarget(ctx context.Context, cfg Config, logger *log.Logger) (Target, error) {
	if logger == nil {
		logger = log.FromSlog(nil, log.ComponentBackup)
	}
	switch cfg.Kind {
	case KindLocal:
		t, err := NewLocalTarget(cfg.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize local backups: %w", err)
		}
		logger.Info("Initialized local backup target", "dir", cfg.LocalDir)
		return t, nil
	case KindDrive:
		t, err := NewDriveTarget(ctx, cfg.Drive)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Drive backups: %w", err)
		}
		logger.Info("Initialized Google Drive backup target")
		return t, nil
	case KindS3:
		t, err := NewS3Target(ctx, cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 backups: %w", err)
		}
		logger.Info("Initialized S3 backup target", "bucket", cfg.S3.Bucket, "prefix", cfg.S3.Prefix)
		return t, nil
	case KindMemory:
		logger.Info("Initialized in-memory backup target")
		return NewMemoryTarget(), nil
	default:
		return nil, fmt.Errorf("unsupported backup target: %s", cfg.Kind)
	}
}
