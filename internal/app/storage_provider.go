package app

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/yungbote/storybook-backend/internal/platform/gcp"
	"github.com/yungbote/storybook-backend/internal/platform/logger"
)

var newBucketService = gcp.NewBucketService

type StorageBootstrapErrorCode string

const (
	StorageBootstrapErrorInvalidMode         StorageBootstrapErrorCode = "invalid_mode"
	StorageBootstrapErrorMissingEmulatorHost StorageBootstrapErrorCode = "missing_emulator_host"
	StorageBootstrapErrorInvalidEmulatorHost StorageBootstrapErrorCode = "invalid_emulator_host"
	StorageBootstrapErrorConnectFailed       StorageBootstrapErrorCode = "connect_failed"
)

type StorageBootstrapError struct {
	Code         StorageBootstrapErrorCode
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *StorageBootstrapError) Error() string {
	if e == nil {
		return "object storage bootstrap failed"
	}
	return fmt.Sprintf(
		"object storage bootstrap failed (code=%s mode=%q emulator_host=%q): %v",
		e.Code,
		e.Mode,
		e.EmulatorHost,
		e.Cause,
	)
}

func (e *StorageBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveBucketService returns a nil service when no story bucket is
// configured. Photos are then analyzed without being kept, illustrations
// become placeholders and exports fail with an external error.
func resolveBucketService(log *logger.Logger, cfg Config) (gcp.BucketService, error) {
	if strings.TrimSpace(cfg.StoryBucketName) == "" {
		log.Warn("STORY_GCS_BUCKET_NAME is not set; object storage disabled")
		return nil, nil
	}
	mode := strings.ToLower(strings.TrimSpace(cfg.ObjectStorageMode))
	host := strings.TrimSpace(cfg.StorageEmulatorHost)
	if err := checkStorageSettings(mode, host); err != nil {
		log.Error("Object storage settings rejected", "mode", mode, "emulator_host", host, "error_code", err.Code, "error", err)
		return nil, err
	}

	log.Info("Selecting object storage provider", "mode", mode, "emulator_host", host)
	bucket, err := newBucketService(log)
	if err != nil {
		wrapped := &StorageBootstrapError{
			Code:         StorageBootstrapErrorConnectFailed,
			Mode:         mode,
			EmulatorHost: host,
			Cause:        err,
		}
		log.Error("Object storage bootstrap failed", "mode", mode, "error_code", wrapped.Code, "error", err)
		return nil, wrapped
	}
	return bucket, nil
}

// checkStorageSettings mirrors gcp.StorageConfigFromEnv so a bad setting is
// reported with a stable code before any client is dialed.
func checkStorageSettings(mode, host string) *StorageBootstrapError {
	fail := func(code StorageBootstrapErrorCode, cause error) *StorageBootstrapError {
		return &StorageBootstrapError{Code: code, Mode: mode, EmulatorHost: host, Cause: cause}
	}
	switch gcp.StorageMode(mode) {
	case "", gcp.StorageModeGCS:
		if mode == "" && host != "" {
			return checkEmulatorHost(host, fail)
		}
		return nil
	case gcp.StorageModeGCSEmulator:
		if host == "" {
			return fail(StorageBootstrapErrorMissingEmulatorHost, errors.New("emulator mode requires STORAGE_EMULATOR_HOST"))
		}
		return checkEmulatorHost(host, fail)
	default:
		return fail(StorageBootstrapErrorInvalidMode, fmt.Errorf("unsupported object storage mode %q", mode))
	}
}

func checkEmulatorHost(host string, fail func(StorageBootstrapErrorCode, error) *StorageBootstrapError) *StorageBootstrapError {
	u, err := url.Parse(host)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fail(StorageBootstrapErrorInvalidEmulatorHost, fmt.Errorf("emulator host %q is not an absolute URL", host))
	}
	return nil
}
