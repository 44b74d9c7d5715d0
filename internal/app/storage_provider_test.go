package app

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/yungbote/storybook-backend/internal/platform/gcp"
	"github.com/yungbote/storybook-backend/internal/platform/logger"
)

func TestCheckStorageSettings(t *testing.T) {
	cases := []struct {
		name string
		mode string
		host string
		want StorageBootstrapErrorCode
	}{
		{"default gcs", "", "", ""},
		{"explicit gcs", "gcs", "", ""},
		{"emulator", "gcs_emulator", "http://fake-gcs:4443", ""},
		{"implicit emulator", "", "http://fake-gcs:4443", ""},
		{"bad mode", "s3", "", StorageBootstrapErrorInvalidMode},
		{"emulator without host", "gcs_emulator", "", StorageBootstrapErrorMissingEmulatorHost},
		{"emulator bad host", "gcs_emulator", "fake-gcs:4443", StorageBootstrapErrorInvalidEmulatorHost},
		{"implicit emulator bad host", "", "not-a-url", StorageBootstrapErrorInvalidEmulatorHost},
	}
	for _, tc := range cases {
		err := checkStorageSettings(tc.mode, tc.host)
		if tc.want == "" {
			if err != nil {
				t.Fatalf("%s: unexpected error %v", tc.name, err)
			}
			continue
		}
		if err == nil || err.Code != tc.want {
			t.Fatalf("%s: want=%q got=%v", tc.name, tc.want, err)
		}
	}
}

func TestResolveBucketServiceDisabledWithoutBucket(t *testing.T) {
	orig := newBucketService
	t.Cleanup(func() { newBucketService = orig })
	newBucketService = func(*logger.Logger) (gcp.BucketService, error) {
		t.Fatalf("bucket service should not be dialed")
		return nil, nil
	}

	got, err := resolveBucketService(logger.Nop(), Config{})
	if err != nil {
		t.Fatalf("resolveBucketService: %v", err)
	}
	if got != nil {
		t.Fatalf("bucket: want=nil got=%T", got)
	}
}

func TestResolveBucketServiceInvalidMode(t *testing.T) {
	_, err := resolveBucketService(logger.Nop(), Config{
		StoryBucketName:   "stories",
		ObjectStorageMode: "invalid",
	})
	var got *StorageBootstrapError
	if !errors.As(err, &got) {
		t.Fatalf("expected StorageBootstrapError, got=%T", err)
	}
	if got.Code != StorageBootstrapErrorInvalidMode {
		t.Fatalf("code: want=%q got=%q", StorageBootstrapErrorInvalidMode, got.Code)
	}
}

func TestResolveBucketServiceUsesConstructor(t *testing.T) {
	orig := newBucketService
	t.Cleanup(func() { newBucketService = orig })
	expected := &testBucketService{}
	newBucketService = func(*logger.Logger) (gcp.BucketService, error) { return expected, nil }

	got, err := resolveBucketService(logger.Nop(), Config{
		StoryBucketName:     "stories",
		ObjectStorageMode:   string(gcp.StorageModeGCSEmulator),
		StorageEmulatorHost: "http://fake-gcs:4443",
	})
	if err != nil {
		t.Fatalf("resolveBucketService: %v", err)
	}
	if got != expected {
		t.Fatalf("bucket: expected stub bucket instance")
	}
}

func TestResolveBucketServiceConnectFailed(t *testing.T) {
	orig := newBucketService
	t.Cleanup(func() { newBucketService = orig })
	cause := errors.New("dial tcp: connection refused")
	newBucketService = func(*logger.Logger) (gcp.BucketService, error) { return nil, cause }

	_, err := resolveBucketService(logger.Nop(), Config{StoryBucketName: "stories"})
	var got *StorageBootstrapError
	if !errors.As(err, &got) {
		t.Fatalf("expected StorageBootstrapError, got=%T", err)
	}
	if got.Code != StorageBootstrapErrorConnectFailed {
		t.Fatalf("code: want=%q got=%q", StorageBootstrapErrorConnectFailed, got.Code)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to unwrap")
	}
}

type testBucketService struct{}

func (t *testBucketService) UploadFile(ctx context.Context, category gcp.BucketCategory, key string, file io.Reader) error {
	return nil
}

func (t *testBucketService) DeleteFile(ctx context.Context, category gcp.BucketCategory, key string) error {
	return nil
}

func (t *testBucketService) DownloadFile(ctx context.Context, category gcp.BucketCategory, key string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (t *testBucketService) ListKeys(ctx context.Context, category gcp.BucketCategory, prefix string) ([]string, error) {
	return nil, nil
}

func (t *testBucketService) DeletePrefix(ctx context.Context, category gcp.BucketCategory, prefix string) error {
	return nil
}

func (t *testBucketService) GetPublicURL(category gcp.BucketCategory, key string) string {
	return ""
}
