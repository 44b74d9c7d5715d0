package gcp

import "testing"

func TestGetPublicURL(t *testing.T) {
	cases := []struct {
		name     string
		cfg      StorageConfig
		bucket   bucketConfig
		category BucketCategory
		key      string
		want     string
	}{
		{
			name:     "gcs default",
			cfg:      StorageConfig{Mode: StorageModeGCS},
			bucket:   bucketConfig{name: "story-bucket"},
			category: BucketCategoryIllustration,
			key:      "illustrations/s/0.webp",
			want:     "https://storage.googleapis.com/story-bucket/illustrations/s/0.webp",
		},
		{
			name:     "cdn domain",
			cfg:      StorageConfig{Mode: StorageModeGCS},
			bucket:   bucketConfig{name: "story-bucket", cdnDomain: "cdn.example.com"},
			category: BucketCategoryExport,
			key:      "/exports/s/book.pdf",
			want:     "https://cdn.example.com/exports/s/book.pdf",
		},
		{
			name:     "public base url",
			cfg:      StorageConfig{Mode: StorageModeGCS, PublicBaseURL: "http://localhost:4443"},
			bucket:   bucketConfig{name: "story-bucket"},
			category: BucketCategoryPhoto,
			key:      "photos/u/1.png",
			want:     "http://localhost:4443/story-bucket/photos/u/1.png",
		},
		{
			name:     "emulator media endpoint",
			cfg:      StorageConfig{Mode: StorageModeGCSEmulator, EmulatorHost: "http://fake-gcs:4443"},
			bucket:   bucketConfig{name: "story-bucket"},
			category: BucketCategoryPhoto,
			key:      "photos/u/1.png",
			want:     "http://fake-gcs:4443/storage/v1/b/story-bucket/o/photos%2Fu%2F1.png?alt=media",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bs := &bucketService{cfg: tc.cfg, buckets: map[BucketCategory]bucketConfig{tc.category: tc.bucket}}
			if got := bs.GetPublicURL(tc.category, tc.key); got != tc.want {
				t.Fatalf("GetPublicURL: want=%q got=%q", tc.want, got)
			}
		})
	}
}

func TestContentTypeForKey(t *testing.T) {
	cases := map[string]string{
		"a.png":           "image/png",
		"a.JPG":           "image/jpeg",
		"a.webp?x=1":      "image/webp",
		"book.pdf":        "application/pdf",
		"placeholder.svg": "image/svg+xml",
		"noext":           "",
	}
	for key, want := range cases {
		if got := ContentTypeForKey(key); got != want {
			t.Fatalf("ContentTypeForKey(%q): want=%q got=%q", key, want, got)
		}
	}
}
