package gcp

import (
	"context"
	"fmt"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/yungbote/storybook-backend/internal/platform/ctxutil"
	"github.com/yungbote/storybook-backend/internal/platform/logger"
)

// PhotoCheck is the outcome of the child photo precheck.
type PhotoCheck struct {
	Faces    int    `json:"faces"`
	Adult    string `json:"adult"`
	Violence string `json:"violence"`
	OK       bool   `json:"ok"`
	Reason   string `json:"reason,omitempty"`
}

type FaceDetector interface {
	CheckPhoto(ctx context.Context, img []byte) (*PhotoCheck, error)
	Close() error
}

type faceDetector struct {
	log    *logger.Logger
	client *vision.ImageAnnotatorClient
}

func NewFaceDetector(log *logger.Logger) (FaceDetector, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	client, err := vision.NewImageAnnotatorClient(context.Background(), ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &faceDetector{log: log.With("service", "gcp.FaceDetector"), client: client}, nil
}

func (d *faceDetector) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Close()
}

func (d *faceDetector) CheckPhoto(ctx context.Context, img []byte) (*PhotoCheck, error) {
	if len(img) == 0 {
		return &PhotoCheck{Reason: "empty image"}, nil
	}
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image: &visionpb.Image{Content: img},
			Features: []*visionpb.Feature{
				{Type: visionpb.Feature_FACE_DETECTION, MaxResults: 5},
				{Type: visionpb.Feature_SAFE_SEARCH_DETECTION},
			},
		}},
	}
	resp, err := d.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return &PhotoCheck{Reason: "no annotation returned"}, nil
	}
	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return nil, fmt.Errorf("vision annotate error: %s", r0.Error.Message)
	}
	check := evaluatePhoto(r0)
	d.log.Debug("photo precheck", "faces", check.Faces, "ok", check.OK, "reason", check.Reason)
	return check, nil
}

// evaluatePhoto requires at least one face and rejects LIKELY or VERY_LIKELY
// adult or violent content.
func evaluatePhoto(r *visionpb.AnnotateImageResponse) *PhotoCheck {
	check := &PhotoCheck{Faces: len(r.GetFaceAnnotations())}
	if ss := r.GetSafeSearchAnnotation(); ss != nil {
		check.Adult = ss.GetAdult().String()
		check.Violence = ss.GetViolence().String()
		if unsafeLikelihood(ss.GetAdult()) || unsafeLikelihood(ss.GetViolence()) {
			check.Reason = "photo failed the safety check"
			return check
		}
	}
	if check.Faces == 0 {
		check.Reason = "no face detected in photo"
		return check
	}
	check.OK = true
	return check
}

func unsafeLikelihood(l visionpb.Likelihood) bool {
	return l == visionpb.Likelihood_LIKELY || l == visionpb.Likelihood_VERY_LIKELY
}
