package gcp

import (
	"testing"

	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
)

func TestEvaluatePhoto(t *testing.T) {
	face := &visionpb.FaceAnnotation{}
	cases := []struct {
		name string
		resp *visionpb.AnnotateImageResponse
		ok   bool
	}{
		{
			name: "one face, safe",
			resp: &visionpb.AnnotateImageResponse{
				FaceAnnotations: []*visionpb.FaceAnnotation{face},
				SafeSearchAnnotation: &visionpb.SafeSearchAnnotation{
					Adult:    visionpb.Likelihood_VERY_UNLIKELY,
					Violence: visionpb.Likelihood_UNLIKELY,
				},
			},
			ok: true,
		},
		{
			name: "no face",
			resp: &visionpb.AnnotateImageResponse{},
			ok:   false,
		},
		{
			name: "likely violence",
			resp: &visionpb.AnnotateImageResponse{
				FaceAnnotations: []*visionpb.FaceAnnotation{face},
				SafeSearchAnnotation: &visionpb.SafeSearchAnnotation{
					Violence: visionpb.Likelihood_LIKELY,
				},
			},
			ok: false,
		},
		{
			name: "possible adult is allowed",
			resp: &visionpb.AnnotateImageResponse{
				FaceAnnotations: []*visionpb.FaceAnnotation{face, face},
				SafeSearchAnnotation: &visionpb.SafeSearchAnnotation{
					Adult: visionpb.Likelihood_POSSIBLE,
				},
			},
			ok: true,
		},
	}
	for _, tc := range cases {
		got := evaluatePhoto(tc.resp)
		if got.OK != tc.ok {
			t.Fatalf("%s: want ok=%v got=%v (reason %q)", tc.name, tc.ok, got.OK, got.Reason)
		}
		if !got.OK && got.Reason == "" {
			t.Fatalf("%s: expected a reason", tc.name)
		}
	}
}
