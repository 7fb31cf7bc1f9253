package gvision

import (
	"context"
	"errors"
	"image"
	"testing"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	gax "github.com/googleapis/gax-go/v2"
	statuspb "google.golang.org/genproto/googleapis/rpc/status"

	"github.com/lehigh-university-libraries/medocr/pkg/layout"
)

type fakeClient struct {
	resp *visionpb.BatchAnnotateImagesResponse
	err  error
	req  *visionpb.BatchAnnotateImagesRequest
}

func (f *fakeClient) BatchAnnotateImages(_ context.Context, req *visionpb.BatchAnnotateImagesRequest, _ ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error) {
	f.req = req
	return f.resp, f.err
}

func word(confidence float32, xy ...int32) *visionpb.Word {
	poly := &visionpb.BoundingPoly{}
	for i := 0; i+1 < len(xy); i += 2 {
		poly.Vertices = append(poly.Vertices, &visionpb.Vertex{X: xy[i], Y: xy[i+1]})
	}
	return &visionpb.Word{BoundingBox: poly, Confidence: confidence}
}

func annotation(words ...*visionpb.Word) *visionpb.BatchAnnotateImagesResponse {
	return &visionpb.BatchAnnotateImagesResponse{
		Responses: []*visionpb.AnnotateImageResponse{
			{
				FullTextAnnotation: &visionpb.TextAnnotation{
					Pages: []*visionpb.Page{
						{Blocks: []*visionpb.Block{
							{Paragraphs: []*visionpb.Paragraph{{Words: words}}},
						}},
					},
				},
			},
		},
	}
}

func TestDetect(t *testing.T) {
	client := &fakeClient{resp: annotation(
		word(0.92, 10, 20, 50, 20, 50, 40, 10, 40),
		word(0, 60, 20, 90, 20, 90, 40, 60, 40),
		word(0.5, 1, 1), // malformed polygon
	)}

	dets, err := NewDetector(client).Detect(context.Background(), image.NewGray(image.Rect(0, 0, 100, 50)))
	if err != nil {
		t.Fatalf("Detect() error: %v", err)
	}
	if len(dets) != 2 {
		t.Fatalf("got %d detections, want 2", len(dets))
	}

	wantQuad := layout.Quad{{X: 10, Y: 20}, {X: 50, Y: 20}, {X: 50, Y: 40}, {X: 10, Y: 40}}
	if dets[0].Quad != wantQuad {
		t.Errorf("quad = %v, want %v", dets[0].Quad, wantQuad)
	}
	if dets[0].Score < 0.919 || dets[0].Score > 0.921 {
		t.Errorf("score = %v, want 0.92", dets[0].Score)
	}
	if dets[1].Score != 1 {
		t.Errorf("missing confidence should score 1, got %v", dets[1].Score)
	}

	req := client.req.GetRequests()[0]
	if req.GetFeatures()[0].GetType() != visionpb.Feature_DOCUMENT_TEXT_DETECTION {
		t.Errorf("unexpected feature %v", req.GetFeatures()[0].GetType())
	}
	if hints := req.GetImageContext().GetLanguageHints(); len(hints) != 2 || hints[0] != "vi" {
		t.Errorf("unexpected language hints %v", hints)
	}
	if len(req.GetImage().GetContent()) == 0 {
		t.Error("image content was not sent")
	}
}

func TestDetectNormalizedVertices(t *testing.T) {
	w := &visionpb.Word{BoundingBox: &visionpb.BoundingPoly{
		NormalizedVertices: []*visionpb.NormalizedVertex{
			{X: 0.1, Y: 0.2}, {X: 0.5, Y: 0.2}, {X: 0.5, Y: 0.4}, {X: 0.1, Y: 0.4},
		},
	}}
	dets, err := NewDetector(&fakeClient{resp: annotation(w)}).Detect(context.Background(), image.NewGray(image.Rect(0, 0, 200, 100)))
	if err != nil {
		t.Fatalf("Detect() error: %v", err)
	}
	if len(dets) != 1 {
		t.Fatalf("got %d detections, want 1", len(dets))
	}
	box := layout.QuadToAxisBox(dets[0].Quad)
	if box.XMin < 19.9 || box.XMin > 20.1 || box.YMax < 39.9 || box.YMax > 40.1 {
		t.Errorf("unexpected box %+v", box)
	}
}

func TestDetectErrors(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeClient
	}{
		{"transport error", &fakeClient{err: errors.New("unavailable")}},
		{"no responses", &fakeClient{resp: &visionpb.BatchAnnotateImagesResponse{}}},
		{"api error", &fakeClient{resp: &visionpb.BatchAnnotateImagesResponse{
			Responses: []*visionpb.AnnotateImageResponse{{Error: &statuspb.Status{Code: 3, Message: "bad image"}}},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDetector(tt.client).Detect(context.Background(), image.NewGray(image.Rect(0, 0, 10, 10)))
			if err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestDetectNoText(t *testing.T) {
	client := &fakeClient{resp: &visionpb.BatchAnnotateImagesResponse{
		Responses: []*visionpb.AnnotateImageResponse{{}},
	}}
	dets, err := NewDetector(client).Detect(context.Background(), image.NewGray(image.Rect(0, 0, 10, 10)))
	if err != nil {
		t.Fatalf("Detect() error: %v", err)
	}
	if len(dets) != 0 {
		t.Errorf("expected no detections, got %d", len(dets))
	}
}
