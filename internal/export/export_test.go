package export

import (
	"context"
	"errors"
	"strings"
	"testing"

	"bauplan/api/internal/geo"
	"bauplan/api/internal/plan"
)

func testStorey() plan.Storey {
	return plan.Storey{ID: "storey_1", ProjectID: "proj_1", Name: "Ground Floor", RoomHeight: 3000}
}

func testWalls() []plan.Wall {
	return []plan.Wall{
		{ID: "wall_s", StoreyID: "storey_1", Start: geo.Point{X: 0, Y: 0}, End: geo.Point{X: 5000, Y: 0}, Thickness: 200, Height: 3000, Type: plan.WallStructural},
		{ID: "wall_e", StoreyID: "storey_1", Start: geo.Point{X: 5000, Y: 0}, End: geo.Point{X: 5000, Y: 4000}, Thickness: 200, Height: 3000, Type: plan.WallStructural},
		{ID: "wall_n", StoreyID: "storey_1", Start: geo.Point{X: 5000, Y: 4000}, End: geo.Point{X: 0, Y: 4000}, Thickness: 200, Height: 3000, Type: plan.WallStructural},
		{ID: "wall_w", StoreyID: "storey_1", Start: geo.Point{X: 0, Y: 4000}, End: geo.Point{X: 0, Y: 0}, Thickness: 100, Height: 3000, Type: plan.WallPartition},
		{ID: "wall_other", StoreyID: "storey_2", Start: geo.Point{X: 0, Y: 0}, End: geo.Point{X: 1000, Y: 0}, Thickness: 200, Height: 3000, Type: plan.WallStructural},
	}
}

func TestRenderStoreySVG(t *testing.T) {
	rooms := []plan.Room{
		{
			ID:       "room_1",
			StoreyID: "storey_1",
			Polygon: []geo.Point{
				{X: 0, Y: 0}, {X: 5000, Y: 0}, {X: 5000, Y: 4000}, {X: 0, Y: 4000},
			},
			FloorType: "screed",
			Height:    3000,
		},
	}
	doors := []plan.Door{
		{ID: "door_1", WallID: "wall_s", Width: 900, Height: 2100, Thickness: 200, Position: 0.5, Kind: plan.DoorSwing},
	}

	svg := RenderStoreySVG(testStorey(), testWalls(), rooms, doors)

	if !strings.HasPrefix(svg, "<svg") {
		t.Fatalf("expected svg document, got %q", svg[:20])
	}
	if got := strings.Count(svg, "<line"); got != 5 {
		t.Errorf("expected 4 wall lines plus 1 door gap, got %d", got)
	}
	if !strings.Contains(svg, "<polygon") {
		t.Error("expected room polygon")
	}
	if !strings.Contains(svg, "screed") {
		t.Error("expected room floor type label")
	}
	// Walls on other storeys stay out of the drawing, so the viewBox is
	// sized by the 5000x4000 footprint.
	if strings.Contains(svg, "wall_other") {
		t.Error("svg should not reference wall ids")
	}
}

func TestRenderStoreySVGEmptyPlan(t *testing.T) {
	svg := RenderStoreySVG(testStorey(), nil, nil, nil)
	if !strings.HasPrefix(svg, "<svg") || !strings.HasSuffix(strings.TrimSpace(svg), "</svg>") {
		t.Fatalf("expected well-formed empty svg, got %q", svg)
	}
}

func TestRenderPlanHTML(t *testing.T) {
	html, err := RenderPlanHTML(TemplateData{
		ProjectName: "Villa Example",
		StoreyName:  "Ground Floor",
		Elevation:   0,
		PlanSVG:     "<svg></svg>",
		WallCount:   4,
		RoomCount:   1,
	})
	if err != nil {
		t.Fatalf("RenderPlanHTML() error = %v", err)
	}
	if !strings.Contains(html, "Villa Example") {
		t.Error("expected project name in sheet")
	}
	if !strings.Contains(html, "<svg></svg>") {
		t.Error("expected svg embedded unescaped")
	}
	if !strings.Contains(html, "4 walls, 1 rooms") {
		t.Error("expected legend counts")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Villa Example Ground Floor", "Villa-Example-Ground-Floor"},
		{"a/b\\c:d", "abcd"},
		{"", "plan"},
		{strings.Repeat("x", 80), strings.Repeat("x", 50)},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	got := percentEncodeForDataURL("a b<c>&ü")
	if strings.Contains(got, " ") || strings.Contains(got, "+") {
		t.Errorf("spaces must be %%20 encoded, got %q", got)
	}
	if !strings.Contains(got, "%20") {
		t.Errorf("expected %%20 for space, got %q", got)
	}
	if strings.ContainsAny(got, "<>&") {
		t.Errorf("reserved characters must be encoded, got %q", got)
	}
}

type fakeExportStore struct {
	name    string
	nameErr error
	storeys []plan.Storey
	walls   []plan.Wall
	rooms   []plan.Room
	doors   []plan.Door
}

func (f *fakeExportStore) GetProjectName(ctx context.Context, id string) (string, error) {
	return f.name, f.nameErr
}
func (f *fakeExportStore) ListStoreys(ctx context.Context, projectID string) ([]plan.Storey, error) {
	return f.storeys, nil
}
func (f *fakeExportStore) ListWalls(ctx context.Context, projectID string) ([]plan.Wall, error) {
	return f.walls, nil
}
func (f *fakeExportStore) ListRooms(ctx context.Context, projectID string) ([]plan.Room, error) {
	return f.rooms, nil
}
func (f *fakeExportStore) ListDoors(ctx context.Context, projectID string) ([]plan.Door, error) {
	return f.doors, nil
}

func TestExportSVG(t *testing.T) {
	svc := NewService(&fakeExportStore{
		name:    "Villa Example",
		storeys: []plan.Storey{testStorey()},
		walls:   testWalls(),
	}, nil)

	result, err := svc.Export(context.Background(), Request{ProjectID: "proj_1", Format: FormatSVG})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if result.MimeType != "image/svg+xml" {
		t.Errorf("unexpected mime type %q", result.MimeType)
	}
	if result.Filename != "Villa-Example-Ground-Floor.svg" {
		t.Errorf("unexpected filename %q", result.Filename)
	}
	if !strings.HasPrefix(string(result.Data), "<svg") {
		t.Error("expected svg payload")
	}
}

func TestExportHTML(t *testing.T) {
	svc := NewService(&fakeExportStore{
		name:    "Villa Example",
		storeys: []plan.Storey{testStorey()},
		walls:   testWalls(),
	}, nil)

	result, err := svc.Export(context.Background(), Request{ProjectID: "proj_1", StoreyID: "storey_1", Format: FormatHTML})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if !strings.Contains(string(result.Data), "Ground Floor") {
		t.Error("expected storey name in sheet")
	}
}

func TestExportUnknownStorey(t *testing.T) {
	svc := NewService(&fakeExportStore{
		name:    "Villa Example",
		storeys: []plan.Storey{testStorey()},
	}, nil)

	_, err := svc.Export(context.Background(), Request{ProjectID: "proj_1", StoreyID: "storey_missing", Format: FormatSVG})
	if !errors.Is(err, ErrPlanUnavailable) {
		t.Fatalf("expected ErrPlanUnavailable, got %v", err)
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	svc := NewService(&fakeExportStore{
		name:    "Villa Example",
		storeys: []plan.Storey{testStorey()},
	}, nil)

	_, err := svc.Export(context.Background(), Request{ProjectID: "proj_1", Format: Format("xlsx")})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}
