package export

import (
	"context"
	"fmt"
	"html/template"
	"time"

	"bauplan/api/internal/plan"
)

// DataStore defines the plan data the exporter needs.
type DataStore interface {
	GetProjectName(ctx context.Context, id string) (string, error)
	ListStoreys(ctx context.Context, projectID string) ([]plan.Storey, error)
	ListWalls(ctx context.Context, projectID string) ([]plan.Wall, error)
	ListRooms(ctx context.Context, projectID string) ([]plan.Room, error)
	ListDoors(ctx context.Context, projectID string) ([]plan.Door, error)
}

// Service renders storey plans to the requested format.
type Service struct {
	store    DataStore
	uploader *Uploader // nil when object storage is not configured
}

// NewService creates an export service. uploader may be nil.
func NewService(store DataStore, uploader *Uploader) *Service {
	return &Service{store: store, uploader: uploader}
}

// Export generates a plan sheet in the requested format.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	projectName, err := s.store.GetProjectName(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanUnavailable, err)
	}

	storeys, err := s.store.ListStoreys(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("list storeys: %w", err)
	}
	storey, err := pickStorey(storeys, req.StoreyID)
	if err != nil {
		return nil, err
	}

	walls, err := s.store.ListWalls(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("list walls: %w", err)
	}
	rooms, err := s.store.ListRooms(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	doors, err := s.store.ListDoors(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("list doors: %w", err)
	}

	svg := RenderStoreySVG(storey, walls, rooms, doors)
	name := fmt.Sprintf("%s %s", projectName, storey.Name)

	var result *Result
	switch req.Format {
	case FormatSVG:
		result = &Result{
			Data:     []byte(svg),
			Filename: sanitizeFilename(name) + ".svg",
			MimeType: "image/svg+xml",
		}
	case FormatHTML, FormatPDF:
		html, err := s.renderSheet(projectName, storey, svg, walls, rooms)
		if err != nil {
			return nil, fmt.Errorf("render sheet: %w", err)
		}
		if req.Format == FormatHTML {
			result = &Result{
				Data:     []byte(html),
				Filename: sanitizeFilename(name) + ".html",
				MimeType: "text/html; charset=utf-8",
			}
		} else {
			result, err = exportPDF(html, name)
			if err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}

	if req.Upload && s.uploader != nil {
		url, err := s.uploader.Upload(ctx, req.ProjectID, result)
		if err != nil {
			return nil, fmt.Errorf("upload artifact: %w", err)
		}
		result.ObjectURL = url
	}
	return result, nil
}

func (s *Service) renderSheet(projectName string, storey plan.Storey, svg string, walls []plan.Wall, rooms []plan.Room) (string, error) {
	wallCount := 0
	for _, w := range walls {
		if w.StoreyID == storey.ID {
			wallCount++
		}
	}
	roomCount := 0
	for _, r := range rooms {
		if r.StoreyID == storey.ID {
			roomCount++
		}
	}

	return RenderPlanHTML(TemplateData{
		ProjectName: projectName,
		StoreyName:  storey.Name,
		Elevation:   storey.Elevation,
		PlanSVG:     template.HTML(svg),
		WallCount:   wallCount,
		RoomCount:   roomCount,
		GeneratedAt: time.Now(),
	})
}

func pickStorey(storeys []plan.Storey, storeyID string) (plan.Storey, error) {
	if len(storeys) == 0 {
		return plan.Storey{}, fmt.Errorf("%w: project has no storeys", ErrPlanUnavailable)
	}
	if storeyID == "" {
		storey, _ := plan.DefaultStorey(storeys)
		return storey, nil
	}
	for _, st := range storeys {
		if st.ID == storeyID {
			return st, nil
		}
	}
	return plan.Storey{}, fmt.Errorf("%w: storey %s not found", ErrPlanUnavailable, storeyID)
}
