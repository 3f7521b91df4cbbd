package app

import (
	"context"
	"errors"
	"log"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"bauplan/api/internal/config"
	"bauplan/api/internal/export"
	"bauplan/api/internal/geo"
	"bauplan/api/internal/plan"
	"bauplan/api/internal/search"
	"bauplan/api/internal/session"
	"bauplan/api/internal/snapshot"
	"bauplan/api/internal/store"
)

// PlanSession is the explicit editing session for one project: the lease
// holder, the active storey, the in-memory plan state and the undo/redo
// history. Every structural edit flows through it; the mutex serializes
// edits and overlapping ones are rejected with EDIT_IN_FLIGHT instead of
// queueing.
type PlanSession struct {
	ProjectID      string
	Editor         string
	ActiveStoreyID string
	OpenedAt       time.Time

	mu      sync.Mutex
	storeys []plan.Storey
	walls   []plan.Wall
	rooms   []plan.Room
	doors   []plan.Door
	history *plan.History
}

func (ps *PlanSession) begin() error {
	if !ps.mu.TryLock() {
		return domainError(http.StatusConflict, "EDIT_IN_FLIGHT", "another edit is currently being applied to this plan", nil)
	}
	return nil
}

func (ps *PlanSession) end() {
	ps.mu.Unlock()
}

// view is safe to call without holding the session mutex.
func (ps *PlanSession) view() SessionView {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.viewLocked()
}

func (ps *PlanSession) viewLocked() SessionView {
	return SessionView{
		ProjectID:      ps.ProjectID,
		Editor:         ps.Editor,
		ActiveStoreyID: ps.ActiveStoreyID,
		OpenedAt:       ps.OpenedAt,
		WallCount:      len(ps.walls),
		RoomCount:      len(ps.rooms),
		DoorCount:      len(ps.doors),
		CanUndo:        ps.history.CanUndo(),
		CanRedo:        ps.history.CanRedo(),
	}
}

type SessionView struct {
	ProjectID      string    `json:"projectId"`
	Editor         string    `json:"editor"`
	ActiveStoreyID string    `json:"activeStoreyId"`
	OpenedAt       time.Time `json:"openedAt"`
	WallCount      int       `json:"wallCount"`
	RoomCount      int       `json:"roomCount"`
	DoorCount      int       `json:"doorCount"`
	CanUndo        bool      `json:"canUndo"`
	CanRedo        bool      `json:"canRedo"`
}

// EditResult reports what one structural edit did to the network: walls
// created and deleted (splits and merges included), doors reattached or
// dropped along the way, and where the history stands afterwards.
type EditResult struct {
	Created      []plan.Wall `json:"created"`
	Deleted      []string    `json:"deleted"`
	DoorsMoved   []plan.Door `json:"doorsMoved,omitempty"`
	DoorsRemoved []string    `json:"doorsRemoved,omitempty"`
	CanUndo      bool        `json:"canUndo"`
	CanRedo      bool        `json:"canRedo"`
}

// PlanView is the read-only projection of one storey: its own geometry
// plus ghost walls and ghost areas from the rest of the stack and the
// derived joints.
type PlanView struct {
	Storey     plan.Storey      `json:"storey"`
	Storeys    []plan.Storey    `json:"storeys"`
	Walls      []plan.Wall      `json:"walls"`
	Rooms      []plan.Room      `json:"rooms"`
	Doors      []plan.Door      `json:"doors"`
	GhostWalls []plan.Wall      `json:"ghostWalls"`
	GhostAreas []plan.GhostArea `json:"ghostAreas"`
	Joints     []plan.Joint     `json:"joints"`
}

type SnapView struct {
	Point  geo.Point    `json:"point"`
	Kind   geo.SnapKind `json:"kind"`
	WallID string       `json:"wallId,omitempty"`
}

type CreateProjectInput struct {
	Name string `json:"name"`
}

type OpenSessionInput struct {
	Editor string `json:"editor"`
}

type AddWallInput struct {
	StoreyID  string    `json:"storeyId"`
	Start     geo.Point `json:"start"`
	End       geo.Point `json:"end"`
	Thickness float64   `json:"thickness"`
	Height    float64   `json:"height"`
	Type      string    `json:"type"`
	Material  string    `json:"material"`
}

type SplitWallInput struct {
	At geo.Point `json:"at"`
}

type MergeWallsInput struct {
	WallA string `json:"wallA"`
	WallB string `json:"wallB"`
}

type SnapInput struct {
	StoreyID string    `json:"storeyId"`
	Point    geo.Point `json:"point"`
}

type CreateStoreyInput struct {
	Name          string  `json:"name"`
	Elevation     float64 `json:"elevation"`
	Position      int     `json:"position"`
	RoomHeight    float64 `json:"roomHeight"`
	SlabThickness float64 `json:"slabThickness"`
}

type UpdateStoreyInput struct {
	Name          *string  `json:"name"`
	Elevation     *float64 `json:"elevation"`
	Position      *int     `json:"position"`
	RoomHeight    *float64 `json:"roomHeight"`
	SlabThickness *float64 `json:"slabThickness"`
}

type CreateRoomInput struct {
	StoreyID       string      `json:"storeyId"`
	Polygon        []geo.Point `json:"polygon"`
	FloorType      string      `json:"floorType"`
	FloorThickness float64     `json:"floorThickness"`
	Height         float64     `json:"height"`
	BaseElevation  *float64    `json:"baseElevation"`
	LabelAnchor    *geo.Point  `json:"labelAnchor"`
}

type UpdateRoomInput struct {
	Polygon        []geo.Point `json:"polygon"`
	FloorType      *string     `json:"floorType"`
	FloorThickness *float64    `json:"floorThickness"`
	Height         *float64    `json:"height"`
	BaseElevation  *float64    `json:"baseElevation"`
	LabelAnchor    *geo.Point  `json:"labelAnchor"`
}

type DuplicateRoomInput struct {
	TargetStoreyID string   `json:"targetStoreyId"`
	BaseElevation  *float64 `json:"baseElevation"`
}

type CreateDoorInput struct {
	WallID    string  `json:"wallId"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	Thickness float64 `json:"thickness"`
	Position  float64 `json:"position"`
	Kind      string  `json:"kind"`
	Double    bool    `json:"double"`
	Side      string  `json:"side"`
	Direction string  `json:"direction"`
}

type UpdateDoorInput struct {
	Width     *float64 `json:"width"`
	Height    *float64 `json:"height"`
	Thickness *float64 `json:"thickness"`
	Position  *float64 `json:"position"`
	Kind      *string  `json:"kind"`
	Double    *bool    `json:"double"`
	Side      *string  `json:"side"`
	Direction *string  `json:"direction"`
}

type SavePointInput struct {
	Message string `json:"message"`
	Tag     string `json:"tag"`
}

type dataStore interface {
	Ping(context.Context) error
	CreateProject(context.Context, string) (store.Project, error)
	GetProject(context.Context, string) (store.Project, error)
	ListProjects(context.Context) ([]store.Project, error)
	CreateStorey(context.Context, plan.Storey) (plan.Storey, error)
	UpdateStorey(context.Context, plan.Storey) (plan.Storey, error)
	ListStoreys(context.Context, string) ([]plan.Storey, error)
	CreateWall(context.Context, plan.WallSpec) (plan.Wall, error)
	UpdateWall(context.Context, plan.Wall) (plan.Wall, error)
	DeleteWall(context.Context, string) error
	RestoreWall(context.Context, plan.Wall) error
	ListWalls(context.Context, string) ([]plan.Wall, error)
	MergeWalls(context.Context, string, string) (plan.Wall, error)
	CreateRoom(context.Context, plan.Room) (plan.Room, error)
	UpdateRoom(context.Context, plan.Room) (plan.Room, error)
	DeleteRoom(context.Context, string) error
	ListRooms(context.Context, string) ([]plan.Room, error)
	CreateDoor(context.Context, plan.Door) (plan.Door, error)
	SaveDoor(context.Context, plan.Door) (plan.Door, error)
	UpdateDoor(context.Context, plan.Door) (plan.Door, error)
	DeleteDoor(context.Context, string) error
	ListDoors(context.Context, string) ([]plan.Door, error)
}

type leaseStore interface {
	Acquire(ctx context.Context, projectID, editor string) (session.Lease, error)
	Renew(ctx context.Context, projectID, editor string) error
	Release(ctx context.Context, projectID, editor string) error
	Holder(ctx context.Context, projectID string) (session.Lease, bool, error)
	Ping(ctx context.Context) error
}

type snapshotService interface {
	EnsureProjectRepo(projectID string, initial snapshot.PlanDocument, author string) error
	Commit(projectID string, doc snapshot.PlanDocument, author, message string) (store.SnapshotInfo, error)
	Head(projectID string) (snapshot.PlanDocument, store.SnapshotInfo, error)
	GetByHash(projectID, hash string) (snapshot.PlanDocument, error)
	History(projectID string, limit int) ([]store.SnapshotInfo, error)
	Tag(projectID, hash, name string) error
}

type Service struct {
	cfg       config.Config
	store     dataStore
	snapshots snapshotService
	leases    leaseStore
	search    *search.Service
	export    *export.Service

	sessMu   sync.Mutex
	sessions map[string]*PlanSession
}

func New(cfg config.Config, dataStore *store.PostgresStore, snapshots *snapshot.Service, leases *session.RedisStore, searchService *search.Service, exportService *export.Service) *Service {
	return &Service{
		cfg:       cfg,
		store:     dataStore,
		snapshots: snapshots,
		leases:    leases,
		search:    searchService,
		export:    exportService,
		sessions:  make(map[string]*PlanSession),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// PingLeases checks the lease backend for the readiness probe.
func (s *Service) PingLeases(ctx context.Context) error {
	return s.leases.Ping(ctx)
}

// Bootstrap seeds a demo project on an empty database so a fresh
// deployment has something to open.
func (s *Service) Bootstrap(ctx context.Context) error {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return err
	}
	if len(projects) > 0 {
		return nil
	}

	project, err := s.store.CreateProject(ctx, "Villa am Hang")
	if err != nil {
		return err
	}

	ground, err := s.store.CreateStorey(ctx, plan.Storey{
		ProjectID:     project.ID,
		Name:          "Ground Floor",
		Elevation:     0,
		Position:      0,
		RoomHeight:    s.cfg.DefaultRoomHeight,
		SlabThickness: s.cfg.DefaultSlab,
	})
	if err != nil {
		return err
	}
	if _, err := s.store.CreateStorey(ctx, plan.Storey{
		ProjectID:     project.ID,
		Name:          "Upper Floor",
		Elevation:     s.cfg.DefaultRoomHeight + s.cfg.DefaultSlab,
		Position:      1,
		RoomHeight:    s.cfg.DefaultRoomHeight,
		SlabThickness: s.cfg.DefaultSlab,
	}); err != nil {
		return err
	}

	corners := []geo.Point{{X: 0, Y: 0}, {X: 9000, Y: 0}, {X: 9000, Y: 6000}, {X: 0, Y: 6000}}
	var walls []plan.Wall
	for i := range corners {
		w, err := s.store.CreateWall(ctx, plan.WallSpec{
			StoreyID:  ground.ID,
			Start:     corners[i],
			End:       corners[(i+1)%len(corners)],
			Thickness: s.cfg.DefaultThickness,
			Height:    s.cfg.DefaultWallHeight,
			Type:      plan.WallStructural,
			Material:  "brick",
		})
		if err != nil {
			return err
		}
		walls = append(walls, w)
	}

	ids, err := plan.MatchRoomWalls(corners, walls, s.cfg.GeometryEps)
	if err != nil {
		return err
	}
	room, err := s.store.CreateRoom(ctx, plan.Room{
		StoreyID:      ground.ID,
		Polygon:       corners,
		WallIDs:       ids,
		FloorType:     "screed",
		Height:        ground.RoomHeight,
		BaseElevation: ground.Elevation,
	})
	if err != nil {
		return err
	}
	if _, err := s.store.CreateDoor(ctx, plan.Door{
		WallID:   walls[0].ID,
		Width:    885,
		Height:   2010,
		Position: 0.5,
		Kind:     plan.DoorSwing,
		Side:     "left",
	}); err != nil {
		return err
	}

	doc := snapshot.PlanDocument{
		Storeys: []plan.Storey{ground},
		Walls:   walls,
		Rooms:   []plan.Room{room},
	}
	if err := s.snapshots.EnsureProjectRepo(project.ID, doc, "bauplan"); err != nil {
		return err
	}

	if s.search != nil {
		records := make([]search.WallRecord, 0, len(walls))
		for _, w := range walls {
			records = append(records, wallRecord(project.ID, w))
		}
		s.search.ReindexAll(
			[]search.ProjectRecord{{ID: project.ID, Name: project.Name}},
			[]search.StoreyRecord{{ID: ground.ID, Name: ground.Name, ProjectID: project.ID}},
			records,
		)
	}
	return nil
}

// --- projects ---

func (s *Service) CreateProject(ctx context.Context, input CreateProjectInput) (store.Project, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return store.Project{}, domainError(http.StatusBadRequest, "VALIDATION", "project name is required", nil)
	}
	project, err := s.store.CreateProject(ctx, name)
	if err != nil {
		return store.Project{}, err
	}
	if err := s.snapshots.EnsureProjectRepo(project.ID, snapshot.PlanDocument{}, "bauplan"); err != nil {
		log.Printf(`{"level":"warn","msg":"snapshot repo init failed","projectId":%q,"error":%q}`, project.ID, err.Error())
	}
	if s.search != nil {
		s.search.IndexProject(search.ProjectRecord{ID: project.ID, Name: project.Name})
	}
	return project, nil
}

func (s *Service) GetProject(ctx context.Context, id string) (store.Project, error) {
	return s.store.GetProject(ctx, id)
}

func (s *Service) ListProjects(ctx context.Context) ([]store.Project, error) {
	return s.store.ListProjects(ctx)
}

// --- sessions ---

// OpenSession acquires the project's edit lease and loads the plan into
// memory. Reopening by the current holder refreshes the lease and keeps
// the existing history.
func (s *Service) OpenSession(ctx context.Context, projectID string, input OpenSessionInput) (SessionView, error) {
	editor := strings.TrimSpace(input.Editor)
	if editor == "" {
		return SessionView{}, domainError(http.StatusBadRequest, "VALIDATION", "editor is required", nil)
	}
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return SessionView{}, err
	}
	if _, err := s.leases.Acquire(ctx, projectID, editor); err != nil {
		return SessionView{}, err
	}

	s.sessMu.Lock()
	if existing, ok := s.sessions[projectID]; ok && existing.Editor == editor {
		s.sessMu.Unlock()
		return existing.view(), nil
	}
	s.sessMu.Unlock()

	storeys, err := s.store.ListStoreys(ctx, projectID)
	if err != nil {
		return SessionView{}, err
	}
	walls, err := s.store.ListWalls(ctx, projectID)
	if err != nil {
		return SessionView{}, err
	}
	rooms, err := s.store.ListRooms(ctx, projectID)
	if err != nil {
		return SessionView{}, err
	}
	doors, err := s.store.ListDoors(ctx, projectID)
	if err != nil {
		return SessionView{}, err
	}

	ps := &PlanSession{
		ProjectID: projectID,
		Editor:    editor,
		OpenedAt:  time.Now().UTC(),
		storeys:   storeys,
		walls:     walls,
		rooms:     rooms,
		doors:     doors,
		history:   plan.NewHistory(walls),
	}
	if def, ok := plan.DefaultStorey(storeys); ok {
		ps.ActiveStoreyID = def.ID
	}

	s.sessMu.Lock()
	s.sessions[projectID] = ps
	s.sessMu.Unlock()
	return ps.view(), nil
}

func (s *Service) CloseSession(ctx context.Context, projectID, editor string) error {
	s.sessMu.Lock()
	ps, ok := s.sessions[projectID]
	if ok && ps.Editor == editor {
		delete(s.sessions, projectID)
	}
	s.sessMu.Unlock()
	if ok && ps.Editor != editor {
		return domainError(http.StatusLocked, "PLAN_LOCKED", "the plan is being edited by someone else", map[string]any{"editor": ps.Editor})
	}
	return s.leases.Release(ctx, projectID, editor)
}

func (s *Service) SessionInfo(ctx context.Context, projectID string) (SessionView, error) {
	s.sessMu.Lock()
	ps, ok := s.sessions[projectID]
	s.sessMu.Unlock()
	if ok {
		return ps.view(), nil
	}
	lease, held, err := s.leases.Holder(ctx, projectID)
	if err != nil {
		return SessionView{}, err
	}
	if !held {
		return SessionView{}, domainError(http.StatusNotFound, "NO_SESSION", "no editing session is open for this project", nil)
	}
	return SessionView{ProjectID: projectID, Editor: lease.Editor, OpenedAt: lease.AcquiredAt}, nil
}

func (s *Service) session(projectID, editor string) (*PlanSession, error) {
	s.sessMu.Lock()
	ps, ok := s.sessions[projectID]
	s.sessMu.Unlock()
	if !ok {
		return nil, domainError(http.StatusConflict, "NO_SESSION", "no editing session is open for this project", nil)
	}
	if ps.Editor != editor {
		return nil, domainError(http.StatusLocked, "PLAN_LOCKED", "the plan is being edited by someone else", map[string]any{"editor": ps.Editor})
	}
	return ps, nil
}

// beginEdit resolves the session, takes the edit slot and keeps the lease
// alive. Callers must defer ps.end().
func (s *Service) beginEdit(ctx context.Context, projectID, editor string) (*PlanSession, error) {
	ps, err := s.session(projectID, editor)
	if err != nil {
		return nil, err
	}
	if err := ps.begin(); err != nil {
		return nil, err
	}
	if err := s.leases.Renew(ctx, projectID, editor); err != nil {
		if errors.Is(err, session.ErrLeaseNotHeld) {
			if _, aerr := s.leases.Acquire(ctx, projectID, editor); aerr != nil {
				ps.end()
				return nil, aerr
			}
		} else {
			ps.end()
			return nil, err
		}
	}
	return ps, nil
}

// --- walls ---

func (s *Service) AddWall(ctx context.Context, projectID, editor string, input AddWallInput) (EditResult, error) {
	ps, err := s.beginEdit(ctx, projectID, editor)
	if err != nil {
		return EditResult{}, err
	}
	defer ps.end()

	storeyID := input.StoreyID
	if storeyID == "" {
		storeyID = ps.ActiveStoreyID
	}
	if _, ok := plan.StoreyByID(ps.storeys, storeyID); !ok {
		return EditResult{}, plan.ErrStoreyNotFound
	}
	wallType, err := parseWallType(input.Type)
	if err != nil {
		return EditResult{}, err
	}

	diff, err := plan.AddWall(ps.walls, input.Start, input.End, plan.AddOptions{
		StoreyID:         storeyID,
		Thickness:        input.Thickness,
		Height:           input.Height,
		Type:             wallType,
		Material:         input.Material,
		Eps:              s.cfg.GeometryEps,
		DefaultThickness: s.cfg.DefaultThickness,
		DefaultHeight:    s.cfg.DefaultWallHeight,
	})
	if err != nil {
		return EditResult{}, err
	}

	before := copyWalls(ps.walls)
	result, err := s.applyDiff(ctx, ps, diff)
	if err != nil {
		return EditResult{}, err
	}
	result.DoorsMoved, result.DoorsRemoved = s.revalidateDoors(ctx, ps, before)
	s.rematchRooms(ctx, ps, before)
	ps.history.Push(ps.walls)
	s.indexWalls(projectID, result.Created, result.Deleted)
	result.CanUndo, result.CanRedo = ps.history.CanUndo(), ps.history.CanRedo()
	return result, nil
}

// DeleteWall removes a wall, then runs the merge pass to a fixed point so
// splits that only existed because of the deleted wall heal back into
// single walls. Individual merge failures are logged and skipped; the
// network stays consistent either way.
func (s *Service) DeleteWall(ctx context.Context, projectID, editor, wallID string) (EditResult, error) {
	ps, err := s.beginEdit(ctx, projectID, editor)
	if err != nil {
		return EditResult{}, err
	}
	defer ps.end()

	target, ok := plan.FindWall(ps.walls, wallID)
	if !ok {
		return EditResult{}, plan.ErrWallNotFound
	}
	seeds := plan.DeleteCheckPoints(ps.walls, target, s.cfg.GeometryEps)
	beforeAll := copyWalls(ps.walls)

	// Doors on the wall go with it; the row cascade covers persistence.
	var doorsRemoved []string
	var keptDoors []plan.Door
	for _, d := range ps.doors {
		if d.WallID == target.ID {
			doorsRemoved = append(doorsRemoved, d.ID)
			continue
		}
		keptDoors = append(keptDoors, d)
	}
	ps.doors = keptDoors

	if err := s.store.DeleteWall(ctx, target.ID); err != nil {
		return EditResult{}, err
	}
	ps.walls = removeWallsByID(ps.walls, []string{target.ID})

	before := copyWalls(ps.walls)
	settled := plan.ConvergeMerges(ps.walls, seeds, target.StoreyID, s.cfg.GeometryEps, func(a, b plan.Wall) (plan.Wall, error) {
		merged, err := s.store.MergeWalls(ctx, a.ID, b.ID)
		if err != nil {
			log.Printf(`{"level":"warn","msg":"merge skipped","wallA":%q,"wallB":%q,"error":%q}`, a.ID, b.ID, err.Error())
		}
		return merged, err
	})
	ps.walls = settled

	mergedAway, mergedWalls := diffWallSets(before, settled)
	result := EditResult{
		Created: mergedWalls,
		Deleted: append([]string{target.ID}, mergedAway...),
	}
	result.DoorsMoved, result.DoorsRemoved = s.revalidateDoors(ctx, ps, before)
	result.DoorsRemoved = append(doorsRemoved, result.DoorsRemoved...)
	s.rematchRooms(ctx, ps, beforeAll)
	ps.history.Push(ps.walls)
	s.indexWalls(projectID, result.Created, result.Deleted)
	result.CanUndo, result.CanRedo = ps.history.CanUndo(), ps.history.CanRedo()
	return result, nil
}

func (s *Service) SplitWall(ctx context.Context, projectID, editor, wallID string, input SplitWallInput) (EditResult, error) {
	ps, err := s.beginEdit(ctx, projectID, editor)
	if err != nil {
		return EditResult{}, err
	}
	defer ps.end()

	if _, ok := plan.FindWall(ps.walls, wallID); !ok {
		return EditResult{}, plan.ErrWallNotFound
	}
	diff, err := plan.SplitWall(ps.walls, wallID, input.At, plan.SplitOptions{
		Eps:               s.cfg.GeometryEps,
		EndpointExclusion: s.cfg.EndpointExclusion,
		MinLength:         s.cfg.MinWallLength,
	})
	if err != nil {
		return EditResult{}, err
	}

	before := copyWalls(ps.walls)
	result, err := s.applyDiff(ctx, ps, diff)
	if err != nil {
		return EditResult{}, err
	}
	result.DoorsMoved, result.DoorsRemoved = s.revalidateDoors(ctx, ps, before)
	s.rematchRooms(ctx, ps, before)
	ps.history.Push(ps.walls)
	s.indexWalls(projectID, result.Created, result.Deleted)
	result.CanUndo, result.CanRedo = ps.history.CanUndo(), ps.history.CanRedo()
	return result, nil
}

func (s *Service) MergeWalls(ctx context.Context, projectID, editor string, input MergeWallsInput) (EditResult, error) {
	ps, err := s.beginEdit(ctx, projectID, editor)
	if err != nil {
		return EditResult{}, err
	}
	defer ps.end()

	a, ok := plan.FindWall(ps.walls, input.WallA)
	if !ok {
		return EditResult{}, plan.ErrWallNotFound
	}
	b, ok := plan.FindWall(ps.walls, input.WallB)
	if !ok {
		return EditResult{}, plan.ErrWallNotFound
	}
	if err := plan.CanMerge(a, b, s.cfg.GeometryEps); err != nil {
		return EditResult{}, err
	}

	merged, err := s.store.MergeWalls(ctx, a.ID, b.ID)
	if err != nil {
		return EditResult{}, err
	}
	before := copyWalls(ps.walls)
	ps.walls = append(removeWallsByID(ps.walls, []string{a.ID, b.ID}), merged)

	result := EditResult{Created: []plan.Wall{merged}, Deleted: []string{a.ID, b.ID}}
	result.DoorsMoved, result.DoorsRemoved = s.revalidateDoors(ctx, ps, before)
	s.rematchRooms(ctx, ps, before)
	ps.history.Push(ps.walls)
	s.indexWalls(projectID, result.Created, result.Deleted)
	result.CanUndo, result.CanRedo = ps.history.CanUndo(), ps.history.CanRedo()
	return result, nil
}

// Snap resolves a raw cursor position against the active storey's walls:
// endpoints win over wall bodies, both within the configured tolerance.
func (s *Service) Snap(projectID, editor string, input SnapInput) (SnapView, error) {
	ps, err := s.session(projectID, editor)
	if err != nil {
		return SnapView{}, err
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()

	storeyID := input.StoreyID
	if storeyID == "" {
		storeyID = ps.ActiveStoreyID
	}
	walls := wallsOnStorey(ps.walls, storeyID)
	segs := make([]geo.Segment, len(walls))
	for i, w := range walls {
		segs[i] = w.Segment()
	}
	r := geo.Snap(input.Point, segs, s.cfg.SnapTolerance)
	view := SnapView{Point: r.Point, Kind: r.Kind}
	if r.Index >= 0 {
		view.WallID = walls[r.Index].ID
	}
	return view, nil
}

// --- storeys ---

func (s *Service) CreateStorey(ctx context.Context, projectID string, input CreateStoreyInput) (plan.Storey, error) {
	if strings.TrimSpace(input.Name) == "" {
		return plan.Storey{}, domainError(http.StatusBadRequest, "VALIDATION", "storey name is required", nil)
	}
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return plan.Storey{}, err
	}
	storey := plan.Storey{
		ProjectID:     projectID,
		Name:          input.Name,
		Elevation:     input.Elevation,
		Position:      input.Position,
		RoomHeight:    input.RoomHeight,
		SlabThickness: input.SlabThickness,
	}
	if storey.RoomHeight <= 0 {
		storey.RoomHeight = s.cfg.DefaultRoomHeight
	}
	if storey.SlabThickness <= 0 {
		storey.SlabThickness = s.cfg.DefaultSlab
	}
	created, err := s.store.CreateStorey(ctx, storey)
	if err != nil {
		return plan.Storey{}, err
	}

	s.sessMu.Lock()
	if ps, ok := s.sessions[projectID]; ok {
		ps.mu.Lock()
		ps.storeys = append(ps.storeys, created)
		if ps.ActiveStoreyID == "" {
			ps.ActiveStoreyID = created.ID
		}
		ps.mu.Unlock()
	}
	s.sessMu.Unlock()

	if s.search != nil {
		s.search.IndexStorey(search.StoreyRecord{ID: created.ID, Name: created.Name, ProjectID: projectID})
	}
	return created, nil
}

func (s *Service) UpdateStorey(ctx context.Context, projectID, storeyID string, input UpdateStoreyInput) (plan.Storey, error) {
	storeys, err := s.store.ListStoreys(ctx, projectID)
	if err != nil {
		return plan.Storey{}, err
	}
	storey, ok := plan.StoreyByID(storeys, storeyID)
	if !ok {
		return plan.Storey{}, plan.ErrStoreyNotFound
	}
	if input.Name != nil && strings.TrimSpace(*input.Name) != "" {
		storey.Name = *input.Name
	}
	if input.Elevation != nil {
		storey.Elevation = *input.Elevation
	}
	if input.Position != nil {
		storey.Position = *input.Position
	}
	if input.RoomHeight != nil && *input.RoomHeight > 0 {
		storey.RoomHeight = *input.RoomHeight
	}
	if input.SlabThickness != nil && *input.SlabThickness > 0 {
		storey.SlabThickness = *input.SlabThickness
	}
	updated, err := s.store.UpdateStorey(ctx, storey)
	if err != nil {
		return plan.Storey{}, err
	}

	s.sessMu.Lock()
	if ps, ok := s.sessions[projectID]; ok {
		ps.mu.Lock()
		for i := range ps.storeys {
			if ps.storeys[i].ID == updated.ID {
				ps.storeys[i] = updated
			}
		}
		ps.mu.Unlock()
	}
	s.sessMu.Unlock()

	if s.search != nil {
		s.search.IndexStorey(search.StoreyRecord{ID: updated.ID, Name: updated.Name, ProjectID: projectID})
	}
	return updated, nil
}

func (s *Service) ListStoreys(ctx context.Context, projectID string) ([]plan.Storey, error) {
	storeys, err := s.store.ListStoreys(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return plan.SortStoreys(storeys), nil
}

func (s *Service) ActivateStorey(ctx context.Context, projectID, editor, storeyID string) (SessionView, error) {
	ps, err := s.session(projectID, editor)
	if err != nil {
		return SessionView{}, err
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if _, ok := plan.StoreyByID(ps.storeys, storeyID); !ok {
		return SessionView{}, plan.ErrStoreyNotFound
	}
	ps.ActiveStoreyID = storeyID
	return ps.viewLocked(), nil
}

// --- rooms ---

func (s *Service) CreateRoom(ctx context.Context, projectID, editor string, input CreateRoomInput) (plan.Room, error) {
	ps, err := s.beginEdit(ctx, projectID, editor)
	if err != nil {
		return plan.Room{}, err
	}
	defer ps.end()

	storeyID := input.StoreyID
	if storeyID == "" {
		storeyID = ps.ActiveStoreyID
	}
	storey, ok := plan.StoreyByID(ps.storeys, storeyID)
	if !ok {
		return plan.Room{}, plan.ErrStoreyNotFound
	}

	ghostWalls, ghostAreas := plan.Ghosts(ps.walls, ps.rooms, ps.storeys, storeyID, s.cfg.GeometryEps)
	if err := plan.CheckAgainstGhosts(input.Polygon, ghostAreas); err != nil {
		return plan.Room{}, err
	}
	pool := append(wallsOnStorey(ps.walls, storeyID), ghostWalls...)
	ids, err := plan.MatchRoomWalls(input.Polygon, pool, s.cfg.GeometryEps)
	if err != nil {
		return plan.Room{}, err
	}

	base := storey.Elevation
	if input.BaseElevation != nil {
		base = math.Max(*input.BaseElevation, storey.Elevation)
	}
	height := input.Height
	if height <= 0 {
		height = storey.RoomHeight
	}
	room, err := s.store.CreateRoom(ctx, plan.Room{
		StoreyID:       storeyID,
		Polygon:        input.Polygon,
		WallIDs:        ids,
		FloorType:      input.FloorType,
		FloorThickness: input.FloorThickness,
		Height:         height,
		BaseElevation:  base,
		LabelAnchor:    input.LabelAnchor,
	})
	if err != nil {
		return plan.Room{}, err
	}
	ps.rooms = append(ps.rooms, room)
	return room, nil
}

func (s *Service) UpdateRoom(ctx context.Context, projectID, editor, roomID string, input UpdateRoomInput) (plan.Room, error) {
	ps, err := s.beginEdit(ctx, projectID, editor)
	if err != nil {
		return plan.Room{}, err
	}
	defer ps.end()

	idx := -1
	for i := range ps.rooms {
		if ps.rooms[i].ID == roomID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return plan.Room{}, plan.ErrRoomNotFound
	}
	room := ps.rooms[idx]

	if len(input.Polygon) > 0 {
		ghostWalls, ghostAreas := plan.Ghosts(ps.walls, ps.rooms, ps.storeys, room.StoreyID, s.cfg.GeometryEps)
		if err := plan.CheckAgainstGhosts(input.Polygon, ghostAreas); err != nil {
			return plan.Room{}, err
		}
		pool := append(wallsOnStorey(ps.walls, room.StoreyID), ghostWalls...)
		ids, err := plan.MatchRoomWalls(input.Polygon, pool, s.cfg.GeometryEps)
		if err != nil {
			return plan.Room{}, err
		}
		room.Polygon = input.Polygon
		room.WallIDs = ids
	}
	if input.FloorType != nil {
		room.FloorType = *input.FloorType
	}
	if input.FloorThickness != nil {
		room.FloorThickness = *input.FloorThickness
	}
	if input.Height != nil && *input.Height > 0 {
		room.Height = *input.Height
	}
	if input.BaseElevation != nil {
		storey, ok := plan.StoreyByID(ps.storeys, room.StoreyID)
		if !ok {
			return plan.Room{}, plan.ErrStoreyNotFound
		}
		room.BaseElevation = math.Max(*input.BaseElevation, storey.Elevation)
	}
	if input.LabelAnchor != nil {
		room.LabelAnchor = input.LabelAnchor
	}

	updated, err := s.store.UpdateRoom(ctx, room)
	if err != nil {
		return plan.Room{}, err
	}
	ps.rooms[idx] = updated
	return updated, nil
}

func (s *Service) DeleteRoom(ctx context.Context, projectID, editor, roomID string) error {
	ps, err := s.beginEdit(ctx, projectID, editor)
	if err != nil {
		return err
	}
	defer ps.end()

	if err := s.store.DeleteRoom(ctx, roomID); err != nil {
		return err
	}
	var kept []plan.Room
	for _, r := range ps.rooms {
		if r.ID != roomID {
			kept = append(kept, r)
		}
	}
	ps.rooms = kept
	return nil
}

// DuplicateRoom projects a room onto another storey. Walls that are
// shared and tall enough are reused; the rest are copied onto the target
// storey, which counts as a structural edit.
func (s *Service) DuplicateRoom(ctx context.Context, projectID, editor, roomID string, input DuplicateRoomInput) (plan.Room, error) {
	ps, err := s.beginEdit(ctx, projectID, editor)
	if err != nil {
		return plan.Room{}, err
	}
	defer ps.end()

	var source plan.Room
	found := false
	for _, r := range ps.rooms {
		if r.ID == roomID {
			source, found = r, true
			break
		}
	}
	if !found {
		return plan.Room{}, plan.ErrRoomNotFound
	}

	dup, err := plan.PlanRoomDuplicate(source, ps.walls, ps.rooms, ps.storeys, input.TargetStoreyID, input.BaseElevation, s.cfg.GeometryEps)
	if err != nil {
		return plan.Room{}, err
	}

	wallIDs := append([]string(nil), dup.ReuseWallIDs...)
	var created []plan.Wall
	for _, spec := range dup.CreateWalls {
		w, err := s.store.CreateWall(ctx, spec)
		if err != nil {
			return plan.Room{}, err
		}
		created = append(created, w)
		wallIDs = append(wallIDs, w.ID)
	}
	ps.walls = append(ps.walls, created...)

	room, err := s.store.CreateRoom(ctx, plan.Room{
		StoreyID:       input.TargetStoreyID,
		Polygon:        append([]geo.Point(nil), source.Polygon...),
		WallIDs:        wallIDs,
		FloorType:      source.FloorType,
		FloorThickness: source.FloorThickness,
		Height:         dup.Height,
		BaseElevation:  dup.BaseElevation,
		LabelAnchor:    source.LabelAnchor,
	})
	if err != nil {
		return plan.Room{}, err
	}
	ps.rooms = append(ps.rooms, room)
	if len(created) > 0 {
		ps.history.Push(ps.walls)
		s.indexWalls(projectID, created, nil)
	}
	return room, nil
}

// --- doors ---

func (s *Service) CreateDoor(ctx context.Context, projectID, editor string, input CreateDoorInput) (plan.Door, error) {
	ps, err := s.beginEdit(ctx, projectID, editor)
	if err != nil {
		return plan.Door{}, err
	}
	defer ps.end()

	wall, ok := plan.FindWall(ps.walls, input.WallID)
	if !ok {
		return plan.Door{}, plan.ErrWallNotFound
	}
	kind, err := parseDoorKind(input.Kind)
	if err != nil {
		return plan.Door{}, err
	}
	door := plan.Door{
		WallID:    input.WallID,
		Width:     input.Width,
		Height:    input.Height,
		Thickness: input.Thickness,
		Position:  input.Position,
		Kind:      kind,
		Double:    input.Double,
		Side:      input.Side,
		Direction: input.Direction,
	}
	if door.Height <= 0 {
		door.Height = 2010
	}
	if door.Thickness <= 0 {
		door.Thickness = wall.Thickness
	}
	if err := validateDoorFit(door, wall, s.cfg.GeometryEps); err != nil {
		return plan.Door{}, err
	}

	created, err := s.store.CreateDoor(ctx, door)
	if err != nil {
		return plan.Door{}, err
	}
	ps.doors = append(ps.doors, created)
	return created, nil
}

func (s *Service) UpdateDoor(ctx context.Context, projectID, editor, doorID string, input UpdateDoorInput) (plan.Door, error) {
	ps, err := s.beginEdit(ctx, projectID, editor)
	if err != nil {
		return plan.Door{}, err
	}
	defer ps.end()

	idx := -1
	for i := range ps.doors {
		if ps.doors[i].ID == doorID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return plan.Door{}, domainError(http.StatusNotFound, "NOT_FOUND", "door not found", nil)
	}
	door := ps.doors[idx]

	if input.Width != nil {
		door.Width = *input.Width
	}
	if input.Height != nil && *input.Height > 0 {
		door.Height = *input.Height
	}
	if input.Thickness != nil && *input.Thickness > 0 {
		door.Thickness = *input.Thickness
	}
	if input.Position != nil {
		door.Position = *input.Position
	}
	if input.Kind != nil {
		kind, err := parseDoorKind(*input.Kind)
		if err != nil {
			return plan.Door{}, err
		}
		door.Kind = kind
	}
	if input.Double != nil {
		door.Double = *input.Double
	}
	if input.Side != nil {
		door.Side = *input.Side
	}
	if input.Direction != nil {
		door.Direction = *input.Direction
	}

	wall, ok := plan.FindWall(ps.walls, door.WallID)
	if !ok {
		return plan.Door{}, plan.ErrWallNotFound
	}
	if err := validateDoorFit(door, wall, s.cfg.GeometryEps); err != nil {
		return plan.Door{}, err
	}

	updated, err := s.store.UpdateDoor(ctx, door)
	if err != nil {
		return plan.Door{}, err
	}
	ps.doors[idx] = updated
	return updated, nil
}

func (s *Service) DeleteDoor(ctx context.Context, projectID, editor, doorID string) error {
	ps, err := s.beginEdit(ctx, projectID, editor)
	if err != nil {
		return err
	}
	defer ps.end()

	if err := s.store.DeleteDoor(ctx, doorID); err != nil {
		return err
	}
	var kept []plan.Door
	for _, d := range ps.doors {
		if d.ID != doorID {
			kept = append(kept, d)
		}
	}
	ps.doors = kept
	return nil
}

// --- history ---

func (s *Service) Undo(ctx context.Context, projectID, editor string) (EditResult, error) {
	ps, err := s.beginEdit(ctx, projectID, editor)
	if err != nil {
		return EditResult{}, err
	}
	defer ps.end()

	target, ok := ps.history.Undo()
	if !ok {
		return EditResult{}, domainError(http.StatusConflict, "NOTHING_TO_UNDO", "already at the oldest recorded state", nil)
	}
	return s.restoreWalls(ctx, ps, target)
}

func (s *Service) Redo(ctx context.Context, projectID, editor string) (EditResult, error) {
	ps, err := s.beginEdit(ctx, projectID, editor)
	if err != nil {
		return EditResult{}, err
	}
	defer ps.end()

	target, ok := ps.history.Redo()
	if !ok {
		return EditResult{}, domainError(http.StatusConflict, "NOTHING_TO_REDO", "already at the newest recorded state", nil)
	}
	return s.restoreWalls(ctx, ps, target)
}

// restoreWalls reconciles the persisted network with a history snapshot.
// Snapshots keep the original wall ids, so room and door references stay
// valid across a restore. Doors removed by the original edit are not
// resurrected.
func (s *Service) restoreWalls(ctx context.Context, ps *PlanSession, target []plan.Wall) (EditResult, error) {
	beforeWalls := copyWalls(ps.walls)
	current := make(map[string]bool, len(ps.walls))
	for _, w := range ps.walls {
		current[w.ID] = true
	}
	want := make(map[string]bool, len(target))
	for _, w := range target {
		want[w.ID] = true
	}

	var result EditResult
	for _, w := range target {
		if !current[w.ID] {
			if err := s.store.RestoreWall(ctx, w); err != nil {
				return EditResult{}, err
			}
			result.Created = append(result.Created, w)
		}
	}
	for _, w := range ps.walls {
		if !want[w.ID] {
			if err := s.store.DeleteWall(ctx, w.ID); err != nil && !store.IsNotFound(err) {
				return EditResult{}, err
			}
			result.Deleted = append(result.Deleted, w.ID)
		}
	}

	ps.walls = copyWalls(target)

	// The wall cascade dropped doors on deleted walls.
	var kept []plan.Door
	for _, d := range ps.doors {
		if _, ok := plan.FindWall(ps.walls, d.WallID); ok {
			kept = append(kept, d)
			continue
		}
		result.DoorsRemoved = append(result.DoorsRemoved, d.ID)
	}
	ps.doors = kept

	s.rematchRooms(ctx, ps, beforeWalls)
	s.indexWalls(ps.ProjectID, result.Created, result.Deleted)
	result.CanUndo, result.CanRedo = ps.history.CanUndo(), ps.history.CanRedo()
	return result, nil
}

// --- save points ---

// SavePoint commits the current plan to the project's snapshot archive
// and optionally tags it as a named save point.
func (s *Service) SavePoint(ctx context.Context, projectID, editor string, input SavePointInput) (store.SnapshotInfo, error) {
	ps, err := s.session(projectID, editor)
	if err != nil {
		return store.SnapshotInfo{}, err
	}
	ps.mu.Lock()
	doc := snapshot.PlanDocument{
		Storeys: append([]plan.Storey(nil), ps.storeys...),
		Walls:   copyWalls(ps.walls),
		Rooms:   append([]plan.Room(nil), ps.rooms...),
		Doors:   append([]plan.Door(nil), ps.doors...),
	}
	ps.mu.Unlock()

	message := strings.TrimSpace(input.Message)
	if message == "" {
		message = "Save point"
	}
	info, err := s.snapshots.Commit(projectID, doc, editor, message)
	if err != nil {
		return store.SnapshotInfo{}, err
	}
	if tag := strings.TrimSpace(input.Tag); tag != "" {
		if err := s.snapshots.Tag(projectID, info.Hash, tag); err != nil {
			return store.SnapshotInfo{}, err
		}
	}
	if s.search != nil {
		go s.search.ReindexAllFromPG(context.Background())
	}
	return info, nil
}

func (s *Service) SavePointHistory(ctx context.Context, projectID string, limit int) ([]store.SnapshotInfo, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return s.snapshots.History(projectID, limit)
}

// GetSavePoint returns the plan as it was at a commit hash or tag name.
// It is a read, not a restore; the live plan is untouched.
func (s *Service) GetSavePoint(ctx context.Context, projectID, ref string) (snapshot.PlanDocument, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return snapshot.PlanDocument{}, err
	}
	return s.snapshots.GetByHash(projectID, ref)
}

// --- views, search, export ---

// StoreyView reads the persisted plan and projects it onto one storey.
// It needs no session; viewers see the same state editors persist.
func (s *Service) StoreyView(ctx context.Context, projectID, storeyID string) (PlanView, error) {
	storeys, err := s.store.ListStoreys(ctx, projectID)
	if err != nil {
		return PlanView{}, err
	}
	if storeyID == "" {
		def, ok := plan.DefaultStorey(storeys)
		if !ok {
			return PlanView{}, plan.ErrStoreyNotFound
		}
		storeyID = def.ID
	}
	storey, ok := plan.StoreyByID(storeys, storeyID)
	if !ok {
		return PlanView{}, plan.ErrStoreyNotFound
	}

	walls, err := s.store.ListWalls(ctx, projectID)
	if err != nil {
		return PlanView{}, err
	}
	rooms, err := s.store.ListRooms(ctx, projectID)
	if err != nil {
		return PlanView{}, err
	}
	doors, err := s.store.ListDoors(ctx, projectID)
	if err != nil {
		return PlanView{}, err
	}

	ghostWalls, ghostAreas := plan.Ghosts(walls, rooms, storeys, storeyID, s.cfg.GeometryEps)
	storeyWalls := wallsOnStorey(walls, storeyID)

	wallHere := make(map[string]bool, len(storeyWalls))
	for _, w := range storeyWalls {
		wallHere[w.ID] = true
	}
	var storeyRooms []plan.Room
	for _, r := range rooms {
		if r.StoreyID == storeyID {
			storeyRooms = append(storeyRooms, r)
		}
	}
	var storeyDoors []plan.Door
	for _, d := range doors {
		if wallHere[d.WallID] {
			storeyDoors = append(storeyDoors, d)
		}
	}

	return PlanView{
		Storey:     storey,
		Storeys:    plan.SortStoreys(storeys),
		Walls:      storeyWalls,
		Rooms:      storeyRooms,
		Doors:      storeyDoors,
		GhostWalls: ghostWalls,
		GhostAreas: ghostAreas,
		Joints:     plan.Joints(walls, storeyID, s.cfg.GeometryEps),
	}, nil
}

func (s *Service) Search(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

func (s *Service) Export(ctx context.Context, req export.Request) (*export.Result, error) {
	if s.export == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "export is not configured", nil)
	}
	return s.export.Export(ctx, req)
}

// --- edit plumbing ---

// applyDiff persists a diff in order, creates first so no wall a door or
// room depends on disappears before its replacement exists. A failed
// create rolls the earlier creates back.
func (s *Service) applyDiff(ctx context.Context, ps *PlanSession, diff plan.Diff) (EditResult, error) {
	var created []plan.Wall
	for _, spec := range diff.Create {
		w, err := s.store.CreateWall(ctx, spec)
		if err != nil {
			for _, u := range created {
				if derr := s.store.DeleteWall(ctx, u.ID); derr != nil {
					log.Printf(`{"level":"error","msg":"rollback of created wall failed","wallId":%q,"error":%q}`, u.ID, derr.Error())
				}
			}
			return EditResult{}, err
		}
		created = append(created, w)
	}
	for _, id := range diff.Delete {
		if err := s.store.DeleteWall(ctx, id); err != nil && !store.IsNotFound(err) {
			return EditResult{}, err
		}
	}
	ps.walls = append(removeWallsByID(ps.walls, diff.Delete), created...)
	return EditResult{Created: created, Deleted: diff.Delete}, nil
}

// revalidateDoors reconciles doors after the network changed shape under
// them. Reattachments are upserts because the wall cascade may already
// have taken the row.
func (s *Service) revalidateDoors(ctx context.Context, ps *PlanSession, before []plan.Wall) (moved []plan.Door, removed []string) {
	updates, drop := plan.RevalidateDoors(ps.doors, before, ps.walls, s.cfg.GeometryEps)

	dropped := make(map[string]bool, len(drop))
	for _, id := range drop {
		dropped[id] = true
		if err := s.store.DeleteDoor(ctx, id); err != nil && !store.IsNotFound(err) {
			log.Printf(`{"level":"error","msg":"door delete failed","doorId":%q,"error":%q}`, id, err.Error())
		}
	}

	byDoor := make(map[string]plan.DoorUpdate, len(updates))
	for _, u := range updates {
		byDoor[u.DoorID] = u
	}

	var kept []plan.Door
	for _, d := range ps.doors {
		if dropped[d.ID] {
			removed = append(removed, d.ID)
			continue
		}
		if u, ok := byDoor[d.ID]; ok {
			d.WallID = u.WallID
			d.Position = u.Position
			saved, err := s.store.SaveDoor(ctx, d)
			if err != nil {
				log.Printf(`{"level":"error","msg":"door reattach failed","doorId":%q,"error":%q}`, d.ID, err.Error())
				removed = append(removed, d.ID)
				continue
			}
			d = saved
			moved = append(moved, saved)
		}
		kept = append(kept, d)
	}
	ps.doors = kept
	return moved, removed
}

// rematchRooms rewrites room wall references after the network changed
// shape under them. A reference to a replaced wall is remapped to the
// walls now covering the same span, so splits hand the room its pieces
// and merges hand it the healed wall. References to walls that are fully
// gone are dropped.
func (s *Service) rematchRooms(ctx context.Context, ps *PlanSession, before []plan.Wall) {
	eps := s.cfg.GeometryEps
	for i := range ps.rooms {
		room := ps.rooms[i]
		stale := false
		for _, id := range room.WallIDs {
			if _, ok := plan.FindWall(ps.walls, id); !ok {
				stale = true
				break
			}
		}
		if !stale {
			continue
		}

		seen := make(map[string]bool)
		var ids []string
		keep := func(id string) {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
		for _, id := range room.WallIDs {
			if _, ok := plan.FindWall(ps.walls, id); ok {
				keep(id)
				continue
			}
			old, ok := plan.FindWall(before, id)
			if !ok {
				continue
			}
			for _, w := range ps.walls {
				if w.StoreyID != old.StoreyID {
					continue
				}
				if coversSpan(w.Segment(), old.Segment(), eps) || coversSpan(old.Segment(), w.Segment(), eps) {
					keep(w.ID)
				}
			}
		}
		sort.Strings(ids)
		room.WallIDs = ids

		updated, err := s.store.UpdateRoom(ctx, room)
		if err != nil {
			log.Printf(`{"level":"error","msg":"room rematch persist failed","roomId":%q,"error":%q}`, room.ID, err.Error())
			continue
		}
		ps.rooms[i] = updated
	}
}

// coversSpan reports whether inner lies entirely on outer.
func coversSpan(inner, outer geo.Segment, eps float64) bool {
	return onSegment(inner.A, outer, eps) && onSegment(inner.B, outer, eps)
}

func onSegment(p geo.Point, s geo.Segment, eps float64) bool {
	return geo.PointsEqual(geo.ProjectOntoSegment(p, s), p, eps)
}

func (s *Service) indexWalls(projectID string, created []plan.Wall, deleted []string) {
	if s.search == nil {
		return
	}
	for _, w := range created {
		s.search.IndexWall(wallRecord(projectID, w))
	}
	for _, id := range deleted {
		s.search.DeleteWall(id)
	}
}

func wallRecord(projectID string, w plan.Wall) search.WallRecord {
	return search.WallRecord{
		ID:        w.ID,
		Material:  w.Material,
		WallType:  string(w.Type),
		StoreyID:  w.StoreyID,
		ProjectID: projectID,
	}
}

func parseWallType(raw string) (plan.WallType, error) {
	switch plan.WallType(raw) {
	case "":
		return plan.WallStructural, nil
	case plan.WallStructural:
		return plan.WallStructural, nil
	case plan.WallPartition:
		return plan.WallPartition, nil
	}
	return "", domainError(http.StatusBadRequest, "VALIDATION", "unknown wall type", map[string]any{"type": raw})
}

func parseDoorKind(raw string) (plan.DoorKind, error) {
	switch plan.DoorKind(raw) {
	case "":
		return plan.DoorSwing, nil
	case plan.DoorSwing:
		return plan.DoorSwing, nil
	case plan.DoorSlide:
		return plan.DoorSlide, nil
	}
	return "", domainError(http.StatusBadRequest, "VALIDATION", "unknown door kind", map[string]any{"kind": raw})
}

// validateDoorFit checks the opening lies fully on the wall body.
func validateDoorFit(door plan.Door, wall plan.Wall, eps float64) error {
	if door.Width <= 0 {
		return domainError(http.StatusBadRequest, "VALIDATION", "door width must be positive", nil)
	}
	if door.Position < 0 || door.Position > 1 {
		return domainError(http.StatusBadRequest, "VALIDATION", "door position must be within [0,1]", nil)
	}
	length := wall.Segment().Length()
	center := door.Position * length
	if center-door.Width/2 < -eps || center+door.Width/2 > length+eps {
		return domainError(http.StatusUnprocessableEntity, "DOOR_DOES_NOT_FIT", "door opening extends past the wall", map[string]any{
			"wallId": wall.ID, "wallLength": length, "width": door.Width,
		})
	}
	return nil
}

func wallsOnStorey(walls []plan.Wall, storeyID string) []plan.Wall {
	var out []plan.Wall
	for _, w := range walls {
		if w.StoreyID == storeyID {
			out = append(out, w)
		}
	}
	return out
}

func removeWallsByID(walls []plan.Wall, ids []string) []plan.Wall {
	if len(ids) == 0 {
		return walls
	}
	gone := make(map[string]bool, len(ids))
	for _, id := range ids {
		gone[id] = true
	}
	var out []plan.Wall
	for _, w := range walls {
		if !gone[w.ID] {
			out = append(out, w)
		}
	}
	return out
}

func copyWalls(walls []plan.Wall) []plan.Wall {
	return append([]plan.Wall(nil), walls...)
}

// diffWallSets reports what changed between two states of the network.
func diffWallSets(before, after []plan.Wall) (removed []string, added []plan.Wall) {
	inAfter := make(map[string]bool, len(after))
	for _, w := range after {
		inAfter[w.ID] = true
	}
	inBefore := make(map[string]bool, len(before))
	for _, w := range before {
		inBefore[w.ID] = true
	}
	for _, w := range before {
		if !inAfter[w.ID] {
			removed = append(removed, w.ID)
		}
	}
	for _, w := range after {
		if !inBefore[w.ID] {
			added = append(added, w)
		}
	}
	return removed, added
}
