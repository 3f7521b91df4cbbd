package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"bauplan/api/internal/geo"
	"bauplan/api/internal/plan"
	"bauplan/api/internal/util"
)

// PostgresStore is the persistence service: it owns record ids and is the
// only component that invents them. The geometry core proposes diffs; this
// store turns them into rows.
type PostgresStore struct {
	db  *sql.DB
	eps float64
}

func NewPostgresStore(db *sql.DB, eps float64) *PostgresStore {
	return &PostgresStore{db: db, eps: eps}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- projects ---

func (s *PostgresStore) CreateProject(ctx context.Context, name string) (Project, error) {
	p := Project{ID: util.NewID("proj"), Name: name}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO projects (id, name) VALUES ($1, $2)
		RETURNING created_at
	`, p.ID, p.Name).Scan(&p.CreatedAt)
	if err != nil {
		return Project{}, fmt.Errorf("insert project: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) GetProject(ctx context.Context, id string) (Project, error) {
	var p Project
	err := s.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM projects WHERE id=$1`, id).
		Scan(&p.ID, &p.Name, &p.CreatedAt)
	if err != nil {
		return Project{}, err
	}
	return p, nil
}

// GetProjectName is the narrow lookup the exporter uses.
func (s *PostgresStore) GetProjectName(ctx context.Context, id string) (string, error) {
	project, err := s.GetProject(ctx, id)
	if err != nil {
		return "", err
	}
	return project.Name, nil
}

func (s *PostgresStore) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM projects ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// --- storeys ---

func (s *PostgresStore) CreateStorey(ctx context.Context, storey plan.Storey) (plan.Storey, error) {
	storey.ID = util.NewID("storey")
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO storeys (id, project_id, name, elevation, sort_order, room_height, slab_thickness)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, storey.ID, storey.ProjectID, storey.Name, storey.Elevation, storey.Position, storey.RoomHeight, storey.SlabThickness)
	if err != nil {
		return plan.Storey{}, fmt.Errorf("insert storey: %w", err)
	}
	return storey, nil
}

func (s *PostgresStore) UpdateStorey(ctx context.Context, storey plan.Storey) (plan.Storey, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE storeys SET name=$2, elevation=$3, sort_order=$4, room_height=$5, slab_thickness=$6
		WHERE id=$1
	`, storey.ID, storey.Name, storey.Elevation, storey.Position, storey.RoomHeight, storey.SlabThickness)
	if err != nil {
		return plan.Storey{}, fmt.Errorf("update storey: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return plan.Storey{}, sql.ErrNoRows
	}
	return storey, nil
}

func (s *PostgresStore) ListStoreys(ctx context.Context, projectID string) ([]plan.Storey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, name, elevation, sort_order, room_height, slab_thickness
		FROM storeys WHERE project_id=$1
		ORDER BY sort_order, elevation, id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list storeys: %w", err)
	}
	defer rows.Close()

	var storeys []plan.Storey
	for rows.Next() {
		var st plan.Storey
		if err := rows.Scan(&st.ID, &st.ProjectID, &st.Name, &st.Elevation, &st.Position, &st.RoomHeight, &st.SlabThickness); err != nil {
			return nil, err
		}
		storeys = append(storeys, st)
	}
	return storeys, rows.Err()
}

// --- walls ---

func (s *PostgresStore) CreateWall(ctx context.Context, spec plan.WallSpec) (plan.Wall, error) {
	w := plan.Wall{
		ID:        util.NewID("wall"),
		StoreyID:  spec.StoreyID,
		Start:     spec.Start,
		End:       spec.End,
		Thickness: spec.Thickness,
		Height:    spec.Height,
		Type:      spec.Type,
		Material:  spec.Material,
	}
	if err := s.insertWall(ctx, s.db, w); err != nil {
		return plan.Wall{}, err
	}
	return w, nil
}

// RestoreWall re-inserts a wall under its original id. Undo and redo use
// it so wall ids stay stable across history restores and room and door
// references keep resolving.
func (s *PostgresStore) RestoreWall(ctx context.Context, w plan.Wall) error {
	return s.insertWall(ctx, s.db, w)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) insertWall(ctx context.Context, db execer, w plan.Wall) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO walls (id, storey_id, start_x, start_y, end_x, end_y, thickness, height, wall_type, material)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, w.ID, w.StoreyID, w.Start.X, w.Start.Y, w.End.X, w.End.Y, w.Thickness, w.Height, string(w.Type), w.Material)
	if err != nil {
		return fmt.Errorf("insert wall: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateWall(ctx context.Context, w plan.Wall) (plan.Wall, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE walls SET start_x=$2, start_y=$3, end_x=$4, end_y=$5, thickness=$6, height=$7, wall_type=$8, material=$9
		WHERE id=$1
	`, w.ID, w.Start.X, w.Start.Y, w.End.X, w.End.Y, w.Thickness, w.Height, string(w.Type), w.Material)
	if err != nil {
		return plan.Wall{}, fmt.Errorf("update wall: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return plan.Wall{}, sql.ErrNoRows
	}
	return w, nil
}

func (s *PostgresStore) DeleteWall(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM walls WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete wall: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) ListWalls(ctx context.Context, projectID string) ([]plan.Wall, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT w.id, w.storey_id, w.start_x, w.start_y, w.end_x, w.end_y, w.thickness, w.height, w.wall_type, w.material
		FROM walls w JOIN storeys s ON s.id = w.storey_id
		WHERE s.project_id=$1
		ORDER BY w.created_at, w.id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list walls: %w", err)
	}
	defer rows.Close()

	var walls []plan.Wall
	for rows.Next() {
		var w plan.Wall
		var wallType string
		if err := rows.Scan(&w.ID, &w.StoreyID, &w.Start.X, &w.Start.Y, &w.End.X, &w.End.Y, &w.Thickness, &w.Height, &wallType, &w.Material); err != nil {
			return nil, err
		}
		w.Type = plan.WallType(wallType)
		walls = append(walls, w)
	}
	return walls, rows.Err()
}

// MergeWalls validates that two walls are mergeable and atomically
// replaces them with one wall spanning their far endpoints. Validation
// failures come back as the plan sentinels so callers can report why the
// merge was refused.
func (s *PostgresStore) MergeWalls(ctx context.Context, idA, idB string) (plan.Wall, error) {
	a, err := s.getWall(ctx, idA)
	if err != nil {
		return plan.Wall{}, fmt.Errorf("load wall %s: %w", idA, err)
	}
	b, err := s.getWall(ctx, idB)
	if err != nil {
		return plan.Wall{}, fmt.Errorf("load wall %s: %w", idB, err)
	}

	spec, err := plan.MergedSpec(a, b, s.eps)
	if err != nil {
		return plan.Wall{}, err
	}
	merged := plan.Wall{
		ID:        util.NewID("wall"),
		StoreyID:  spec.StoreyID,
		Start:     spec.Start,
		End:       spec.End,
		Thickness: spec.Thickness,
		Height:    spec.Height,
		Type:      spec.Type,
		Material:  spec.Material,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return plan.Wall{}, fmt.Errorf("begin merge tx: %w", err)
	}
	if err := s.insertWall(ctx, tx, merged); err != nil {
		_ = tx.Rollback()
		return plan.Wall{}, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM walls WHERE id IN ($1, $2)`, idA, idB); err != nil {
		_ = tx.Rollback()
		return plan.Wall{}, fmt.Errorf("delete merged walls: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return plan.Wall{}, fmt.Errorf("commit merge: %w", err)
	}
	return merged, nil
}

func (s *PostgresStore) getWall(ctx context.Context, id string) (plan.Wall, error) {
	var w plan.Wall
	var wallType string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, storey_id, start_x, start_y, end_x, end_y, thickness, height, wall_type, material
		FROM walls WHERE id=$1
	`, id).Scan(&w.ID, &w.StoreyID, &w.Start.X, &w.Start.Y, &w.End.X, &w.End.Y, &w.Thickness, &w.Height, &wallType, &w.Material)
	if err != nil {
		return plan.Wall{}, err
	}
	w.Type = plan.WallType(wallType)
	return w, nil
}

// --- rooms ---

func (s *PostgresStore) CreateRoom(ctx context.Context, room plan.Room) (plan.Room, error) {
	room.ID = util.NewID("room")
	polygon, wallIDs, err := marshalRoomGeometry(room)
	if err != nil {
		return plan.Room{}, err
	}
	var labelX, labelY *float64
	if room.LabelAnchor != nil {
		labelX, labelY = &room.LabelAnchor.X, &room.LabelAnchor.Y
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rooms (id, storey_id, polygon, wall_ids, floor_type, floor_thickness, height, base_elevation, label_x, label_y)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, room.ID, room.StoreyID, polygon, wallIDs, room.FloorType, room.FloorThickness, room.Height, room.BaseElevation, labelX, labelY)
	if err != nil {
		return plan.Room{}, fmt.Errorf("insert room: %w", err)
	}
	return room, nil
}

func (s *PostgresStore) UpdateRoom(ctx context.Context, room plan.Room) (plan.Room, error) {
	polygon, wallIDs, err := marshalRoomGeometry(room)
	if err != nil {
		return plan.Room{}, err
	}
	var labelX, labelY *float64
	if room.LabelAnchor != nil {
		labelX, labelY = &room.LabelAnchor.X, &room.LabelAnchor.Y
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE rooms SET polygon=$2, wall_ids=$3, floor_type=$4, floor_thickness=$5, height=$6, base_elevation=$7, label_x=$8, label_y=$9
		WHERE id=$1
	`, room.ID, polygon, wallIDs, room.FloorType, room.FloorThickness, room.Height, room.BaseElevation, labelX, labelY)
	if err != nil {
		return plan.Room{}, fmt.Errorf("update room: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return plan.Room{}, sql.ErrNoRows
	}
	return room, nil
}

func (s *PostgresStore) DeleteRoom(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) ListRooms(ctx context.Context, projectID string) ([]plan.Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.storey_id, r.polygon, r.wall_ids, r.floor_type, r.floor_thickness, r.height, r.base_elevation, r.label_x, r.label_y
		FROM rooms r JOIN storeys s ON s.id = r.storey_id
		WHERE s.project_id=$1
		ORDER BY r.created_at, r.id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []plan.Room
	for rows.Next() {
		var room plan.Room
		var polygon, wallIDs []byte
		var labelX, labelY *float64
		if err := rows.Scan(&room.ID, &room.StoreyID, &polygon, &wallIDs, &room.FloorType, &room.FloorThickness, &room.Height, &room.BaseElevation, &labelX, &labelY); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(polygon, &room.Polygon); err != nil {
			return nil, fmt.Errorf("decode polygon for room %s: %w", room.ID, err)
		}
		if err := json.Unmarshal(wallIDs, &room.WallIDs); err != nil {
			return nil, fmt.Errorf("decode wall ids for room %s: %w", room.ID, err)
		}
		if labelX != nil && labelY != nil {
			room.LabelAnchor = &geo.Point{X: *labelX, Y: *labelY}
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func marshalRoomGeometry(room plan.Room) (polygon, wallIDs []byte, err error) {
	polygon, err = json.Marshal(room.Polygon)
	if err != nil {
		return nil, nil, fmt.Errorf("encode polygon: %w", err)
	}
	wallIDs, err = json.Marshal(room.WallIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("encode wall ids: %w", err)
	}
	return polygon, wallIDs, nil
}

// --- doors ---

func (s *PostgresStore) CreateDoor(ctx context.Context, door plan.Door) (plan.Door, error) {
	door.ID = util.NewID("door")
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO doors (id, wall_id, width, height, thickness, wall_position, kind, double_leaf, side, direction)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, door.ID, door.WallID, door.Width, door.Height, door.Thickness, door.Position, string(door.Kind), door.Double, door.Side, door.Direction)
	if err != nil {
		return plan.Door{}, fmt.Errorf("insert door: %w", err)
	}
	return door, nil
}

// SaveDoor upserts a door under its existing id. Reattachment after a
// split or a merge lands here: the wall cascade may already have removed
// the row, so a plain UPDATE would miss.
func (s *PostgresStore) SaveDoor(ctx context.Context, door plan.Door) (plan.Door, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO doors (id, wall_id, width, height, thickness, wall_position, kind, double_leaf, side, direction)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			wall_id=EXCLUDED.wall_id, width=EXCLUDED.width, height=EXCLUDED.height,
			thickness=EXCLUDED.thickness, wall_position=EXCLUDED.wall_position, kind=EXCLUDED.kind,
			double_leaf=EXCLUDED.double_leaf, side=EXCLUDED.side, direction=EXCLUDED.direction
	`, door.ID, door.WallID, door.Width, door.Height, door.Thickness, door.Position, string(door.Kind), door.Double, door.Side, door.Direction)
	if err != nil {
		return plan.Door{}, fmt.Errorf("save door: %w", err)
	}
	return door, nil
}

func (s *PostgresStore) UpdateDoor(ctx context.Context, door plan.Door) (plan.Door, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE doors SET wall_id=$2, width=$3, height=$4, thickness=$5, wall_position=$6, kind=$7, double_leaf=$8, side=$9, direction=$10
		WHERE id=$1
	`, door.ID, door.WallID, door.Width, door.Height, door.Thickness, door.Position, string(door.Kind), door.Double, door.Side, door.Direction)
	if err != nil {
		return plan.Door{}, fmt.Errorf("update door: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return plan.Door{}, sql.ErrNoRows
	}
	return door, nil
}

func (s *PostgresStore) DeleteDoor(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM doors WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete door: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) ListDoors(ctx context.Context, projectID string) ([]plan.Door, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.wall_id, d.width, d.height, d.thickness, d.wall_position, d.kind, d.double_leaf, d.side, d.direction
		FROM doors d
		JOIN walls w ON w.id = d.wall_id
		JOIN storeys s ON s.id = w.storey_id
		WHERE s.project_id=$1
		ORDER BY d.created_at, d.id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list doors: %w", err)
	}
	defer rows.Close()

	var doors []plan.Door
	for rows.Next() {
		var d plan.Door
		var kind string
		if err := rows.Scan(&d.ID, &d.WallID, &d.Width, &d.Height, &d.Thickness, &d.Position, &kind, &d.Double, &d.Side, &d.Direction); err != nil {
			return nil, err
		}
		d.Kind = plan.DoorKind(kind)
		doors = append(doors, d)
	}
	return doors, rows.Err()
}

// IsNotFound reports whether an error means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
