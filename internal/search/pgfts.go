package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true because if Postgres is down the whole app
// is down anyway.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across projects, storeys and walls
// using plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultProject {
		projWhere := "p.fts @@ " + tsQuery
		if q.FilterProjectID != "" {
			projWhere += fmt.Sprintf(" AND p.id = $%d", argN)
			args = append(args, q.FilterProjectID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'project'::text AS type, p.id,
				ts_headline('english', p.name, %s, 'MaxFragments=1,MaxWords=30') AS title,
				''::text AS snippet,
				p.id AS project_id, ''::text AS storey_id,
				ts_rank(p.fts, %s) AS rank
			FROM projects p
			WHERE %s`, tsQuery, tsQuery, projWhere))
	}

	if q.FilterType == "" || q.FilterType == ResultStorey {
		storeyWhere := "s.fts @@ " + tsQuery
		if q.FilterProjectID != "" {
			storeyWhere += fmt.Sprintf(" AND s.project_id = $%d", argN)
			args = append(args, q.FilterProjectID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'storey'::text AS type, s.id,
				ts_headline('english', s.name, %s, 'MaxFragments=1,MaxWords=30') AS title,
				''::text AS snippet,
				s.project_id, s.id AS storey_id,
				ts_rank(s.fts, %s) AS rank
			FROM storeys s
			WHERE %s`, tsQuery, tsQuery, storeyWhere))
	}

	if q.FilterType == "" || q.FilterType == ResultWall {
		wallWhere := "w.fts @@ " + tsQuery
		if q.FilterProjectID != "" {
			wallWhere += fmt.Sprintf(" AND s.project_id = $%d", argN)
			args = append(args, q.FilterProjectID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'wall'::text AS type, w.id,
				ts_headline('english', coalesce(w.material, ''), %s, 'MaxFragments=1,MaxWords=30') AS title,
				w.wall_type AS snippet,
				s.project_id, w.storey_id,
				ts_rank(w.fts, %s) AS rank
			FROM walls w
			JOIN storeys s ON s.id = w.storey_id
			WHERE %s`, tsQuery, tsQuery, wallWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, project_id, storey_id
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.ProjectID, &r.StoreyID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ProjectRecord, []StoreyRecord, []WallRecord, error) {
	projRows, err := p.db.QueryContext(ctx, `SELECT id, name FROM projects`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load projects: %w", err)
	}
	defer projRows.Close()

	projects := make([]ProjectRecord, 0)
	for projRows.Next() {
		var pr ProjectRecord
		if err := projRows.Scan(&pr.ID, &pr.Name); err != nil {
			return nil, nil, nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, pr)
	}
	if err := projRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate projects: %w", err)
	}

	storeyRows, err := p.db.QueryContext(ctx, `SELECT id, name, project_id FROM storeys`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load storeys: %w", err)
	}
	defer storeyRows.Close()

	storeys := make([]StoreyRecord, 0)
	for storeyRows.Next() {
		var sr StoreyRecord
		if err := storeyRows.Scan(&sr.ID, &sr.Name, &sr.ProjectID); err != nil {
			return nil, nil, nil, fmt.Errorf("scan storey: %w", err)
		}
		storeys = append(storeys, sr)
	}
	if err := storeyRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate storeys: %w", err)
	}

	wallRows, err := p.db.QueryContext(ctx, `
		SELECT w.id, w.material, w.wall_type, w.storey_id, s.project_id
		FROM walls w
		JOIN storeys s ON s.id = w.storey_id
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load walls: %w", err)
	}
	defer wallRows.Close()

	walls := make([]WallRecord, 0)
	for wallRows.Next() {
		var wr WallRecord
		if err := wallRows.Scan(&wr.ID, &wr.Material, &wr.WallType, &wr.StoreyID, &wr.ProjectID); err != nil {
			return nil, nil, nil, fmt.Errorf("scan wall: %w", err)
		}
		walls = append(walls, wr)
	}
	if err := wallRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate walls: %w", err)
	}

	return projects, storeys, walls, nil
}
