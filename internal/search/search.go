package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultProject ResultType = "project"
	ResultStorey  ResultType = "storey"
	ResultWall    ResultType = "wall"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	ProjectID string     `json:"projectId"`
	StoreyID  string     `json:"storeyId,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text            string
	FilterType      ResultType // empty = all types
	FilterProjectID string
	Limit           int
	Offset          int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexProject(p ProjectRecord) error
	IndexStorey(s StoreyRecord) error
	IndexWall(w WallRecord) error
	DeleteProject(id string) error
	DeleteWall(id string) error
}

// ProjectRecord is the data we index for a project.
type ProjectRecord struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// StoreyRecord is the data we index for a storey.
type StoreyRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ProjectID string `json:"projectId"`
}

// WallRecord is the data we index for a wall, searchable by material.
type WallRecord struct {
	ID        string `json:"id"`
	Material  string `json:"material"`
	WallType  string `json:"wallType"`
	StoreyID  string `json:"storeyId"`
	ProjectID string `json:"projectId"`
}
