// Package snapshot archives plan save points as git commits, one
// repository per project. Every save point commits the full plan
// document, so any historical state can be restored wholesale.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"bauplan/api/internal/plan"
	"bauplan/api/internal/store"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// PlanDocument is the full plan state captured at a save point.
type PlanDocument struct {
	Storeys []plan.Storey `json:"storeys"`
	Walls   []plan.Wall   `json:"walls"`
	Rooms   []plan.Room   `json:"rooms"`
	Doors   []plan.Door   `json:"doors"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// EnsureProjectRepo initializes the archive for a project. It is a no-op
// when the repository already exists.
func (s *Service) EnsureProjectRepo(projectID string, initial PlanDocument, author string) error {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(projectID)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat repo path: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create repo dir: %w", err)
	}

	repo, err := git.PlainInit(path, false)
	if err != nil {
		return fmt.Errorf("init repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	payload, err := json.MarshalIndent(initial, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal initial plan: %w", err)
	}
	if err := os.WriteFile(filepath.Join(path, "plan.json"), append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write initial plan: %w", err)
	}
	if _, err := worktree.Add("plan.json"); err != nil {
		return fmt.Errorf("git add initial plan: %w", err)
	}
	hash, err := worktree.Commit("Project baseline", &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@local.bauplan.dev", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("commit initial plan: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash)); err != nil {
		return fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return fmt.Errorf("set HEAD to main: %w", err)
	}
	return nil
}

// Commit records a save point for the project and returns its metadata.
func (s *Service) Commit(projectID string, doc PlanDocument, author, message string) (store.SnapshotInfo, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(projectID))
	if err != nil {
		return store.SnapshotInfo{}, fmt.Errorf("open repo: %w", err)
	}

	hash, err := s.commit(repo, doc, author, message)
	if err != nil {
		return store.SnapshotInfo{}, err
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return store.SnapshotInfo{}, fmt.Errorf("read commit object: %w", err)
	}

	return toSnapshotInfo(commitObj), nil
}

// Head returns the latest save point and its plan document.
func (s *Service) Head(projectID string) (PlanDocument, store.SnapshotInfo, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(projectID))
	if err != nil {
		return PlanDocument{}, store.SnapshotInfo{}, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return PlanDocument{}, store.SnapshotInfo{}, fmt.Errorf("resolve main: %w", err)
	}

	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return PlanDocument{}, store.SnapshotInfo{}, fmt.Errorf("load commit object: %w", err)
	}

	doc, err := readPlanFromCommit(commitObj)
	if err != nil {
		return PlanDocument{}, store.SnapshotInfo{}, err
	}

	return doc, toSnapshotInfo(commitObj), nil
}

// GetByHash returns the plan document at a specific save point.
func (s *Service) GetByHash(projectID, hash string) (PlanDocument, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(projectID))
	if err != nil {
		return PlanDocument{}, fmt.Errorf("open repo: %w", err)
	}

	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return PlanDocument{}, err
	}
	commitObj, err := repo.CommitObject(resolvedHash)
	if err != nil {
		return PlanDocument{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	return readPlanFromCommit(commitObj)
}

// History lists save points, newest first. A limit of 0 means all.
func (s *Service) History(projectID string, limit int) ([]store.SnapshotInfo, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(projectID))
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return nil, fmt.Errorf("resolve main: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]store.SnapshotInfo, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toSnapshotInfo(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// Tag names a save point so it can be found without its hash.
func (s *Service) Tag(projectID, hash, name string) error {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(projectID))
	if err != nil {
		return fmt.Errorf("open repo: %w", err)
	}
	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return err
	}

	_, err = repo.CreateTag(name, resolvedHash, &git.CreateTagOptions{
		Tagger: &object.Signature{
			Name:  "Bauplan",
			Email: "bauplan@localhost",
			When:  time.Now(),
		},
		Message: name,
	})
	if err != nil && !errors.Is(err, git.ErrTagExists) {
		return fmt.Errorf("create tag: %w", err)
	}
	return nil
}

func (s *Service) repoPath(projectID string) string {
	return filepath.Join(s.baseDir, projectID)
}

func (s *Service) projectLock(projectID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[projectID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[projectID] = lock
	return lock
}

func (s *Service) commit(repo *git.Repository, doc PlanDocument, author, message string) (plumbing.Hash, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("marshal plan: %w", err)
	}

	repoRoot := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(repoRoot, "plan.json"), append(payload, '\n'), 0o644); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("write plan.json: %w", err)
	}

	if _, err := worktree.Add("plan.json"); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("git add plan: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@local.bauplan.dev", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit plan: %w", err)
	}
	return hash, nil
}

func readPlanFromCommit(commitObj *object.Commit) (PlanDocument, error) {
	file, err := commitObj.File("plan.json")
	if err != nil {
		return PlanDocument{}, fmt.Errorf("load plan.json from commit: %w", err)
	}
	reader, err := file.Reader()
	if err != nil {
		return PlanDocument{}, fmt.Errorf("open plan reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return PlanDocument{}, fmt.Errorf("read plan bytes: %w", err)
	}

	var doc PlanDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return PlanDocument{}, fmt.Errorf("decode commit plan: %w", err)
	}
	return doc, nil
}

func toSnapshotInfo(commitObj *object.Commit) store.SnapshotInfo {
	return store.SnapshotInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
