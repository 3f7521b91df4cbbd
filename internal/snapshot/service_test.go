package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"bauplan/api/internal/geo"
	"bauplan/api/internal/plan"
)

func testDoc(wallCount int) PlanDocument {
	doc := PlanDocument{
		Storeys: []plan.Storey{{ID: "storey_1", ProjectID: "proj_1", Name: "Ground", RoomHeight: 3000}},
	}
	for i := 0; i < wallCount; i++ {
		doc.Walls = append(doc.Walls, plan.Wall{
			ID:        fmt.Sprintf("wall_%d", i),
			StoreyID:  "storey_1",
			Start:     geo.Point{X: float64(i) * 1000, Y: 0},
			End:       geo.Point{X: float64(i+1) * 1000, Y: 0},
			Thickness: 200,
			Height:    3000,
			Type:      plan.WallStructural,
		})
	}
	return doc
}

func TestProjectRepoLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	initial := testDoc(2)
	if err := svc.EnsureProjectRepo("proj_1", initial, "Avery"); err != nil {
		t.Fatalf("EnsureProjectRepo() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "proj_1")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}

	// Idempotent when repo exists.
	if err := svc.EnsureProjectRepo("proj_1", initial, "Avery"); err != nil {
		t.Fatalf("EnsureProjectRepo() second call error = %v", err)
	}

	updated := testDoc(3)
	info, err := svc.Commit("proj_1", updated, "Avery", "Add east wall")
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if info.Hash == "" {
		t.Fatal("expected commit hash")
	}

	history, err := svc.History("proj_1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	if !strings.HasPrefix(history[0].Message, "Add east wall") {
		t.Fatalf("unexpected newest message: %q", history[0].Message)
	}

	restored, err := svc.GetByHash("proj_1", info.Hash)
	if err != nil {
		t.Fatalf("GetByHash() error = %v", err)
	}
	if len(restored.Walls) != 3 {
		t.Fatalf("expected 3 walls at save point, got %d", len(restored.Walls))
	}
}

func TestHeadReturnsLatestPlan(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	if err := svc.EnsureProjectRepo("proj_1", testDoc(1), "Avery"); err != nil {
		t.Fatalf("EnsureProjectRepo() error = %v", err)
	}
	if _, err := svc.Commit("proj_1", testDoc(4), "Avery", "Grow plan"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	doc, info, err := svc.Head("proj_1")
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	if len(doc.Walls) != 4 {
		t.Fatalf("expected head to have 4 walls, got %d", len(doc.Walls))
	}
	if info.Author != "Avery" {
		t.Fatalf("unexpected author: %q", info.Author)
	}
}

func TestTagSavePoint(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	if err := svc.EnsureProjectRepo("proj_1", testDoc(1), "Avery"); err != nil {
		t.Fatalf("EnsureProjectRepo() error = %v", err)
	}
	info, err := svc.Commit("proj_1", testDoc(2), "Avery", "Milestone")
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if err := svc.Tag("proj_1", info.Hash, "permit-submission"); err != nil {
		t.Fatalf("Tag() error = %v", err)
	}
	// Tagging twice is a no-op.
	if err := svc.Tag("proj_1", info.Hash, "permit-submission"); err != nil {
		t.Fatalf("Tag() repeat error = %v", err)
	}

	doc, err := svc.GetByHash("proj_1", "permit-submission")
	if err != nil {
		t.Fatalf("GetByHash(tag) error = %v", err)
	}
	if len(doc.Walls) != 2 {
		t.Fatalf("expected tagged plan to have 2 walls, got %d", len(doc.Walls))
	}
}

func TestConcurrentCommitsSameProject(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	if err := svc.EnsureProjectRepo("proj_1", testDoc(1), "Avery"); err != nil {
		t.Fatalf("EnsureProjectRepo() error = %v", err)
	}

	const writers = 12
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			if _, err := svc.Commit("proj_1", testDoc(idx+1), "Avery", fmt.Sprintf("Save %02d", idx)); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Fatalf("Commit() concurrent error = %v", err)
		}
	}

	history, err := svc.History("proj_1", 100)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) < writers+1 {
		t.Fatalf("expected at least %d commits in history, got %d", writers+1, len(history))
	}
}
