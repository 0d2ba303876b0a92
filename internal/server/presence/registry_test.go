package presence

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/dmitrijs2005/chatkeeper/internal/server/models"
)

func TestAdd_Idempotent(t *testing.T) {
	r := NewRegistry()

	u := models.ConnectedUser{ID: "u-1", Username: "alice", Token: "t1"}
	r.Add(u)
	r.Add(u)

	if got := len(r.List()); got != 1 {
		t.Fatalf("expected 1 entry after duplicate Add, got %d", got)
	}
}

func TestAdd_FirstWriteWins(t *testing.T) {
	r := NewRegistry()

	r.Add(models.ConnectedUser{ID: "u-1", Username: "alice"})
	r.Add(models.ConnectedUser{ID: "u-1", Username: "impostor"})

	list := r.List()
	if len(list) != 1 || list[0].Username != "alice" {
		t.Fatalf("duplicate Add must not update fields: %+v", list)
	}
}

func TestRemove_Idempotent(t *testing.T) {
	r := NewRegistry()

	r.Add(models.ConnectedUser{ID: "u-1", Username: "alice"})
	r.Remove("u-1")
	r.Remove("u-1") // second removal is a no-op

	if got := len(r.List()); got != 0 {
		t.Fatalf("expected empty registry, got %d entries", got)
	}
}

func TestRemove_AbsentID(t *testing.T) {
	r := NewRegistry()

	r.Add(models.ConnectedUser{ID: "u-1", Username: "alice"})
	r.Remove("u-404")

	if got := len(r.List()); got != 1 {
		t.Fatalf("removing an absent id must not touch other entries, got %d", got)
	}
}

func TestList_InsertionOrder(t *testing.T) {
	r := NewRegistry()

	for i := 0; i < 5; i++ {
		r.Add(models.ConnectedUser{ID: fmt.Sprintf("u-%d", i), Username: fmt.Sprintf("user%d", i)})
	}

	list := r.List()
	for i, u := range list {
		if u.ID != fmt.Sprintf("u-%d", i) {
			t.Fatalf("expected insertion order, got %+v", list)
		}
	}
}

func TestList_NeverExposesToken(t *testing.T) {
	r := NewRegistry()
	r.Add(models.ConnectedUser{ID: "u-1", Username: "alice", Token: "super-secret-token"})

	b, err := json.Marshal(r.List())
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	if strings.Contains(string(b), "token") || strings.Contains(string(b), "super-secret-token") {
		t.Fatalf("serialized list leaks token: %s", b)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		id := fmt.Sprintf("u-%d", i%10)
		go func(id string) {
			defer wg.Done()
			r.Add(models.ConnectedUser{ID: id, Username: id})
		}(id)
		go func(id string) {
			defer wg.Done()
			r.Remove(id)
		}(id)
		go func() {
			defer wg.Done()
			_ = r.List()
		}()
	}
	wg.Wait()

	// After the dust settles every listed entry must be unique by id.
	seen := map[string]bool{}
	for _, u := range r.List() {
		if seen[u.ID] {
			t.Fatalf("duplicate id %q in registry", u.ID)
		}
		seen[u.ID] = true
	}
}
