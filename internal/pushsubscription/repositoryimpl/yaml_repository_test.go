package repositoryimpl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pyros-projects/clawde/internal/pushsubscription"
	"github.com/pyros-projects/clawde/pkg/cerr"
	"github.com/pyros-projects/clawde/pkg/storage"
)

func newRepo(t *testing.T) *YAMLRepository {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}
	return NewYAMLRepository(s)
}

func sub(id, endpoint string) *pushsubscription.Subscription {
	return &pushsubscription.Subscription{
		ID:        id,
		Endpoint:  endpoint,
		P256dhKey: "p256dh-" + id,
		AuthKey:   "auth-" + id,
		CreatedAt: time.Now(),
	}
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	if err := repo.Create(ctx, sub("a", "https://push.example/a")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	got, err := repo.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Endpoint != "https://push.example/a" {
		t.Errorf("Endpoint = %q", got.Endpoint)
	}

	err = repo.Create(ctx, sub("a", "https://push.example/other"))
	var cerrErr *cerr.Error
	if !errors.As(err, &cerrErr) || cerrErr.Code != cerr.AlreadyExists {
		t.Errorf("duplicate Create() error = %v, want AlreadyExists", err)
	}
}

func TestUpsertReplacesByEndpoint(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	first := sub("a", "https://push.example/ep")
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Same endpoint, new keys and a fresh id.
	second := sub("b", "https://push.example/ep")
	if err := repo.Upsert(ctx, second); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("List() returned %d subscriptions, want 1", len(all))
	}
	if all[0].ID != "a" {
		t.Errorf("ID = %q, want original id kept", all[0].ID)
	}
	if all[0].P256dhKey != "p256dh-b" {
		t.Errorf("P256dhKey = %q, want replaced keys", all[0].P256dhKey)
	}
}

func TestUpsertNewEndpoint(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	if err := repo.Upsert(ctx, sub("a", "https://push.example/a")); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if _, err := repo.Get(ctx, "a"); err != nil {
		t.Errorf("Get() after Upsert error = %v", err)
	}
}

func TestDeleteByEndpoint(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	if err := repo.Create(ctx, sub("a", "https://push.example/a")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.DeleteByEndpoint(ctx, "https://push.example/a"); err != nil {
		t.Fatalf("DeleteByEndpoint() error = %v", err)
	}
	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 0 {
		t.Errorf("List() returned %d subscriptions, want 0", len(all))
	}

	err = repo.DeleteByEndpoint(ctx, "https://push.example/missing")
	var cerrErr *cerr.Error
	if !errors.As(err, &cerrErr) || cerrErr.Code != cerr.NotFound {
		t.Errorf("DeleteByEndpoint(missing) error = %v, want NotFound", err)
	}
}

func TestListEmpty(t *testing.T) {
	repo := newRepo(t)
	all, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 0 {
		t.Errorf("List() returned %d subscriptions, want 0", len(all))
	}
}
