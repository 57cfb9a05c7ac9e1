package pushnotification

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/pyros-projects/clawde/internal/config"
	"github.com/pyros-projects/clawde/internal/pushsubscription"
	"github.com/pyros-projects/clawde/internal/pushsubscription/repositoryimpl"
	"github.com/pyros-projects/clawde/pkg/storage"
)

func newPushEnv(t *testing.T) *config.PushEnv {
	t.Helper()
	priv, pub, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("GenerateVAPIDKeys() error = %v", err)
	}
	return &config.PushEnv{
		VAPIDPublicKey:  pub,
		VAPIDPrivateKey: priv,
		VAPIDSubject:    "mailto:test@example.com",
	}
}

// browserKeys builds the p256dh/auth pair a browser would hand out.
func browserKeys(t *testing.T) (string, string) {
	t.Helper()
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	auth := make([]byte, 16)
	if _, err := rand.Read(auth); err != nil {
		t.Fatalf("rand.Read() error = %v", err)
	}
	return base64.RawURLEncoding.EncodeToString(priv.PublicKey().Bytes()),
		base64.RawURLEncoding.EncodeToString(auth)
}

func newSenderFixture(t *testing.T) (*Sender, pushsubscription.Repository) {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}
	repo := repositoryimpl.NewYAMLRepository(s)
	return NewSender(newPushEnv(t), repo), repo
}

func subscribe(t *testing.T, repo pushsubscription.Repository, id, endpoint string) {
	t.Helper()
	p256dh, auth := browserKeys(t)
	err := repo.Create(context.Background(), &pushsubscription.Subscription{
		ID:        id,
		Endpoint:  endpoint,
		P256dhKey: p256dh,
		AuthKey:   auth,
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
}

func TestSendToAllDelivers(t *testing.T) {
	ctx := context.Background()
	sender, repo := newSenderFixture(t)

	delivered := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered++
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	subscribe(t, repo, "a", srv.URL+"/a")
	subscribe(t, repo, "b", srv.URL+"/b")

	sender.SendToAll(ctx, &NotificationPayload{Title: "Hi", Body: "there"})
	if delivered != 2 {
		t.Errorf("delivered = %d, want 2", delivered)
	}
}

func TestSendToAllPrunesExpired(t *testing.T) {
	ctx := context.Background()
	sender, repo := newSenderFixture(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	subscribe(t, repo, "a", srv.URL+"/a")

	sender.SendToAll(ctx, &NotificationPayload{Title: "Hi"})

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 0 {
		t.Errorf("List() returned %d subscriptions, want expired one pruned", len(all))
	}
}

func TestSendToAllSkipsWithoutVAPIDKeys(t *testing.T) {
	s, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}
	sender := NewSender(&config.PushEnv{}, repositoryimpl.NewYAMLRepository(s))
	if sender.Configured() {
		t.Error("Configured() = true without keys")
	}
	// Must not panic or hit the network.
	sender.SendToAll(context.Background(), &NotificationPayload{Title: "Hi"})
}
