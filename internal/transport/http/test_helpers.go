package http

import (
	"context"
	stdhttp "net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nichat/nichat-server/internal/auth"
	"github.com/nichat/nichat-server/internal/config"
	"github.com/nichat/nichat-server/internal/core"
	"github.com/nichat/nichat-server/internal/service/contacts"
	"github.com/nichat/nichat-server/internal/store"
	"github.com/nichat/nichat-server/internal/store/sqlite"
)

// testEnv bundles the wired server pieces tests poke at.
type testEnv struct {
	server   *stdhttp.Server
	store    store.Store
	auth     *auth.Service
	contacts *contacts.Service
	hub      *core.Hub
}

// newTestEnv wires a full server against an in-memory store. The hub loop
// runs until the test ends.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}
	authService := auth.NewService(st, jwtConfig)
	contactsService := contacts.New(st)

	hub := core.NewHub(st, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.JWTSecret = "test-secret"

	disabledLogger := zerolog.Nop()
	server := NewServer(hub, authService, contactsService, st, &cfg, &disabledLogger)

	return &testEnv{
		server:   server,
		store:    st,
		auth:     authService,
		contacts: contactsService,
		hub:      hub,
	}
}

// registerUser registers a user through the auth service and returns the
// token plus the stored user.
func (e *testEnv) registerUser(t *testing.T, username string) (string, *store.User) {
	t.Helper()

	token, err := e.auth.Register(context.Background(), username, "password123")
	if err != nil {
		t.Fatalf("failed to register %s: %v", username, err)
	}
	user, err := e.store.GetUserByUsername(context.Background(), username)
	if err != nil {
		t.Fatalf("failed to load %s: %v", username, err)
	}
	return token, user
}
