package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/nexusmods/modlink/internal/auth/discord"
	"github.com/nexusmods/modlink/internal/auth/nexus"
	"github.com/nexusmods/modlink/internal/auth/pending"
	"github.com/nexusmods/modlink/internal/auth/token"
	"github.com/nexusmods/modlink/internal/commands"
	"github.com/nexusmods/modlink/internal/db"
	"github.com/nexusmods/modlink/internal/db/models"
	"github.com/nexusmods/modlink/internal/linking"
)

type discordLegFake struct{}

func (f *discordLegFake) AuthCodeURL(state string) string {
	return "https://discord.test/authorize?state=" + state
}

func (f *discordLegFake) Exchange(ctx context.Context, code string) (models.TokenBundle, error) {
	return models.TokenBundle{AccessToken: "d-at", RefreshToken: "d-rt", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *discordLegFake) Identity(ctx context.Context, accessToken string) (discord.Identity, error) {
	return discord.Identity{ID: "D1", Name: "someone#1234"}, nil
}

type nexusLegFake struct{}

func (f *nexusLegFake) AuthCodeURL(state string) string {
	return "https://nexus.test/authorize?state=" + state
}

func (f *nexusLegFake) Exchange(ctx context.Context, code string) (models.TokenBundle, error) {
	return models.TokenBundle{AccessToken: "n-at", RefreshToken: "n-rt", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *nexusLegFake) Profile(ctx context.Context, accessToken string) (nexus.Profile, error) {
	return nexus.Profile{Sub: "42", Name: "NexusUser", MembershipRoles: []string{nexus.RoleMember}}, nil
}

type linkPusherFake struct{ pushes int }

func (f *linkPusherFake) Push(ctx context.Context, acct *models.LinkedAccount, meta map[string]int) error {
	f.pushes++
	return nil
}

type metadataPusherFake struct {
	current int
	err     error
}

func (f *metadataPusherFake) PushCurrent(ctx context.Context, acct *models.LinkedAccount) error {
	f.current++
	return f.err
}

type connectionsFake struct {
	rc discord.RoleConnection
}

func (f *connectionsFake) Name() string { return "discord" }

func (f *connectionsFake) Refresh(ctx context.Context, bundle models.TokenBundle) (models.TokenBundle, error) {
	return models.TokenBundle{}, errors.New("unexpected refresh")
}

func (f *connectionsFake) GetRoleConnection(ctx context.Context, accessToken string) (discord.RoleConnection, error) {
	return f.rc, nil
}

type pingCommand struct{}

func (c *pingCommand) Describe() commands.Description {
	return commands.Description{Name: "ping"}
}

func (c *pingCommand) Execute(ctx context.Context, inv commands.Invocation) (commands.Reply, error) {
	return commands.Reply{Text: "pong " + inv.DiscordID}, nil
}

type testHarness struct {
	server *Server
	router http.Handler
	store  db.Store
	sync   *metadataPusherFake
	pusher *linkPusherFake
}

func newTestServer(t *testing.T) *testHarness {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := gdb.AutoMigrate(&models.LinkedAccount{}, &models.ModSubscription{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	store := db.NewStore(gdb)

	pusher := &linkPusherFake{}
	orch := linking.NewOrchestrator(&discordLegFake{}, &nexusLegFake{}, pending.NewStore(), store, pusher, zerolog.Nop())

	reg, err := commands.NewRegistry(&pingCommand{})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	dispatcher := commands.NewDispatcher(map[commands.EventKind]commands.Handler{
		commands.EventInteraction: commands.InteractionHandler(reg),
	}, zerolog.Nop())

	sync := &metadataPusherFake{}
	server := NewServer(
		NewCookieSigner("test-secret"),
		orch,
		store,
		sync,
		token.NewManager(zerolog.Nop()),
		&connectionsFake{rc: discord.RoleConnection{PlatformName: "Nexus Mods"}},
		dispatcher,
		zerolog.Nop(),
	)
	return &testHarness{server: server, router: server.Router(), store: store, sync: sync, pusher: pusher}
}

func (h *testHarness) do(t *testing.T, method, target, body string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func TestLinkedRoleStartsFlow(t *testing.T) {
	h := newTestServer(t)
	rec := h.do(t, http.MethodGet, "/linked-role", "", nil)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil || loc.Host != "discord.test" {
		t.Fatalf("expected a Discord consent redirect, got %q", rec.Header().Get("Location"))
	}
	state := loc.Query().Get("state")
	if state == "" {
		t.Fatal("consent URL missing state")
	}

	var found bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == stateCookie && c.Value != "" {
			found = true
		}
	}
	if !found {
		t.Fatal("state cookie not set")
	}
}

func TestFullFlowOverHTTP(t *testing.T) {
	h := newTestServer(t)

	rec := h.do(t, http.MethodGet, "/linked-role", "", nil)
	loc, _ := url.Parse(rec.Header().Get("Location"))
	state := loc.Query().Get("state")
	cookies := rec.Result().Cookies()

	rec = h.do(t, http.MethodGet, "/discord-oauth-callback?code=c1&state="+state, "", cookies)
	if rec.Code != http.StatusFound {
		t.Fatalf("discord callback: expected 302, got %d (%s)", rec.Code, rec.Body.String())
	}
	loc, _ = url.Parse(rec.Header().Get("Location"))
	if loc.Host != "nexus.test" {
		t.Fatalf("expected Nexus consent redirect, got %q", loc.String())
	}

	rec = h.do(t, http.MethodGet, "/nexus-mods-callback?code=c2&state="+state, "", cookies)
	if rec.Code != http.StatusFound {
		t.Fatalf("nexus callback: expected 302, got %d (%s)", rec.Code, rec.Body.String())
	}
	target, _ := url.Parse(rec.Header().Get("Location"))
	if target.Path != "/success" {
		t.Fatalf("expected success redirect, got %q", target.String())
	}
	if target.Query().Get("nexus") != "NexusUser" || target.Query().Get("d_id") != "D1" {
		t.Fatalf("unexpected success params: %q", target.RawQuery)
	}

	if _, err := h.store.GetByDiscordID(context.Background(), "D1"); err != nil {
		t.Fatalf("account not persisted: %v", err)
	}
	if h.pusher.pushes != 1 {
		t.Fatalf("expected one metadata push, got %d", h.pusher.pushes)
	}

	// The success page renders the escaped names.
	rec = h.do(t, http.MethodGet, rec.Header().Get("Location"), "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "NexusUser") {
		t.Fatalf("success page broken: %d %s", rec.Code, rec.Body.String())
	}
}

func TestDiscordCallbackStateMismatch(t *testing.T) {
	h := newTestServer(t)

	rec := h.do(t, http.MethodGet, "/linked-role", "", nil)
	cookies := rec.Result().Cookies()

	rec = h.do(t, http.MethodGet, "/discord-oauth-callback?code=c1&state=forged", "", cookies)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestCallbacksWithoutCookie(t *testing.T) {
	h := newTestServer(t)

	rec := h.do(t, http.MethodGet, "/discord-oauth-callback?code=c1&state=s", "", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("discord: expected 403, got %d", rec.Code)
	}
	rec = h.do(t, http.MethodGet, "/nexus-mods-callback?code=c2&state=s", "", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("nexus: expected 403, got %d", rec.Code)
	}
}

func TestUpdateMetadata(t *testing.T) {
	h := newTestServer(t)

	rec := h.do(t, http.MethodPost, "/update-metadata", `{"userId":"nobody"}`, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unlinked user, got %d", rec.Code)
	}

	if err := h.store.Create(context.Background(), &models.LinkedAccount{DiscordID: "D1"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	rec = h.do(t, http.MethodPost, "/update-metadata", `{"userId":"D1"}`, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d (%s)", rec.Code, rec.Body.String())
	}
	if h.sync.current != 1 {
		t.Fatalf("expected one forced push, got %d", h.sync.current)
	}

	rec = h.do(t, http.MethodPost, "/update-metadata", `{}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without userId, got %d", rec.Code)
	}
}

func TestInteractionEndpoint(t *testing.T) {
	h := newTestServer(t)

	rec := h.do(t, http.MethodPost, "/interactions", `{"command":"ping","userId":"D1"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "pong D1") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}

	rec = h.do(t, http.MethodPost, "/interactions", `{"command":"missing","userId":"D1"}`, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for unknown command, got %d", rec.Code)
	}

	rec = h.do(t, http.MethodPost, "/interactions", `{"command":""}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for incomplete payload, got %d", rec.Code)
	}
}

func TestShowMetadata(t *testing.T) {
	h := newTestServer(t)

	rec := h.do(t, http.MethodGet, "/show-metadata?id=nobody", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unlinked user, got %d", rec.Code)
	}

	acct := &models.LinkedAccount{
		DiscordID: "D1",
		Discord:   models.TokenBundle{AccessToken: "d-at", RefreshToken: "d-rt", ExpiresAt: time.Now().Add(time.Hour)},
	}
	if err := h.store.Create(context.Background(), acct); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec = h.do(t, http.MethodGet, "/show-metadata?id=D1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Nexus Mods") {
		t.Fatalf("role connection not echoed: %s", rec.Body.String())
	}
}

func TestOAuthErrorPage(t *testing.T) {
	h := newTestServer(t)

	rec := h.do(t, http.MethodGet, "/oauth-error", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Unknown error") {
		t.Fatalf("expected generic error page, got %d %s", rec.Code, rec.Body.String())
	}

	// A signed detail cookie surfaces its message.
	sign := httptest.NewRecorder()
	if err := h.server.signer.Set(sign, errorCookie, "Nexus Mods OAuth Error: denied", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	rec = h.do(t, http.MethodGet, "/oauth-error", "", sign.Result().Cookies())
	if !strings.Contains(rec.Body.String(), "denied") {
		t.Fatalf("detail not rendered: %s", rec.Body.String())
	}
}

func TestUnknownRouteRedirectsHome(t *testing.T) {
	h := newTestServer(t)
	rec := h.do(t, http.MethodGet, "/nope", "", nil)
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/" {
		t.Fatalf("expected redirect to /, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
}
