// Package web exposes the OAuth linking flow and the metadata endpoints over
// HTTP.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/nexusmods/modlink/internal/auth/discord"
	"github.com/nexusmods/modlink/internal/auth/token"
	"github.com/nexusmods/modlink/internal/commands"
	"github.com/nexusmods/modlink/internal/db"
	"github.com/nexusmods/modlink/internal/db/models"
	"github.com/nexusmods/modlink/internal/linking"
	"github.com/nexusmods/modlink/internal/logging"
)

// DiscordConnections is the slice of the Discord client the diagnostic
// endpoint reads role-connection data through.
type DiscordConnections interface {
	token.Refresher
	GetRoleConnection(ctx context.Context, accessToken string) (discord.RoleConnection, error)
}

// MetadataPusher forces a fresh metadata push for an account.
type MetadataPusher interface {
	PushCurrent(ctx context.Context, acct *models.LinkedAccount) error
}

// Server wires the HTTP surface to the linking and sync components.
type Server struct {
	signer   *CookieSigner
	orch     *linking.Orchestrator
	store    db.Store
	sync     MetadataPusher
	tokens   *token.Manager
	discord  DiscordConnections
	dispatch *commands.Dispatcher
	log      zerolog.Logger
}

func NewServer(signer *CookieSigner, orch *linking.Orchestrator, store db.Store, sync MetadataPusher, tokens *token.Manager, d DiscordConnections, dispatch *commands.Dispatcher, log zerolog.Logger) *Server {
	return &Server{
		signer:   signer,
		orch:     orch,
		store:    store,
		sync:     sync,
		tokens:   tokens,
		discord:  d,
		dispatch: dispatch,
		log:      log.With().Str("component", "web").Logger(),
	}
}

// Router builds the chi route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(logging.RequestID)
	r.Use(logging.AccessLog(s.log))
	r.Use(chimiddleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/linked-role", s.handleLinkedRole)
	r.Get("/discord-oauth-callback", s.handleDiscordCallback)
	r.Get("/nexus-mods-callback", s.handleNexusCallback)
	r.Get("/success", s.handleSuccess)
	r.Get("/oauth-error", s.handleOAuthError)
	r.Post("/update-metadata", s.handleUpdateMetadata)
	r.Get("/show-metadata", s.handleShowMetadata)
	r.Post("/interactions", s.handleInteraction)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/", http.StatusFound)
	})
	return r
}

// handleLinkedRole issues the signed correlation cookie and forwards the
// user into the Discord consent dialog. This is the route registered in the
// Discord developer console as the linked-roles verification URL.
func (s *Server) handleLinkedRole(w http.ResponseWriter, r *http.Request) {
	state, consentURL, err := s.orch.StartFlow()
	if err != nil {
		s.failFlow(w, r, "Could not start the link flow: "+err.Error())
		return
	}
	if err := s.signer.Set(w, stateCookie, state, stateCookieTTL); err != nil {
		s.failFlow(w, r, "Could not start the link flow: "+err.Error())
		return
	}
	http.Redirect(w, r, consentURL, http.StatusFound)
}

func (s *Server) handleDiscordCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	returnedState := r.URL.Query().Get("state")
	cookieState, _ := s.signer.Read(r, stateCookie)

	nexusURL, err := s.orch.HandleDiscordCallback(r.Context(), code, returnedState, cookieState)
	if errors.Is(err, linking.ErrStateMismatch) {
		s.log.Warn().Msg("discord oauth state verification failed")
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if err != nil {
		s.failFlow(w, r, "Discord OAuth Error: "+err.Error())
		return
	}
	http.Redirect(w, r, nexusURL, http.StatusFound)
}

func (s *Server) handleNexusCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	returnedState := r.URL.Query().Get("state")
	cookieState, _ := s.signer.Read(r, stateCookie)

	result, err := s.orch.HandleNexusCallback(r.Context(), code, returnedState, cookieState)
	if errors.Is(err, linking.ErrStateMismatch) || errors.Is(err, linking.ErrMissingPendingLink) {
		s.log.Warn().Err(err).Msg("nexus callback rejected")
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if err != nil {
		s.failFlow(w, r, "Nexus Mods OAuth Error: "+err.Error())
		return
	}

	s.signer.Clear(w, stateCookie)
	q := url.Values{}
	q.Set("discord", result.DiscordName)
	q.Set("d_id", result.DiscordID)
	q.Set("nexus", result.NexusName)
	q.Set("n_id", itoa(result.NexusID))
	http.Redirect(w, r, "/success?"+q.Encode(), http.StatusFound)
}

// handleUpdateMetadata forces a metadata push for an already-linked account.
func (s *Server) handleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == "" {
		http.Error(w, "userId required", http.StatusBadRequest)
		return
	}

	acct, err := s.store.GetByDiscordID(r.Context(), body.UserID)
	if errors.Is(err, db.ErrNotFound) {
		http.Error(w, "no linked account for this user", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := s.sync.PushCurrent(r.Context(), acct); err != nil {
		s.failFlow(w, r, "Error pushing role metadata to Discord: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleShowMetadata is a diagnostic echo of the role-connection record as
// Discord currently sees it.
func (s *Server) handleShowMetadata(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}

	acct, err := s.store.GetByDiscordID(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		http.Error(w, "no linked account for this user", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	accessToken, err := s.tokens.Valid(r.Context(), &acct.Discord, s.discord, func(ctx context.Context) error {
		return s.store.Update(ctx, acct)
	})
	if err != nil {
		s.failFlow(w, r, "Error getting metadata: "+err.Error())
		return
	}

	rc, err := s.discord.GetRoleConnection(r.Context(), accessToken)
	if err != nil {
		s.failFlow(w, r, "Error getting metadata: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rc)
}

// handleInteraction routes a command payload through the dispatch table.
// This is the headless stand-in for the gateway interaction event.
func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Command string            `json:"command"`
		UserID  string            `json:"userId"`
		Options map[string]string `json:"options"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Command == "" || body.UserID == "" {
		http.Error(w, "command and userId required", http.StatusBadRequest)
		return
	}

	effect, err := s.dispatch.Dispatch(r.Context(), commands.Event{
		Kind:      commands.EventInteraction,
		Command:   body.Command,
		DiscordID: body.UserID,
		Options:   body.Options,
	})
	if err != nil {
		s.log.Error().Str("command", body.Command).Err(err).Msg("interaction failed")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"text": effect.Reply.Text})
}

// failFlow records the error in a short-lived signed cookie and forwards to
// the generic error page; no stack traces reach the end user.
func (s *Server) failFlow(w http.ResponseWriter, r *http.Request, detail string) {
	s.log.Error().Str("detail", detail).Msg("oauth flow error")
	if err := s.signer.Set(w, errorCookie, detail, errorCookieTTL); err != nil {
		s.log.Error().Err(err).Msg("could not set error cookie")
	}
	http.Redirect(w, r, "/oauth-error", http.StatusFound)
}
