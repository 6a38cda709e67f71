package web

import (
	"fmt"
	"html"
	"net/http"
	"strconv"
	"time"
)

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>Nexus Mods account link</title></head>
<body>
	<h1>Nexus Mods Discord link</h1>
	<p>The account-linking service is online. %s</p>
	<p>Start here: <a href="/linked-role">link your accounts</a>.</p>
</body>
</html>`, time.Now().Format(time.RFC1123))
}

func (s *Server) handleSuccess(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	discordName := q.Get("discord")
	nexusName := q.Get("nexus")
	if discordName == "" {
		discordName = "UnknownDiscordUser"
	}
	if nexusName == "" {
		nexusName = "UnknownNexusModsUser"
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>Accounts linked</title></head>
<body>
	<h1>Success!</h1>
	<p>Discord user <strong>%s</strong> (%s) is now linked to Nexus Mods user <strong>%s</strong> (%s).</p>
	<p>You can close this window.</p>
</body>
</html>`,
		html.EscapeString(discordName), html.EscapeString(q.Get("d_id")),
		html.EscapeString(nexusName), html.EscapeString(q.Get("n_id")))
}

// handleOAuthError renders whatever detail the flow left in the signed error
// cookie; an expired or absent cookie degrades to a generic message.
func (s *Server) handleOAuthError(w http.ResponseWriter, r *http.Request) {
	detail, ok := s.signer.Read(r, errorCookie)
	if !ok {
		detail = "Unknown error"
	}
	s.signer.Clear(w, errorCookie)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>Something went wrong</title></head>
<body>
	<h1>Something went wrong</h1>
	<p>%s</p>
	<p><a href="/linked-role">Try again</a></p>
</body>
</html>`, html.EscapeString(detail))
}
