package server

import (
	"encoding/json"
	"net/http"

	"github.com/bestieapp/authlink/events"
	"github.com/bestieapp/authlink/google"
)

// DebugRedirectPath exposes the most recent flow outcomes. Redirect-based
// failures are otherwise invisible server-side once the browser has moved
// on.
const DebugRedirectPath = "/debug/oauth2/last-redirect"

// AppHandlers groups the flow handlers the server exposes.
type AppHandlers struct {
	Login     *google.LoginHandler
	Linking   *google.LinkingController
	Redirects *events.RedirectLog
}

// RouteOptions returns the server options that bind every flow endpoint.
func RouteOptions(h AppHandlers) []ServerOption {
	opts := []ServerOption{
		WithHTTPHandlerFunc(google.LoginAuthorizePath, h.Login.HandleAuthorize),
		WithHTTPHandlerFunc(google.MobileLoginAuthorizePath, h.Login.HandleMobileAuthorize),
		WithHTTPHandlerFunc(google.LoginCallbackPath, h.Login.HandleCallback),
		WithHTTPHandlerFunc(google.IDTokenLoginPath, h.Login.HandleIDTokenLogin),

		WithHTTPHandlerFunc(google.CalendarAuthorizePath, h.Linking.HandleAuthorize),
		WithHTTPHandlerFunc(google.CalendarMobileAuthorizePath, h.Linking.HandleMobileAuthorize),
		WithHTTPHandlerFunc(google.CalendarCallbackPath, h.Linking.HandleCallback),
		WithHTTPHandlerFunc(google.CalendarStatusPath, h.Linking.HandleStatus),
		WithHTTPHandlerFunc(google.CalendarUnlinkPath, h.Linking.HandleUnlink),

		WithHTTPHandlerFunc("/healthz", handleHealth),
	}
	if h.Redirects != nil {
		opts = append(opts, WithHTTPHandler(DebugRedirectPath, &redirectDebugHandler{log: h.Redirects}))
	}
	return opts
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type redirectDebugHandler struct {
	log *events.RedirectLog
}

func (h *redirectDebugHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"redirects": h.log.Recent()})
}
