// Command authlink runs the OAuth orchestration server: Google identity
// login plus the separate calendar linking flow.
//
// Configuration comes from authlink.yaml and AL__ environment variables,
// e.g.:
//
//	AL__SERVER__PORT=8000
//	AL__GOOGLE__CLIENT_ID=...
//	AL__GOOGLE__CLIENT_SECRET=...
//	AL__FRONTEND__BASE_URL=https://app.example.com
package main

import (
	"context"
	"log"
	"os"

	"github.com/bestieapp/authlink/auth"
	"github.com/bestieapp/authlink/config"
	"github.com/bestieapp/authlink/credential"
	"github.com/bestieapp/authlink/events"
	"github.com/bestieapp/authlink/google"
	"github.com/bestieapp/authlink/logging"
	"github.com/bestieapp/authlink/oauthstate"
	"github.com/bestieapp/authlink/server"
	"github.com/bestieapp/authlink/storage"
	"github.com/bestieapp/authlink/storage/memorystore"
	"github.com/bestieapp/authlink/storage/postgres"
	"github.com/bestieapp/authlink/storage/sqlitestore"
	"github.com/bestieapp/authlink/user"
)

func main() {
	logger := logging.NewProdLogger()
	if os.Getenv("ENV") == "dev" {
		logger = logging.NewDevLogger()
	}
	ctx := logging.With(context.Background(), logger)

	db, err := openStore()
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	states := oauthstate.New()
	defer states.Close()

	session := server.NewSessionStore()
	defer session.Close()

	bus := events.New(ctx)
	redirects := events.NewRedirectLog(64)
	bus.Subscribe(events.LoginFailed, logActivity)
	bus.Subscribe(events.CalendarLinkFailed, logActivity)

	oauthConf := google.OAuthConfig()
	issuer := auth.NewIssuer()
	users := user.NewDirectory(db)
	creds := credential.New(db, google.ProviderName, oauthConf)

	login := google.NewLoginHandler(google.LoginDeps{
		OAuth:       oauthConf,
		Issuer:      issuer,
		Users:       users,
		Credentials: creds,
		Session:     session,
		Bus:         bus,
		Redirects:   redirects,
	})
	linking := google.NewLinkingController(google.LinkingDeps{
		OAuth:       oauthConf,
		States:      states,
		Credentials: creds,
		Issuer:      issuer,
		Users:       users,
		Bus:         bus,
		Redirects:   redirects,
	})

	opts := append(
		server.RouteOptions(server.AppHandlers{
			Login:     login,
			Linking:   linking,
			Redirects: redirects,
		}),
		server.WithLogger(logger),
	)

	s := server.New(opts...)
	if err := s.Start(); err != nil {
		log.Fatalf("server: %v", err)
	}
	bus.Wait(ctx)
}

func openStore() (storage.Store, error) {
	switch driver := config.String("storage.driver"); driver {
	case "", "memory":
		return memorystore.New(), nil
	case "sqlite":
		return sqlitestore.New(config.String("storage.dsn")), nil
	case "postgres":
		return postgres.SafeNew(config.String("storage.dsn"))
	default:
		log.Fatalf("storage: unknown driver %q", driver)
		return nil, nil
	}
}

func logActivity(ctx context.Context, topic string, data any) error {
	a, ok := data.(events.Activity)
	if !ok {
		return nil
	}
	logging.Warnw(ctx, "flow failed", "topic", topic, "user", a.UserID,
		"mobile", a.IsMobile, "error", a.Error)
	return nil
}
