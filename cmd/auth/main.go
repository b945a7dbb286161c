// Package main provides the Spotify authentication tool.
// It prints a user access token and account id for calling the playlist API by hand.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/osa030/tonaly/internal/infra/spotify"
)

var (
	app          = kingpin.New("tonaly-auth", "Spotify authentication tool for Tonaly")
	clientID     = app.Flag("client-id", "Spotify Client ID").Envar("SPOTIFY_CLIENT_ID").Required().String()
	clientSecret = app.Flag("client-secret", "Spotify Client Secret").Envar("SPOTIFY_CLIENT_SECRET").Required().String()
	port         = app.Flag("port", "Callback server port").Default("8888").Int()
)

type outcome struct {
	session *spotify.Session
	err     error
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	redirectURI := fmt.Sprintf("http://127.0.0.1:%d/callback", *port)

	auth, err := spotify.NewAuthenticator(spotify.AuthConfig{
		ClientID:     *clientID,
		ClientSecret: *clientSecret,
		RedirectURL:  redirectURI,
	}, spotify.New(spotify.Config{}))
	if err != nil {
		log.Fatalf("Failed to create authenticator: %v", err)
	}

	state := uuid.NewString()
	ch := make(chan outcome, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		if st := r.FormValue("state"); st != state {
			http.Error(w, "State mismatch", http.StatusForbidden)
			log.Printf("State mismatch: %s != %s", st, state)
			return
		}

		code := r.FormValue("code")
		if code == "" {
			http.Error(w, "Authorization denied", http.StatusForbidden)
			ch <- outcome{err: fmt.Errorf("authorization denied: %s", r.FormValue("error"))}
			return
		}

		session, err := auth.Exchange(r.Context(), code)
		if err != nil {
			http.Error(w, "Failed to get token", http.StatusForbidden)
			ch <- outcome{err: err}
			return
		}

		fmt.Fprint(w, completePage)
		ch <- outcome{session: session}
	})

	server := &http.Server{Addr: fmt.Sprintf(":%d", *port), Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	fmt.Println("Please visit the following URL to authorize Tonaly:")
	fmt.Println("")
	fmt.Println(auth.AuthURL(state))
	fmt.Println("")
	fmt.Println("Waiting for authorization...")

	result := <-ch

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Failed to shutdown server: %v", err)
	}

	if result.err != nil {
		log.Fatalf("Authorization failed: %v", result.err)
	}

	fmt.Println("")
	fmt.Println("=== Authorization Successful ===")
	fmt.Println("")
	fmt.Printf("User:         %s (%s)\n", result.session.DisplayName, result.session.UserID)
	fmt.Println("Access Token:")
	fmt.Println(result.session.AccessToken)
	fmt.Println("")
	fmt.Println("Use them with the CLI:")
	fmt.Println("")
	fmt.Printf("export TONALY_ACCESS_TOKEN=\"%s\"\n", result.session.AccessToken)
	fmt.Printf("export TONALY_USER_ID=\"%s\"\n", result.session.UserID)
}

const completePage = `
<!DOCTYPE html>
<html>
<head>
    <title>Tonaly - Authorization Complete</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            display: flex;
            justify-content: center;
            align-items: center;
            height: 100vh;
            margin: 0;
            background: linear-gradient(135deg, #1DB954 0%, #191414 100%);
            color: white;
        }
        .container {
            text-align: center;
            padding: 40px;
            background: rgba(0, 0, 0, 0.5);
            border-radius: 16px;
        }
    </style>
</head>
<body>
    <div class="container">
        <h1>Authorization Complete</h1>
        <p>You can close this window and return to the terminal.</p>
    </div>
</body>
</html>
`
