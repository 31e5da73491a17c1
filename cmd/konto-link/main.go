// Command konto-link links a bank from the terminal: it starts the
// authorization, waits for the redirect code and stores the new session.
//
// Usage: konto-link <bank name> <country code>
package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"konto/internal/accounts"
	"konto/internal/cli"
	"konto/internal/connections"
	"konto/internal/log"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintln(os.Stderr, "usage: konto-link <bank name> <country code>")
		os.Exit(2)
	}
	bank, country := os.Args[1], strings.ToUpper(os.Args[2])

	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store := cli.OpenStore(ctx, cfg, logger)
	defer func() { _ = store.Cleanup() }()

	gw := cli.NewGateway(cfg, logger)
	agg := accounts.New(store.Store, gw, logger)
	conns := connections.NewService(store.Store, gw, agg, cfg.BankListCacheTTL, logger)

	auth, err := conns.Start(ctx, bank, country)
	if err != nil {
		logger.Error("Failed to start authorization", log.FieldError, err)
		os.Exit(1)
	}

	// The redirect lands either on the local callback (when the gateway
	// is set up to redirect to it) or in the browser, from where the user
	// pastes the URL.
	codeCh := make(chan string, 2)
	port := os.Getenv("LINK_CALLBACK_PORT")
	if port == "" {
		port = "8085"
	}
	srv := &http.Server{Addr: "localhost:" + port, ReadHeaderTimeout: 10 * time.Second}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /callback", func(w http.ResponseWriter, r *http.Request) {
		if errStr := r.URL.Query().Get("error"); errStr != "" {
			http.Error(w, "Authorization error: "+errStr, http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "You may close this window and return to the terminal.")
		select {
		case codeCh <- r.URL.Query().Get("code"):
		default:
		}
	})
	srv.Handler = mux
	go func() { _ = srv.ListenAndServe() }()
	defer srv.Close()

	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			if code := extractCode(sc.Text()); code != "" {
				codeCh <- code
				return
			}
		}
	}()

	fmt.Printf("Open this URL to authorize %s:\n%s\n", bank, auth.RedirectURL)
	fmt.Printf("Waiting on http://localhost:%s/callback, or paste the URL you were redirected to:\n", port)

	select {
	case code := <-codeCh:
		session, err := conns.Complete(ctx, code)
		if err != nil {
			logger.Error("Failed to complete authorization", log.FieldError, err)
			os.Exit(1)
		}
		fmt.Printf("Linked %s with %d account(s), session %s\n", session.BankName, len(session.Accounts), session.SessionID)
	case <-time.After(10 * time.Minute):
		logger.Error("Authorization timed out")
		os.Exit(1)
	case <-ctx.Done():
		logger.Error("Interrupted")
		os.Exit(1)
	}
}

// extractCode accepts a full redirect URL or a bare code.
func extractCode(input string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}
	if u, err := url.Parse(input); err == nil && u.Scheme != "" {
		return u.Query().Get("code")
	}
	return input
}
