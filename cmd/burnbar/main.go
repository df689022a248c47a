package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/nixlim/burnbar/internal/api"
	"github.com/nixlim/burnbar/internal/app"
	"github.com/nixlim/burnbar/internal/auth"
	"github.com/nixlim/burnbar/internal/autostart"
	"github.com/nixlim/burnbar/internal/config"
	"github.com/nixlim/burnbar/internal/usage"
)

func main() {
	loginFlag := flag.Bool("login", false, "Run the OAuth login flow and exit")
	importFlag := flag.Bool("import", false, "Import credentials from Claude Code and exit")
	checkFlag := flag.Bool("check", false, "Run one usage check, print the result and exit")
	autostartFlag := flag.String("autostart", "", "Manage launch-at-login: \"install\" or \"uninstall\"")
	configFlag := flag.String("config", "", "Config file path (default ~/.config/burnbar/config.toml)")
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *autostartFlag != "" {
		runAutostart(*autostartFlag)
		return
	}

	cfgPath := *configFlag
	if cfgPath == "" {
		cfgPath = config.DefaultConfigPath()
	}

	loadResult, err := config.LoadFrom(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "burnbar: config error: %v\n", err)
		os.Exit(1)
	}
	for _, w := range loadResult.Warnings {
		fmt.Fprintf(os.Stderr, "burnbar: config warning: %s\n", w)
	}
	store := config.NewStore(loadResult.Config, cfgPath)

	log, closeLog, err := setupLogger(*debugFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "burnbar: log setup: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	switch {
	case *loginFlag:
		runLogin(store, log)
		return
	case *importFlag:
		runImport(store, log)
		return
	case *checkFlag:
		runCheck(store, log)
		return
	}

	a := app.New(store, log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		a.Stop()
	}()

	if err := a.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "burnbar: %v\n", err)
		os.Exit(1)
	}
}

// setupLogger writes structured logs to ~/.config/burnbar/burnbar.log.
// The terminal is owned by the display, so nothing logs to stdout.
func setupLogger(debug bool) (zerolog.Logger, func(), error) {
	dir := filepath.Dir(config.DefaultConfigPath())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return zerolog.Nop(), nil, err
	}
	path := filepath.Join(dir, "burnbar.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return zerolog.Nop(), nil, err
	}

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(f).Level(level).With().Timestamp().Logger()
	return log, func() { _ = f.Close() }, nil
}

func runAutostart(action string) {
	var err error
	switch action {
	case "install":
		err = autostart.Install()
	case "uninstall":
		err = autostart.Uninstall()
	default:
		fmt.Fprintf(os.Stderr, "burnbar: unknown autostart action %q\n", action)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "burnbar: autostart %s: %v\n", action, err)
		os.Exit(1)
	}
	fmt.Printf("Autostart %sed.\n", action)
}

// runLogin walks the PKCE flow on the terminal: print the authorization
// URL, read the pasted code, exchange and persist the tokens.
func runLogin(store *config.Store, log zerolog.Logger) {
	login, err := auth.BeginLogin()
	if err != nil {
		fmt.Fprintf(os.Stderr, "burnbar: login: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Open this URL in your browser and authorize access:")
	fmt.Println()
	fmt.Println("  " + login.AuthorizationURL)
	fmt.Println()
	fmt.Print("Paste the authorization code: ")

	reader := bufio.NewReader(os.Stdin)
	code, err := reader.ReadString('\n')
	if err != nil {
		fmt.Fprintf(os.Stderr, "burnbar: reading code: %v\n", err)
		os.Exit(1)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		fmt.Fprintln(os.Stderr, "burnbar: no code entered")
		os.Exit(1)
	}

	mgr := auth.NewManager(store, log)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cred, err := mgr.CompleteLogin(ctx, code, login.Verifier)
	if err != nil {
		fmt.Fprintf(os.Stderr, "burnbar: token exchange: %v\n", err)
		os.Exit(1)
	}

	store.SetAuthMode(config.AuthOAuth)
	store.SetOAuthTokens(cred.AccessToken, cred.RefreshToken, cred.ExpiresAt)
	if err := store.Save(); err != nil {
		fmt.Fprintf(os.Stderr, "burnbar: saving config: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Login successful, tokens saved.")
}

func runImport(store *config.Store, log zerolog.Logger) {
	mgr := auth.NewManager(store, log)
	ok, err := mgr.ImportAndSave()
	if err != nil {
		fmt.Fprintf(os.Stderr, "burnbar: import: %v\n", err)
		os.Exit(1)
	}
	if !ok {
		fmt.Fprintln(os.Stderr, "burnbar: no Claude Code credentials found")
		os.Exit(1)
	}
	fmt.Println("Imported Claude Code credentials.")
}

// runCheck performs one usage check and prints the result, for cron
// jobs and for verifying a fresh setup.
func runCheck(store *config.Store, log zerolog.Logger) {
	mgr := auth.NewManager(store, log)
	if !mgr.Available() {
		fmt.Fprintln(os.Stderr, "burnbar: no credentials configured")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := mgr.EnsureValid(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "burnbar: credential refresh: %v\n", err)
		os.Exit(1)
	}

	client := api.New(log, api.WithEndpointMode(api.EndpointMode(store.EndpointMode())))
	snap, err := client.CheckUsage(ctx, mgr.Current())
	if err != nil {
		fmt.Fprintf(os.Stderr, "burnbar: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(snap.Summary())
	if snap.Kind == usage.KindUnified {
		fmt.Println(snap.DetailLine())
	}
	if rd := snap.ResetDisplay(time.Now()); rd != "" {
		fmt.Println("Resets: " + rd)
	}
}
