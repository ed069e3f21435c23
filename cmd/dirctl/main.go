// Command dirctl is a terminal client for the directory backend. It keeps a
// session on disk, bootstraps the signed-in user's profile and can follow
// profile changes over realtime.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/waypoint-tourism/directory/internal/account"
	"github.com/waypoint-tourism/directory/internal/cache"
	"github.com/waypoint-tourism/directory/internal/cli"
	"github.com/waypoint-tourism/directory/internal/config"
	"github.com/waypoint-tourism/directory/internal/database"
	"github.com/waypoint-tourism/directory/internal/logging"
	"github.com/waypoint-tourism/directory/internal/profile"
	"github.com/waypoint-tourism/directory/internal/session"
	"github.com/waypoint-tourism/directory/internal/supabase"
)

const program = "dirctl"

// errReported marks failures the account facade already printed as a notice.
var errReported = errors.New("reported")

type app struct {
	cfg     *config.Config
	out     *cli.Printer
	logger  *logging.Logger
	client  *supabase.Client
	store   *session.Store
	account *account.Service
	loader  *profile.Loader
	tracker *profile.Tracker
}

type handler func(ctx context.Context, a *app, args []string) error

var handlers = map[string]handler{
	"signup":  runSignUp,
	"signin":  runSignIn,
	"signout": runSignOut,
	"refresh": runRefresh,
	"reset":   runReset,
	"whoami":  runWhoAmI,
	"profile": runProfile,
	"watch":   runWatch,
}

var commands = []cli.Command{
	{Name: "signup", Description: "Create an account", Flags: []string{"--email", "--password", "--name"}},
	{Name: "signin", Description: "Sign in with email and password", Flags: []string{"--email", "--password"}},
	{Name: "signout", Description: "Revoke the stored session"},
	{Name: "refresh", Description: "Exchange the refresh token now"},
	{Name: "reset", Description: "Email a password reset link", Flags: []string{"--email"}},
	{Name: "whoami", Description: "Show the signed-in user and profile", Flags: []string{"--json"}},
	{Name: "profile", Description: "Edit the profile", Subcommands: []cli.Command{
		{Name: "set", Description: "Update profile fields"},
	}},
	{Name: "watch", Description: "Follow profile changes until interrupted"},
	{Name: "completion", Description: "Generate shell completion", Flags: []string{"--install"}},
}

func main() {
	global := flag.NewFlagSet(program, flag.ExitOnError)
	envFile := global.String("env", ".env", "dotenv file to load before reading the environment")
	sessionPath := global.String("session", "", "session file (default ~/.config/dirctl/session.yaml)")
	verbose := global.Bool("v", false, "log debug output to stderr")
	global.Usage = func() { usage(global) }
	_ = global.Parse(os.Args[1:])

	args := global.Args()
	if len(args) == 0 {
		usage(global)
		os.Exit(2)
	}
	name, rest := args[0], args[1:]

	out := cli.NewPrinter(os.Stdout)
	if name == "completion" {
		if err := runCompletion(out, rest); err != nil {
			out.Error(err.Error())
			os.Exit(1)
		}
		return
	}

	run, ok := handlers[name]
	if !ok {
		out.Error(fmt.Sprintf("unknown command %q", name))
		usage(global)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, out, *envFile, *sessionPath, *verbose)
	if err != nil {
		out.Error(err.Error())
		os.Exit(1)
	}

	if err := run(ctx, a, rest); err != nil {
		if !errors.Is(err, errReported) {
			out.Error(err.Error())
		}
		os.Exit(1)
	}
}

func usage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags] <command> [args]\n\nCommands:\n", program)
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-12s %s\n", c.Name, c.Description)
	}
	fmt.Fprintln(os.Stderr, "\nFlags:")
	fs.PrintDefaults()
}

func newApp(ctx context.Context, out *cli.Printer, envFile, sessionPath string, verbose bool) (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}

	level := "warn"
	if verbose {
		level = "debug"
	}
	logger := logging.New(program, level, "text")
	logger.SetOutput(os.Stderr)

	client, err := supabase.New(supabase.Config{
		URL:     cfg.SupabaseURL,
		AnonKey: cfg.SupabaseAnonKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create backend client: %w", err)
	}

	if sessionPath == "" {
		if sessionPath, err = session.DefaultSessionPath(); err != nil {
			return nil, fmt.Errorf("locate session file: %w", err)
		}
	}
	store := session.NewStore(session.NewFilePersister(sessionPath), logger)

	repo := database.NewRepository(client)
	loader, err := profile.NewLoader(profile.Config{
		Repository: repo,
		Cache:      cache.NewMemory(),
		CacheTTL:   cfg.Cache.TTL,
		Notifier:   out,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		out:     out,
		logger:  logger,
		client:  client,
		store:   store,
		account: account.New(client.Auth(), loader, store, out, logger),
		loader:  loader,
		tracker: profile.NewTracker(loader),
	}
	if err := a.resume(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// resume loads the stored session and refreshes it if it is about to expire.
// The tracker is attached afterwards so the bootstrap runs with a live token.
func (a *app) resume(ctx context.Context) error {
	if err := a.store.Restore(ctx); err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if a.store.SignedIn() {
		refresher := session.NewRefresher(a.store, a.client.Auth(), a.cfg.Session.RefreshMargin, a.logger)
		if _, err := refresher.Check(ctx); err != nil {
			a.out.Warning("Stored session expired; sign in again.")
		}
	}
	a.tracker.Attach(a.store)
	return nil
}

// currentProfile bootstraps the profile for the stored identity.
func (a *app) currentProfile(ctx context.Context) error {
	identity := a.store.Identity()
	if identity == nil {
		return account.ErrNotSignedIn
	}
	ctx = database.WithAccessToken(ctx, a.store.AccessToken())
	p, err := a.loader.Load(ctx, *identity)
	if err != nil {
		return err
	}
	a.tracker.Set(p)
	return nil
}
