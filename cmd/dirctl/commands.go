package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/waypoint-tourism/directory/internal/account"
	"github.com/waypoint-tourism/directory/internal/cli"
	"github.com/waypoint-tourism/directory/internal/domain"
	"github.com/waypoint-tourism/directory/internal/session"
)

// reported swaps err for errReported; the facade has already printed it.
func reported(err error) error {
	if err != nil {
		return errReported
	}
	return nil
}

func password(fs *flag.FlagSet) *string {
	return fs.String("password", os.Getenv("DIRCTL_PASSWORD"), "account password (or DIRCTL_PASSWORD)")
}

func runSignUp(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("signup", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	pass := password(fs)
	name := fs.String("name", "", "full name, used as the initial display name")
	_ = fs.Parse(args)

	var res *account.SignUpResult
	err := cli.NewSpinner(os.Stderr, "Creating account").Wrap(func() (err error) {
		res, err = a.account.SignUp(ctx, *email, *pass, *name)
		return err
	})
	if err != nil {
		return reported(err)
	}
	if res.ConfirmationRequired {
		return nil
	}
	return a.printWhoAmI(false)
}

func runSignIn(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("signin", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	pass := password(fs)
	_ = fs.Parse(args)

	err := cli.NewSpinner(os.Stderr, "Signing in").Wrap(func() error {
		return a.account.SignIn(ctx, *email, *pass)
	})
	if err != nil {
		return reported(err)
	}
	return a.printWhoAmI(false)
}

func runSignOut(ctx context.Context, a *app, _ []string) error {
	if !a.store.SignedIn() {
		a.out.Info("Not signed in.")
		return nil
	}
	return reported(a.account.SignOut(ctx))
}

func runRefresh(ctx context.Context, a *app, _ []string) error {
	if err := a.account.Refresh(ctx); err != nil {
		return reported(err)
	}
	if t := a.store.Tokens(); t != nil && !t.ExpiresAt.IsZero() {
		a.out.Success("Session refreshed, valid until " + t.ExpiresAt.Local().Format("15:04:05"))
	}
	return nil
}

func runReset(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	_ = fs.Parse(args)
	return reported(a.account.ResetPassword(ctx, *email))
}

func runWhoAmI(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("whoami", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "print JSON")
	_ = fs.Parse(args)

	if !a.store.SignedIn() {
		return account.ErrNotSignedIn
	}
	if p, _ := a.tracker.Profile(); p == nil {
		if err := a.currentProfile(ctx); err != nil {
			return reported(err)
		}
	}
	return a.printWhoAmI(*asJSON)
}

func (a *app) printWhoAmI(asJSON bool) error {
	identity := a.store.Identity()
	p, err := a.tracker.Profile()
	if asJSON {
		return a.out.JSON(struct {
			User    *domain.Identity `json:"user"`
			Profile *domain.Profile  `json:"profile"`
		}{identity, p})
	}

	if identity != nil {
		a.out.Field("User", identity.ID)
		a.out.Field("Email", identity.Email)
	}
	if p == nil {
		if err != nil {
			a.out.Warning("Profile unavailable.")
		}
		return nil
	}
	a.out.Field("Display name", p.DisplayName)
	a.out.Field("Role", p.Role)
	a.out.Field("Status", p.Status)
	a.out.Field("Interests", strings.Join(p.Interests, ", "))
	a.out.Field("Regions", strings.Join(p.PreferredRegions, ", "))
	a.out.Field("Travel styles", strings.Join(p.TravelStyles, ", "))
	return nil
}

// listFlag collects a comma separated list and remembers whether it was set,
// so "--interests=" clears the list while omitting the flag leaves it alone.
type listFlag struct {
	set    bool
	values []string
}

func (l *listFlag) String() string { return strings.Join(l.values, ",") }

func (l *listFlag) Set(v string) error {
	l.set = true
	l.values = []string{}
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			l.values = append(l.values, item)
		}
	}
	return nil
}

func (l *listFlag) ptr() *[]string {
	if !l.set {
		return nil
	}
	return &l.values
}

func runProfile(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 || args[0] != "set" {
		return fmt.Errorf("usage: %s profile set [--display-name NAME] [--avatar-url URL] [--interests a,b] [--regions a,b] [--styles a,b]", program)
	}

	fs := flag.NewFlagSet("profile set", flag.ExitOnError)
	displayName := fs.String("display-name", "", "display name")
	avatarURL := fs.String("avatar-url", "", "avatar image URL")
	var interests, regions, styles listFlag
	fs.Var(&interests, "interests", "comma separated interests")
	fs.Var(&regions, "regions", "comma separated preferred regions")
	fs.Var(&styles, "styles", "comma separated travel styles")
	_ = fs.Parse(args[1:])

	update := domain.ProfileUpdate{
		Interests:        interests.ptr(),
		PreferredRegions: regions.ptr(),
		TravelStyles:     styles.ptr(),
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "display-name":
			update.DisplayName = displayName
		case "avatar-url":
			update.AvatarURL = avatarURL
		}
	})
	if update.IsEmpty() {
		return fmt.Errorf("nothing to update")
	}

	if _, err := a.account.UpdateProfile(ctx, update); err != nil {
		return reported(err)
	}
	return a.printWhoAmI(false)
}

// runWatch keeps the session alive and prints the profile whenever the
// backend pushes a change, until interrupted or signed out elsewhere.
func runWatch(ctx context.Context, a *app, _ []string) error {
	if !a.store.SignedIn() {
		return account.ErrNotSignedIn
	}

	refresher := session.NewRefresher(a.store, a.client.Auth(), a.cfg.Session.RefreshMargin, a.logger)
	if err := refresher.Start(a.cfg.Session.RefreshSchedule); err != nil {
		return fmt.Errorf("schedule token refresh: %w", err)
	}
	defer refresher.Stop()

	signedOut := make(chan struct{})
	var once sync.Once
	unsubscribe := a.store.Subscribe(func(_ context.Context, ev session.Event) {
		switch ev.Type {
		case session.EventUserUpdated:
			if ev.Profile != nil {
				a.out.Info(fmt.Sprintf("Profile updated: %s (%s, %s)", ev.Profile.DisplayName, ev.Profile.Role, ev.Profile.Status))
			}
		case session.EventTokenRefreshed:
			a.logger.Debug("session refreshed")
		case session.EventSignedOut:
			once.Do(func() { close(signedOut) })
		}
	})
	defer unsubscribe()

	watcher := session.NewProfileWatcher(a.store, a.client.Realtime(), a.logger)
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("subscribe to profile changes: %w", err)
	}
	defer watcher.Stop()

	a.out.Info("Watching profile changes. Press Ctrl+C to stop.")
	select {
	case <-ctx.Done():
		return nil
	case <-signedOut:
		a.out.Warning("Signed out.")
		return nil
	case <-watcher.Done():
		return fmt.Errorf("realtime connection closed")
	}
}

func runCompletion(out *cli.Printer, args []string) error {
	fs := flag.NewFlagSet("completion", flag.ExitOnError)
	install := fs.Bool("install", false, "install the script under the home directory")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: %s completion [--install] <%s>", program, strings.Join(cli.Shells, "|"))
	}
	shell := fs.Arg(0)

	if !*install {
		return cli.GenerateCompletion(os.Stdout, shell, program, commands)
	}
	path, err := cli.InstallCompletion(shell, program, commands)
	if err != nil {
		return err
	}
	out.Success("Completion script installed to " + path)
	return nil
}
