package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"expense-ledger/internal/auth"
	"expense-ledger/internal/format"

	"github.com/google/subcommands"
)

type signupCmd struct {
	*env
	email, first, last string
}

func (*signupCmd) Name() string     { return "signup" }
func (*signupCmd) Synopsis() string { return "create an account and sign in" }
func (*signupCmd) Usage() string {
	return `ledger signup -email <email> -first <name> -last <name>

  Creates an email/password account, writes its profile and signs in.
  The password is prompted for.
`
}

func (c *signupCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.email, "email", "", "Email address")
	f.StringVar(&c.first, "first", "", "First name")
	f.StringVar(&c.last, "last", "", "Last name")
}

func (c *signupCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.email == "" {
		return c.fail("missing required flags: email")
	}
	a, err := c.open(ctx)
	if err != nil {
		return c.fail("%v", err)
	}
	defer a.Close()

	password, err := c.readPassword("Password: ")
	if err != nil {
		return c.fail("failed to read password: %v", err)
	}
	if err := a.holder.SignUp(ctx, c.email, password, strings.TrimSpace(c.first), strings.TrimSpace(c.last)); err != nil {
		return c.fail("%s", authMessage(err))
	}
	if err := a.settle(ctx, true); err != nil {
		return c.fail("%v", err)
	}
	fmt.Fprintf(c.stdout, "Welcome, %s!\n", displayName(a))
	return subcommands.ExitSuccess
}

type loginCmd struct {
	*env
	email string
}

func (*loginCmd) Name() string     { return "login" }
func (*loginCmd) Synopsis() string { return "sign in with email and password" }
func (*loginCmd) Usage() string {
	return `ledger login -email <email>

  Signs in and remembers the session in the encrypted local store.
`
}

func (c *loginCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.email, "email", "", "Email address")
}

func (c *loginCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.email == "" {
		return c.fail("missing required flags: email")
	}
	a, err := c.open(ctx)
	if err != nil {
		return c.fail("%v", err)
	}
	defer a.Close()

	password, err := c.readPassword("Password: ")
	if err != nil {
		return c.fail("failed to read password: %v", err)
	}
	if err := a.holder.Login(ctx, c.email, password); err != nil {
		return c.fail("%s", authMessage(err))
	}
	if err := a.settle(ctx, true); err != nil {
		return c.fail("%v", err)
	}
	if err := a.holder.FetchProfile(ctx); err != nil {
		return c.fail("%v", err)
	}
	fmt.Fprintf(c.stdout, "Welcome back, %s!\n", displayName(a))
	return subcommands.ExitSuccess
}

type loginTokenCmd struct {
	*env
	provider, token, code, verifier string
}

func (*loginTokenCmd) Name() string     { return "login-token" }
func (*loginTokenCmd) Synopsis() string { return "sign in with a Google or GitHub credential" }
func (*loginTokenCmd) Usage() string {
	return `ledger login-token -provider google|github (-token <token> | -code <code>)

  Signs in with an identity token issued by the provider. For GitHub an
  OAuth authorization code may be given instead; the server exchanges it.
  A profile is created from the provider's display name on first sign-in.
`
}

func (c *loginTokenCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.provider, "provider", auth.ProviderGoogle, "Identity provider: google or github")
	f.StringVar(&c.token, "token", "", "Identity or access token")
	f.StringVar(&c.code, "code", "", "GitHub OAuth authorization code")
	f.StringVar(&c.verifier, "verifier", "", "PKCE code verifier for -code")
}

func (c *loginTokenCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.token == "" && c.code == "" {
		return c.fail("one of -token or -code is required")
	}
	a, err := c.open(ctx)
	if err != nil {
		return c.fail("%v", err)
	}
	defer a.Close()

	if c.code != "" {
		if c.provider != auth.ProviderGitHub {
			return c.fail("-code is only supported for github")
		}
		id, err := a.remote.SignInWithGitHubCode(ctx, c.code, c.verifier)
		if err != nil {
			return c.fail("%s", authMessage(err))
		}
		if err := a.holder.CompleteExternalSignIn(ctx, id); err != nil {
			return c.fail("%v", err)
		}
	} else if err := a.holder.LoginWithExternalToken(ctx, c.provider, c.token); err != nil {
		return c.fail("%s", authMessage(err))
	}
	if err := a.settle(ctx, true); err != nil {
		return c.fail("%v", err)
	}
	fmt.Fprintf(c.stdout, "Welcome, %s!\n", displayName(a))
	return subcommands.ExitSuccess
}

type logoutCmd struct{ *env }

func (*logoutCmd) Name() string             { return "logout" }
func (*logoutCmd) Synopsis() string         { return "sign out and forget the saved session" }
func (*logoutCmd) Usage() string            { return "ledger logout\n" }
func (*logoutCmd) SetFlags(_ *flag.FlagSet) {}

func (c *logoutCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := c.open(ctx)
	if err != nil {
		return c.fail("%v", err)
	}
	defer a.Close()

	if err := a.holder.Logout(ctx); err != nil {
		return c.fail("%v", err)
	}
	a.book.Reset()
	fmt.Fprintln(c.stdout, "Signed out.")
	return subcommands.ExitSuccess
}

type whoamiCmd struct{ *env }

func (*whoamiCmd) Name() string             { return "whoami" }
func (*whoamiCmd) Synopsis() string         { return "greet the signed-in user" }
func (*whoamiCmd) Usage() string            { return "ledger whoami\n" }
func (*whoamiCmd) SetFlags(_ *flag.FlagSet) {}

func (c *whoamiCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := c.open(ctx)
	if err != nil {
		return c.fail("%v", err)
	}
	defer a.Close()

	if _, ok := a.userID(); !ok {
		return subcommands.ExitFailure
	}
	if err := a.holder.FetchProfile(ctx); err != nil {
		return c.fail("%v", err)
	}
	s := a.holder.Snapshot()
	fmt.Fprintf(c.stdout, "%s %s\n", format.CurrentGreeting(c.now()), displayName(a))
	if p := s.Profile; p != nil {
		fmt.Fprintf(c.stdout, "[%s] %s\n", format.Initials(p.FirstName, p.LastName), p.Email)
		if !p.CreatedAt.IsZero() {
			fmt.Fprintf(c.stdout, "Member since %s\n", p.CreatedAt.Local().Format("Jan 2, 2006"))
		}
	} else {
		fmt.Fprintln(c.stdout, s.Identity.Email)
	}
	return subcommands.ExitSuccess
}

// displayName prefers the profile's first name over the email address.
func displayName(a *app) string {
	s := a.holder.Snapshot()
	if s.Profile != nil && s.Profile.FirstName != "" {
		return s.Profile.FirstName
	}
	if s.Identity != nil {
		return s.Identity.Email
	}
	return "there"
}

// authMessage shows auth failures in their short form.
func authMessage(err error) string {
	if auth.Code(err) != "" {
		return auth.Message(err)
	}
	return err.Error()
}
