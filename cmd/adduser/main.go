package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"expense-ledger/internal/auth"
	"expense-ledger/internal/models"
	"expense-ledger/internal/storage"

	"golang.org/x/term"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("adduser", flag.ContinueOnError)
	fs.SetOutput(stderr)

	email := fs.String("email", "", "Email address")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	firstName := fs.String("first", "", "First name")
	lastName := fs.String("last", "", "Last name")
	dbPath := fs.String("db", "ledger.db", "Path to database file or postgres:// URL")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *email == "" {
		fmt.Fprintln(stdout, "Usage: adduser -email <email> [-password <password>] [-first <name>] [-last <name>] [-db <db_path>]")
		fs.PrintDefaults()
		return fmt.Errorf("missing required flags: email")
	}

	password := *passwordFlag
	if password == "" {
		fmt.Fprint(stdout, "Password: ")
		var err error
		password, err = readPassword(stdin)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(stdout)
	}

	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("password cannot be empty")
	}

	// DB_PATH wins over the flag default only.
	if path := os.Getenv("DB_PATH"); path != "" && *dbPath == "ledger.db" {
		*dbPath = path
	}

	ctx := context.Background()
	store, err := storage.Open(ctx, *dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	// The issuer is only needed for sessions, which adduser never starts.
	svc := auth.NewService(store, nil)
	user, err := svc.CreateAccount(ctx, *email, password)
	switch {
	case errors.Is(err, auth.ErrEmailInUse):
		return fmt.Errorf("user %s already exists", *email)
	case auth.Code(err) != "":
		return fmt.Errorf("failed to create user: %s", auth.Message(err))
	case err != nil:
		return fmt.Errorf("failed to create user: %w", err)
	}

	profile := models.Profile{
		FirstName: *firstName,
		LastName:  *lastName,
		Email:     user.Email,
		CreatedAt: time.Now().UTC(),
	}
	if err := store.PutProfile(ctx, user.ID, profile); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}

	fmt.Fprintf(stdout, "User %s created successfully with ID %s\n", user.Email, user.ID)
	return nil
}

func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		bytePassword, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(bytePassword), nil
	}

	// Non-terminal input (pipes, tests).
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
