package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/credkeeper/credkeeper/internal/auth"
	"github.com/credkeeper/credkeeper/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate
// testing. They point to interactive input helpers and can be swapped in
// tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts for a username and password (twice) and attempts to
// create an account with an immediate session.
func (a *App) Register(ctx context.Context) error {
	username, err := getSimpleText(a.reader, "Enter username", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword("Enter password", os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	confirm, err := getPassword("Confirm password", os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(confirm)

	remember, err := getSimpleText(a.reader, "Remember this session? (y/N)", os.Stdout)
	if err != nil {
		return err
	}

	res := a.auth.Register(ctx, auth.RegisterRequest{
		Username:        username,
		Password:        string(password),
		ConfirmPassword: string(confirm),
		Remember:        remember == "y" || remember == "Y",
	})
	if !res.Success {
		fmt.Println(res.Error)
		return nil
	}

	fmt.Printf("Registered. Session expires at %s.\n", res.ExpiresAt.Format("15:04:05"))
	return nil
}

// Login prompts for credentials and authenticates. The remember answer
// selects the durable storage scope so the session survives restarts.
func (a *App) Login(ctx context.Context) error {
	username, err := getSimpleText(a.reader, "Enter username", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword("Enter password", os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	remember, err := getSimpleText(a.reader, "Remember this session? (y/N)", os.Stdout)
	if err != nil {
		return err
	}

	res := a.auth.Login(ctx, auth.LoginRequest{
		Username: username,
		Password: string(password),
		Remember: remember == "y" || remember == "Y",
	})
	if !res.Success {
		fmt.Println(res.Error)
		if res.RequiresRegistration {
			fmt.Println("No such account on this device. Use 'register' to create one.")
		}
		return nil
	}

	fmt.Printf("Logged in as %s.\n", res.User.Username)
	return nil
}

// Logout tears down the current session; it always succeeds.
func (a *App) Logout(ctx context.Context) error {
	a.auth.Logout(ctx)
	fmt.Println("Logged out.")
	return nil
}

// ChangePassword re-verifies the current password and overwrites the
// stored credential with a new one.
func (a *App) ChangePassword(ctx context.Context) error {
	user := a.sessions.CurrentUser()
	if user == nil {
		fmt.Println("Not logged in.")
		return nil
	}

	current, err := getPassword("Current password", os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(current)

	next, err := getPassword("New password", os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(next)

	res := a.auth.ChangePassword(ctx, user.Username, string(current), string(next))
	if !res.Success {
		fmt.Println(res.Error)
		return nil
	}

	fmt.Println("Password changed.")
	return nil
}

// Status prints the session summary.
func (a *App) Status(ctx context.Context) error {
	st := a.sessions.Stats()
	if !st.IsActive {
		fmt.Println("No active session.")
		return nil
	}

	fmt.Printf("Session active, %s remaining, auto-refresh %v.\n",
		st.TimeRemaining.Round(time.Second), st.AutoRefreshEnabled)
	a.sessions.UpdateActivity(ctx)
	return nil
}

// Whoami prints the authenticated identity.
func (a *App) Whoami(ctx context.Context) error {
	user := a.sessions.CurrentUser()
	if user == nil || !a.sessions.IsAuthenticated() {
		fmt.Println("Not logged in.")
		return nil
	}
	fmt.Printf("%s (%s)\n", user.Username, user.ID)
	return nil
}

// Integrity runs the stored-credential integrity check for the current
// user.
func (a *App) Integrity(ctx context.Context) error {
	if a.auth.VerifyCredentialIntegrity(ctx) {
		fmt.Println("Credential store OK.")
	} else {
		fmt.Println("Credential integrity check FAILED. Stored credentials are unusable on this device.")
	}
	return nil
}
