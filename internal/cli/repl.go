package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface is the minimal command surface the REPL needs. The real App
// satisfies it; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	ChangePassword(ctx context.Context) error
	Status(ctx context.Context) error
	Whoami(ctx context.Context) error
	Integrity(ctx context.Context) error
}

// runREPL reads a line from scanner, parses the first token as the
// command, and dispatches to a. The loop exits on EOF or when the user
// types "exit" or "quit". Handler errors are ignored here; handlers report
// their own failures, which keeps the loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("ck> %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		switch cmd := parts[0]; cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: status, whoami, passwd, integrity, logout, exit")
			} else {
				printlnFn("Available commands: register, login, exit")
			}

		case "register":
			_ = a.Register(ctx)

		case "login":
			_ = a.Login(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "passwd":
			_ = a.ChangePassword(ctx)

		case "status":
			_ = a.Status(ctx)

		case "whoami":
			_ = a.Whoami(ctx)

		case "integrity":
			_ = a.Integrity(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
