package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Init(ctx context.Context) error
	List(ctx context.Context, args []string) error
	Stage(ctx context.Context, args []string) error
	Sync(ctx context.Context, target string) error
	Empty(ctx context.Context, target string) error
	AutoSync(ctx context.Context, args []string) error
	History(ctx context.Context) error
	Settings(ctx context.Context) error
	Logs(ctx context.Context) error
}

const (
	helpLoggedOut = "Available commands: login, settings, logs, history, exit"
	helpLoggedIn  = "Available commands: init, (l)ist [dir], stage <src> [dst], sync <target>, empty <target>, autosync on [src]|off, history, settings, logs, logout, exit"
)

// runREPL starts a simple read-eval-print loop for the agent shell.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF or when the user types
// "exit" or "quit".
//
// Prompt & Commands
//
// The prompt shows the current status (from statusFn) and accepts commands:
//
//	Not logged in:
//	  - help                 show available commands
//	  - login                save username and access token
//	  - settings | logs      show configuration / recent failures
//	  - history              list recent sync passes
//	  - exit | quit          leave the program
//
//	Logged in, additionally:
//	  - init                 create the workspace directory
//	  - list [dir]           list the workspace (or a subdirectory)
//	  - stage <src> [dst]    copy up to 5 new items into the workspace
//	  - sync <target>        upload one workspace entry
//	  - empty <target>       remove a synced workspace entry
//	  - autosync on [src]    watch a source directory and stage changes
//	  - autosync off         stop watching
//	  - logout               forget the saved credentials
//
// Any errors returned by command handlers are ignored here; handlers should
// report their own errors. This keeps the REPL loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("dentread %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn(helpLoggedIn)
			} else {
				printlnFn(helpLoggedOut)
			}

		case "login":
			_ = a.Login(ctx)

		case "history":
			_ = a.History(ctx)

		case "settings":
			_ = a.Settings(ctx)

		case "logs":
			_ = a.Logs(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		case "logout", "init", "l", "list", "stage", "sync", "empty", "autosync":
			if !a.isLoggedIn() {
				printlnFn("Please log in first")
				continue
			}
			runLoggedIn(ctx, a, cmd, args)

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}

func runLoggedIn(ctx context.Context, a execIface, cmd string, args []string) {
	switch cmd {
	case "logout":
		_ = a.Logout(ctx)

	case "init":
		_ = a.Init(ctx)

	case "l", "list":
		_ = a.List(ctx, args)

	case "stage":
		if len(args) == 0 {
			printlnFn("Usage: stage <src> [dst]")
			return
		}
		_ = a.Stage(ctx, args)

	case "sync":
		if len(args) != 1 {
			printlnFn("Usage: sync <target>")
			return
		}
		_ = a.Sync(ctx, args[0])

	case "empty":
		if len(args) != 1 {
			printlnFn("Usage: empty <target>")
			return
		}
		_ = a.Empty(ctx, args[0])

	case "autosync":
		if len(args) == 0 || (args[0] != "on" && args[0] != "off") {
			printlnFn("Usage: autosync on [src] | autosync off")
			return
		}
		_ = a.AutoSync(ctx, args)
	}
}
