package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
)

const helpText = "Available commands: send, open <id>, file <path>, list, show <id>, save <id>, delete <id>, exit"

func (a *App) unlock(ctx context.Context) error {
	passphrase, err := GetSecret("Inbox passphrase", a.out)
	if err != nil {
		return err
	}
	defer wipe(passphrase)
	return a.inbox.Unlock(ctx, passphrase)
}

func (a *App) Root(ctx context.Context) {

	fmt.Fprintln(a.out, "Welcome to tguard CLI (type 'help' for commands)")

	if err := a.unlock(ctx); err != nil {
		fmt.Fprintf(a.out, "Inbox stays locked: %v\n", err)
	}

	for {
		fmt.Fprint(a.out, "tguard> ")
		line, err := a.reader.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		if !a.dispatch(ctx, parts[0], parts[1:]) {
			return
		}
	}
}

// dispatch runs one command and reports whether the loop should continue.
func (a *App) dispatch(ctx context.Context, cmd string, args []string) bool {
	var err error

	switch cmd {
	case "help":
		fmt.Fprintln(a.out, helpText)
	case "send":
		err = a.send(ctx)
	case "open":
		err = a.withArg(args, "open <id>", func(id string) error { return a.open(ctx, id) })
	case "file":
		err = a.withArg(args, "file <path>", func(p string) error { return a.openFile(ctx, p) })
	case "list", "l":
		err = a.list(ctx)
	case "show":
		err = a.withArg(args, "show <id>", func(id string) error { return a.show(ctx, id) })
	case "save":
		err = a.withArg(args, "save <id>", func(id string) error { return a.save(ctx, id) })
	case "delete":
		err = a.withArg(args, "delete <id>", func(id string) error { return a.inbox.Delete(ctx, id) })
	case "exit", "quit":
		fmt.Fprintln(a.out, "Bye!")
		return false
	default:
		fmt.Fprintln(a.out, "Unknown command:", cmd)
	}

	if err != nil {
		fmt.Fprintf(a.out, "Error: %v\n", err)
	}
	return true
}

func (a *App) withArg(args []string, usage string, fn func(string) error) error {
	if len(args) != 1 {
		fmt.Fprintln(a.out, "Usage:", usage)
		return nil
	}
	return fn(args[0])
}
