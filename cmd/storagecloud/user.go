package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/marmos91/storagecloud/pkg/directory"
	"github.com/marmos91/storagecloud/pkg/session"
	"github.com/marmos91/storagecloud/pkg/store/metadata"
)

func runUser(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("user: expected one of add, list, delete, verify")
	}

	switch args[0] {
	case "add":
		return runUserAdd(args[1:])
	case "list":
		return runUserList(args[1:])
	case "delete":
		return runUserDelete(args[1:])
	case "verify":
		return runUserVerify(args[1:])
	default:
		return fmt.Errorf("user: unknown subcommand %q", args[0])
	}
}

func runUserAdd(args []string) error {
	fs := flag.NewFlagSet("user add", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to the configuration file")
	name := fs.String("name", "", "Given name")
	surname := fs.String("surname", "", "Family name")
	admin := fs.Bool("admin", false, "Register an administrator")
	password := fs.String("password", "", "Password (read from stdin when empty)")
	_ = fs.Parse(args)

	username, err := singleArg(fs, "username")
	if err != nil {
		return err
	}

	pw, err := passwordOrStdin(*password)
	if err != nil {
		return err
	}

	role := metadata.RoleRegular
	if *admin {
		role = metadata.RoleAdmin
	}

	ctx := context.Background()
	rt, err := bootstrap(ctx, *configPath, false)
	if err != nil {
		return err
	}
	defer rt.close()

	acct, err := rt.dir.RegisterUser(ctx, directory.NewAccount{
		Username: username,
		Name:     *name,
		Surname:  *surname,
		Role:     role,
		Password: pw,
	})
	if err != nil {
		return fmt.Errorf("failed to register %q: %w", username, err)
	}

	if acct.Role == metadata.RoleAdmin {
		fmt.Printf("Registered administrator %s\n", acct.Username)
	} else {
		fmt.Printf("Registered %s with home %s and %d bytes of quota\n", acct.Username, acct.HomeDir, acct.TotalSpace)
	}
	return nil
}

func runUserList(args []string) error {
	fs := flag.NewFlagSet("user list", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to the configuration file")
	_ = fs.Parse(args)

	ctx := context.Background()
	rt, err := bootstrap(ctx, *configPath, false)
	if err != nil {
		return err
	}
	defer rt.close()

	users, err := rt.dir.ListAllUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "USERNAME\tNAME\tROLE\tUSED\tTOTAL")
	for _, u := range users {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n",
			u.Username, strings.TrimSpace(u.Name+" "+u.Surname), u.Role, u.UsedSpace, u.TotalSpace)
	}
	return w.Flush()
}

func runUserDelete(args []string) error {
	fs := flag.NewFlagSet("user delete", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to the configuration file")
	_ = fs.Parse(args)

	username, err := singleArg(fs, "username")
	if err != nil {
		return err
	}

	ctx := context.Background()
	rt, err := bootstrap(ctx, *configPath, false)
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.dir.DeleteUser(ctx, username); err != nil {
		return fmt.Errorf("failed to delete %q: %w", username, err)
	}

	fmt.Printf("Deleted %s\n", username)
	return nil
}

// runUserVerify performs a full password login and logout, so it exercises
// the same throttling and session bookkeeping as any other caller.
func runUserVerify(args []string) error {
	fs := flag.NewFlagSet("user verify", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to the configuration file")
	password := fs.String("password", "", "Password (read from stdin when empty)")
	_ = fs.Parse(args)

	username, err := singleArg(fs, "username")
	if err != nil {
		return err
	}

	pw, err := passwordOrStdin(*password)
	if err != nil {
		return err
	}

	ctx := context.Background()
	rt, err := bootstrap(ctx, *configPath, false)
	if err != nil {
		return err
	}
	defer rt.close()

	id, err := session.NewForUsername(ctx, rt.dir, username,
		session.WithLoginLimiter(loginLimiter(rt.cfg.Auth)))
	if err != nil {
		return err
	}

	token, err := id.LoginWithPassword(ctx, pw)
	if err != nil {
		return fmt.Errorf("login as %q failed: %w", username, err)
	}
	if err := id.Logout(ctx, token); err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}

	fmt.Printf("Password for %s is valid\n", username)
	return nil
}

func singleArg(fs *flag.FlagSet, what string) (string, error) {
	if fs.NArg() != 1 {
		return "", fmt.Errorf("%s: expected exactly one %s", fs.Name(), what)
	}
	return fs.Arg(0), nil
}

func passwordOrStdin(password string) (string, error) {
	if password != "" {
		return password, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
