package main

import (
	"errors"
	"flag"
	"fmt"
	"syscall"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/abiboard/core"
	"github.com/trezcool/abiboard/core/setting"
	"github.com/trezcool/abiboard/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db         *sqlx.DB
	logger     core.Logger
	validate   *validator.Validate
	translator ut.Translator
	usrSvc     user.ServiceInterface
	settingSvc setting.ServiceInterface
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run database migrations (up, down, status, ...)")
	fmt.Println("  adduser -name NAME -username USERNAME -email EMAIL [-admin] - create a user")
	fmt.Println("  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Println("  setdeadline -at 2006-01-02T15:04:05Z07:00 | -clear - set or clear the submission deadline")
	fmt.Println("  importroster -file PATH - create student accounts from a CSV roster")
}

// promptPassword reads a password twice from the terminal.
func promptPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		return "", nil
	}

	fmt.Print("Confirm password:")
	confirm, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	if string(confirm) != string(pwd) {
		return "", errPasswordMismatch
	}
	return string(pwd), nil
}

var errPasswordMismatch = errors.New("passwords do not match")

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserAdmin := addUserCmd.Bool("admin", false, "Create an admin instead of a student.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	setDeadlineCmd := flag.NewFlagSet("setdeadline", flag.ContinueOnError)
	setDeadlineAt := setDeadlineCmd.String("at", "", "The deadline, RFC 3339 formatted.")
	setDeadlineClear := setDeadlineCmd.Bool("clear", false, "Remove the deadline.")

	importRosterCmd := flag.NewFlagSet("importroster", flag.ContinueOnError)
	importRosterFile := importRosterCmd.String("file", "", "Path of the CSV roster (columns: name, email[, username]).")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addUserName == "" || (*addUserUname == "" && *addUserEmail == "") {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		role := user.RoleStudent
		if *addUserAdmin {
			role = user.RoleAdmin
		}
		return cli.addUser(*addUserName, *addUserUname, *addUserEmail, role, pwd)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "setdeadline":
		if err := setDeadlineCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *setDeadlineClear == (*setDeadlineAt != "") {
			setDeadlineCmd.Usage()
			return errHelp
		}
		var at *time.Time
		if *setDeadlineAt != "" {
			t, err := time.Parse(time.RFC3339, *setDeadlineAt)
			if err != nil {
				return fmt.Errorf("invalid deadline %q: expected RFC 3339, e.g. 2026-03-01T18:00:00+01:00", *setDeadlineAt)
			}
			at = &t
		}
		return cli.setDeadline(at)

	case "importroster":
		if err := importRosterCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *importRosterFile == "" {
			importRosterCmd.Usage()
			return errHelp
		}
		return cli.importRoster(*importRosterFile)

	default:
		cli.printUsage()
		return errHelp
	}
}
