package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/pflag"
)

// exitError carries a process exit code, e.g. 2 for a declaration that
// failed validation.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	if err := run(os.Args); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			if exit.err != nil {
				color.Red("error: %v", exit.err)
			}
			os.Exit(exit.code)
		}
		color.Red("error: %v", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) < 2 {
		usage(args)
		return &exitError{code: 1}
	}
	switch args[1] {
	case "hash":
		return runHash(args[2:])
	case "validate":
		return runValidate(args[2:])
	case "simulate":
		return runSimulate(args[2:])
	case "draft":
		if len(args) >= 3 {
			switch args[2] {
			case "create":
				return runDraftCreate(args[3:])
			case "attach":
				return runDraftAttach(args[3:])
			case "status":
				return runDraftStatus(args[3:])
			case "seal":
				return runDraftSeal(args[3:])
			}
		}
	case "-h", "--help", "help":
		usage(args)
		return nil
	}
	usage(args)
	return &exitError{code: 1}
}

func usage(args []string) {
	name := "sealctl"
	if len(args) > 0 && args[0] != "" {
		name = filepath.Base(args[0])
	}
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "  %s hash (--file <path> | --json <path>)\n", name)
	fmt.Fprintf(os.Stderr, "  %s validate --declaration <declaration.json>\n", name)
	fmt.Fprintf(os.Stderr, "  %s simulate --declaration <declaration.json> [--file <path>]... [--remote]\n", name)
	fmt.Fprintf(os.Stderr, "  %s draft create --declaration <declaration.json>\n", name)
	fmt.Fprintf(os.Stderr, "  %s draft attach (--file <path> | --text <string> | --document <doc.json> | --manifest <manifest.json> | --external-ref <ref>)\n", name)
	fmt.Fprintf(os.Stderr, "  %s draft status\n", name)
	fmt.Fprintf(os.Stderr, "  %s draft seal [--request-id <id>]\n", name)
	fmt.Fprintf(os.Stderr, "\ndraft commands read SEALD_URL, SEALD_SUBJECT, SEALD_TENANT and SEALD_ROLES and keep the\nopen draft in --state (default %s).\n", defaultStatePath())
}

// parseFlags runs fs over args and turns --help into a clean exit.
func parseFlags(fs *pflag.FlagSet, args []string) (bool, error) {
	fs.BoolP("help", "h", false, "show help")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			fmt.Fprint(os.Stderr, fs.FlagUsages())
			return false, nil
		}
		return false, &exitError{code: 1, err: err}
	}
	if help, _ := fs.GetBool("help"); help {
		fmt.Fprint(os.Stderr, fs.FlagUsages())
		return false, nil
	}
	if rest := fs.Args(); len(rest) > 0 {
		return false, &exitError{code: 1, err: fmt.Errorf("unexpected argument: %s", rest[0])}
	}
	return true, nil
}
