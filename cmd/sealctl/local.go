package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"seald/internal/domain"
	"seald/internal/infra/crypto"
	"seald/internal/usecase"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
)

func runHash(args []string) error {
	fs := pflag.NewFlagSet("hash", pflag.ContinueOnError)
	file := fs.String("file", "", "raw file to digest")
	jsonFile := fs.String("json", "", "JSON document to canonicalize and digest")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	switch {
	case *file != "" && *jsonFile != "":
		return &exitError{code: 1, err: errors.New("use either --file or --json")}
	case *file != "":
		f, err := os.Open(*file)
		if err != nil {
			return err
		}
		defer f.Close()
		sum, n, err := crypto.SHA256Reader(f)
		if err != nil {
			return err
		}
		fmt.Printf("%s  %d bytes  %s\n", sum, n, *file)
	case *jsonFile != "":
		sum, err := canonicalJSONDigest(*jsonFile)
		if err != nil {
			return err
		}
		fmt.Printf("%s  canonical  %s\n", sum, *jsonFile)
	default:
		return &exitError{code: 1, err: errors.New("--file or --json is required")}
	}
	return nil
}

func canonicalJSONDigest(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	canonical, err := crypto.CanonicalizeJSON(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize %s: %w", path, err)
	}
	return crypto.SHA256Hex(canonical), nil
}

func runValidate(args []string) error {
	fs := pflag.NewFlagSet("validate", pflag.ContinueOnError)
	declPath := fs.String("declaration", "", "declaration JSON file")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	decl, err := readDeclaration(*declPath)
	if err != nil {
		return err
	}
	res := usecase.DeclarationValidator{}.Validate(decl, usecase.ValidateOptions{})
	printFieldErrors("notice", res.Notices)
	if !res.OK {
		printFieldErrors("error", res.FieldErrors)
		return &exitError{code: 2, err: fmt.Errorf("%d field error(s)", len(res.FieldErrors))}
	}
	_, canonical, err := crypto.CanonicalSHA256(res.Normalized)
	if err != nil {
		return err
	}
	color.Green("declaration is valid for %s", res.Normalized.IngestionMethod)
	fmt.Println(string(canonical))
	return nil
}

func runSimulate(args []string) error {
	fs := pflag.NewFlagSet("simulate", pflag.ContinueOnError)
	declPath := fs.String("declaration", "", "declaration JSON file")
	files := fs.StringArray("file", nil, "attachment to rehearse; repeatable")
	remote := fs.Bool("remote", false, "rehearse on the seald server instead of locally")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	decl, err := readDeclaration(*declPath)
	if err != nil {
		return err
	}
	metas := make([]domain.FileMeta, 0, len(*files))
	for _, path := range *files {
		meta, err := fileMeta(path)
		if err != nil {
			return err
		}
		metas = append(metas, meta)
	}

	var out []byte
	if *remote {
		raw, err := remoteSimulate(decl, metas)
		if err != nil {
			return err
		}
		out = raw
	} else {
		receipt, err := usecase.NewRehearser(domain.BuildInfo{BuildID: "sealctl", ContractVersion: "seal.v1"}).Rehearse(uuid.NewString(), decl, metas)
		if err != nil {
			return err
		}
		out, err = json.MarshalIndent(receipt, "", "  ")
		if err != nil {
			return err
		}
	}
	color.New(color.FgYellow, color.Bold).Fprintln(os.Stderr, "SIMULATED: nothing was sealed and no digest below is a real SHA-256")
	fmt.Println(string(out))
	return nil
}

func readDeclaration(path string) (domain.Declaration, error) {
	if path == "" {
		return domain.Declaration{}, &exitError{code: 1, err: errors.New("--declaration is required")}
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.Declaration{}, err
	}
	var decl domain.Declaration
	if err := json.Unmarshal(raw, &decl); err != nil {
		return domain.Declaration{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return decl, nil
}

func fileMeta(path string) (domain.FileMeta, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.FileMeta{}, err
	}
	if info.IsDir() {
		return domain.FileMeta{}, fmt.Errorf("%s is a directory", path)
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return domain.FileMeta{FileName: filepath.Base(path), SizeBytes: info.Size(), ContentType: contentType}, nil
}

func printFieldErrors(kind string, fields []domain.FieldError) {
	for _, fe := range fields {
		line := fmt.Sprintf("%s: %s: %s", kind, fe.Field, fe.Error)
		if fe.Hint != "" {
			line += " (" + fe.Hint + ")"
		}
		if kind == "error" {
			color.Red(line)
		} else {
			color.Yellow(line)
		}
	}
}
