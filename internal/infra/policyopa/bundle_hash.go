package policyopa

import (
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"seald/internal/infra/crypto"
)

type bundleFile struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
}

// ComputeBundleHashFromPath hashes the canonical listing of the bundle's
// rego and data files. Editor droppings and archives are ignored.
func ComputeBundleHashFromPath(bundlePath string) (string, error) {
	return ComputeBundleHashFromFS(os.DirFS(bundlePath), ".")
}

func ComputeBundleHashFromFS(fsys fs.FS, root string) (string, error) {
	files, err := collectBundleFiles(fsys, root)
	if err != nil {
		return "", err
	}
	sum, _, err := crypto.CanonicalSHA256(map[string]any{"files": files})
	if err != nil {
		return "", err
	}
	return sum, nil
}

func collectBundleFiles(fsys fs.FS, root string) ([]bundleFile, error) {
	files := []bundleFile{}
	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if p == "." {
			return nil
		}
		base := path.Base(p)
		if d.IsDir() {
			if strings.HasPrefix(base, ".") || base == "vendor" {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(base, ".") || !bundleMember(base) {
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		files = append(files, bundleFile{Path: p, SHA256: crypto.SHA256Hex(data)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func bundleMember(base string) bool {
	return base == "data.json" || base == "manifest.json" || strings.HasSuffix(base, ".rego")
}
