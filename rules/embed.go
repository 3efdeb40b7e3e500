// Package rules ships scope's banking-domain detection rules. They extend
// Aguara's built-in prompt-injection rules with patterns specific to
// customer data handling and payment fraud.
package rules

import (
	"embed"
	"io/fs"
	"os"
	"path/filepath"
)

//go:embed *.yaml
var embedded embed.FS

// FS returns the embedded filesystem with scope's banking rules.
func FS() embed.FS {
	return embedded
}

// ExtractDir writes the embedded rule YAMLs to a temp directory so they can
// be handed to the scan engine, which loads custom rules from disk. The
// caller owns the directory.
func ExtractDir() (string, error) {
	dir, err := os.MkdirTemp("", "scope-rules-*")
	if err != nil {
		return "", err
	}

	err = fs.WalkDir(embedded, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		data, err := fs.ReadFile(embedded, path)
		if err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(dir, filepath.Base(path)), data, 0o644)
	})
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", err
	}
	return dir, nil
}
