package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DefaultSharedRoot is the server-side root of the shared tree
	// described in spec §6.
	DefaultSharedRoot = "./shared"
	// DefaultClientMountPrefix is rewritten onto every path a client
	// sees in an API response (spec §6).
	DefaultClientMountPrefix = "/mnt/visual-aoi-shared/"
)

// ResolveSharedRoot returns the absolute path to the shared root,
// honoring AOI_SHARED_ROOT if set.
func ResolveSharedRoot() string {
	root := os.Getenv("AOI_SHARED_ROOT")
	if root == "" {
		root = DefaultSharedRoot
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return root
	}
	return abs
}

// ResolveConfigPath returns the absolute path to the default
// configuration file.
func ResolveConfigPath(customPath string) string {
	if customPath != "" {
		return customPath
	}
	return filepath.Join(ResolveSharedRoot(), "config", "default.yaml")
}

// EnsureDirs creates the standard shared-root subdirectories if they
// don't exist.
func EnsureDirs(root string) error {
	subdirs := []string{
		"sessions",
		filepath.Join("config", "products"),
	}
	for _, sub := range subdirs {
		path := filepath.Join(root, sub)
		if err := os.MkdirAll(path, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", path, err)
		}
	}
	return nil
}

// SafeJoin joins path elements onto base and ensures the result stays
// within base (no `..`, no absolute element, no UNC prefix).
func SafeJoin(base string, elements ...string) (string, error) {
	for _, el := range elements {
		if filepath.IsAbs(el) || strings.HasPrefix(el, `\\`) {
			return "", fmt.Errorf("path traversal attempt detected: absolute path or UNC not allowed in elements: %s", el)
		}
	}
	joined := filepath.Join(append([]string{base}, elements...)...)

	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", err
	}
	absJoined, err := filepath.Abs(joined)
	if err != nil {
		return "", err
	}

	if absJoined != absBase && !strings.HasPrefix(absJoined, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal attempt detected: %s is outside %s", absJoined, absBase)
	}

	return absJoined, nil
}
