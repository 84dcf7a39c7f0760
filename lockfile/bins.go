package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// BinLink returns the absolute path that node_modules/.bin/<name> points to.
func BinLink(root, name string) (string, error) {
	link := filepath.Join(root, "node_modules", ".bin", name)
	target, err := os.Readlink(link)
	if err != nil {
		return "", fmt.Errorf("%s is not a link: %w", link, err)
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(link), target)
	}
	return filepath.Clean(target), nil
}

// ValidBin checks that node_modules/.bin/<name> links to node_modules/<target> and that the
// target is an executable file. target is slash-separated, like "what-bin/what-bin.js".
func ValidBin(root, name, target string) error {
	got, err := BinLink(root, name)
	if err != nil {
		return err
	}
	want := filepath.Join(root, "node_modules", filepath.FromSlash(target))
	if got != want {
		return fmt.Errorf("bin %q links to %s, expected %s", name, got, want)
	}
	info, err := os.Stat(got)
	if err != nil {
		return fmt.Errorf("bin %q target does not exist: %w", name, err)
	}
	if info.IsDir() || info.Mode()&0o111 == 0 {
		return fmt.Errorf("bin %q target %s is not executable (mode %s)", name, got, info.Mode())
	}
	return nil
}
