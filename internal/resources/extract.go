package resources

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/quasar/pmc/internal/pmcerr"
)

// ExtractNatives unpacks every entry's jar into destDir (a run's ephemeral
// bin directory), skipping META-INF and any path matched by the
// library's extract.exclude path prefixes (spec.md §4.4).
func ExtractNatives(entries []NativeEntry, destDir string) error {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return err
	}

	for _, entry := range entries {
		if err := extractOne(entry, destDir); err != nil {
			return pmcerr.Wrap(pmcerr.KindLibraryNotFound, err, "extracting natives from "+entry.JarPath)
		}
	}
	return nil
}

func extractOne(entry NativeEntry, destDir string) error {
	r, err := zip.OpenReader(entry.JarPath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		if strings.HasPrefix(f.Name, "META-INF/") || f.FileInfo().IsDir() {
			continue
		}
		if matchesAny(entry.Exclude, f.Name) {
			continue
		}

		if err := extractFile(f, filepath.Join(destDir, f.Name)); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

// sharedObjectVersionSuffix matches a trailing shared-object version tail
// like ".so.3" or ".so.1.2.3", stripped when linking an extra bin path so
// a linker looking for "libfoo.so" still finds it (spec.md §4.3).
var sharedObjectVersionSuffix = regexp.MustCompile(`(\.so)(\.\d+)+$`)

// LinkExtraBin symlinks (or, where the platform has no symlinks, copies)
// each of paths into destDir, stripping a shared-object version suffix
// off the link name. Used for caller-supplied extra files that must sit
// alongside extracted natives in the run bin directory but aren't
// library-declared natives themselves.
func LinkExtraBin(paths []string, destDir string) error {
	if len(paths) == 0 {
		return nil
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return err
	}

	for _, src := range paths {
		name := sharedObjectVersionSuffix.ReplaceAllString(filepath.Base(src), "$1")
		dest := filepath.Join(destDir, name)

		if err := os.Symlink(src, dest); err == nil {
			continue
		}
		if err := copyFile(src, dest); err != nil {
			return pmcerr.Wrap(pmcerr.KindLibraryNotFound, err, "linking extra bin path "+src)
		}
	}
	return nil
}

// matchesAny reports whether name falls under any of the exclude
// patterns. Mojang's extract.exclude entries are path prefixes ("META-INF/",
// "common/"), not shell globs, so a simple prefix check is what real
// descriptors expect.
func matchesAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
