package projector

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// SyncStats counts what a mirror pass changed.
type SyncStats struct {
	Written int
	Removed int
}

// Mirror makes dst a copy of src. Directories named in exclude are neither
// copied nor pruned at any depth. Files whose content already matches are
// left untouched.
func Mirror(src, dst string, exclude []string) (SyncStats, error) {
	var st SyncStats
	skip := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		skip[e] = true
	}
	absDst, _ := filepath.Abs(dst)

	if err := os.MkdirAll(dst, 0o755); err != nil {
		return st, err
	}

	seen := map[string]bool{}
	err := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if skip[d.Name()] {
				return filepath.SkipDir
			}
			if abs, _ := filepath.Abs(p); abs == absDst {
				return filepath.SkipDir
			}
			seen[rel] = true
			return os.MkdirAll(filepath.Join(dst, rel), 0o755)
		}
		seen[rel] = true
		target := filepath.Join(dst, rel)
		if d.Type()&fs.ModeSymlink != 0 {
			changed, err := syncLink(p, target)
			if changed {
				st.Written++
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		changed, err := syncFile(p, target)
		if changed {
			st.Written++
		}
		return err
	})
	if err != nil {
		return st, err
	}

	var stale []string
	err = filepath.WalkDir(dst, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dst, p)
		if rel == "." {
			return nil
		}
		if d.IsDir() && skip[d.Name()] {
			return filepath.SkipDir
		}
		if !seen[rel] {
			stale = append(stale, p)
			if d.IsDir() {
				return filepath.SkipDir
			}
		}
		return nil
	})
	if err != nil {
		return st, err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(stale)))
	for _, p := range stale {
		if err := os.RemoveAll(p); err != nil {
			return st, err
		}
		st.Removed++
	}
	return st, nil
}

func syncFile(src, dst string) (bool, error) {
	sfi, err := os.Stat(src)
	if err != nil {
		return false, err
	}
	if dfi, err := os.Lstat(dst); err == nil && dfi.Mode().IsRegular() && dfi.Size() == sfi.Size() {
		if dfi.ModTime().Equal(sfi.ModTime()) && dfi.Mode().Perm() == sfi.Mode().Perm() {
			return false, nil
		}
		same, err := sameContent(src, dst)
		if err != nil {
			return false, err
		}
		if same {
			_ = os.Chtimes(dst, sfi.ModTime(), sfi.ModTime())
			return false, nil
		}
	} else if err == nil && !dfi.Mode().IsRegular() {
		if err := os.RemoveAll(dst); err != nil {
			return false, err
		}
	}

	in, err := os.Open(src)
	if err != nil {
		return false, err
	}
	defer func() { _ = in.Close() }()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, sfi.Mode().Perm())
	if err != nil {
		return false, err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return false, err
	}
	if err := out.Close(); err != nil {
		return false, err
	}
	_ = os.Chmod(dst, sfi.Mode().Perm())
	return true, os.Chtimes(dst, sfi.ModTime(), sfi.ModTime())
}

func sameContent(a, b string) (bool, error) {
	ab, err := os.ReadFile(a)
	if err != nil {
		return false, err
	}
	bb, err := os.ReadFile(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ab, bb), nil
}

func syncLink(src, dst string) (bool, error) {
	want, err := os.Readlink(src)
	if err != nil {
		return false, err
	}
	if have, err := os.Readlink(dst); err == nil && have == want {
		return false, nil
	}
	if err := os.RemoveAll(dst); err != nil {
		return false, err
	}
	return true, os.Symlink(want, dst)
}
