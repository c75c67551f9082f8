package metadata

import "strings"

// Filenames are absolute, slash-separated and never end with a slash.
// The root directory is represented by the empty string.

// SplitPath splits an absolute filename into its parent directory and leaf.
// ok is false when the filename has no leading slash or an empty leaf.
func SplitPath(filename string) (parent, leaf string, ok bool) {
	idx := strings.LastIndexByte(filename, '/')
	if idx < 0 || !strings.HasPrefix(filename, "/") {
		return "", "", false
	}
	parent, leaf = filename[:idx], filename[idx+1:]
	if leaf == "" {
		return parent, "", false
	}
	return parent, leaf, true
}

// NormalizeDir maps the accepted spellings of the root ("" and "/") to "".
// Other directories are returned without a trailing slash.
func NormalizeDir(dir string) string {
	if dir == "/" {
		return ""
	}
	return strings.TrimSuffix(dir, "/")
}

// IsImmediateChild reports whether filename sits exactly one level below dir.
func IsImmediateChild(dir, filename string) bool {
	rest, found := strings.CutPrefix(filename, dir+"/")
	return found && rest != "" && !strings.Contains(rest, "/")
}

// IsBelow reports whether filename is strictly inside dir.
func IsBelow(dir, filename string) bool {
	rest, found := strings.CutPrefix(filename, dir+"/")
	return found && rest != ""
}

// IsAtOrBelow reports whether filename is dir itself or inside it.
func IsAtOrBelow(dir, filename string) bool {
	return filename == dir || IsBelow(dir, filename)
}
