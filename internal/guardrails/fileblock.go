// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package guardrails

import (
	"path/filepath"
	"strings"
)

// defaultBlockedFilePatterns matches filenames that must never be
// written or committed, per §4.7's deny-list.
var defaultBlockedFilePatterns = []string{
	".env", ".env.*",
	"secrets.*",
	"credentials.*",
	"*.pem", "*.key", "id_rsa", "id_ed25519",
	"*.pfx", "*.p12",
}

// FileBlocklist tests paths against a deny-list of filename patterns.
type FileBlocklist struct {
	patterns []string
}

// NewFileBlocklist builds a blocklist over the default patterns plus
// any extra caller-supplied patterns.
func NewFileBlocklist(extra ...string) *FileBlocklist {
	return &FileBlocklist{patterns: append(append([]string{}, defaultBlockedFilePatterns...), extra...)}
}

// IsBlocked reports whether path's filename matches a blocked pattern.
// The test is filename-based: directory components are ignored except
// to detect that the path sits inside a directory that itself looks
// like it should be gitignored (node_modules, .git, vendor).
func (b *FileBlocklist) IsBlocked(path string) bool {
	name := filepath.Base(path)
	for _, pattern := range b.patterns {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return dirLooksGitignored(path)
}

var gitignoredDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"vendor":       true,
	".terraform":   true,
}

func dirLooksGitignored(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(filepath.Dir(path)), "/") {
		if gitignoredDirs[part] {
			return true
		}
	}
	return false
}
