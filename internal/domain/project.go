package domain

import (
	"fmt"
	"path"
	"strings"
)

// ProjectFile is one generated source file.
type ProjectFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// GeneratedProject is the output of the code generation collaborator and
// the input of a deployment. It is never persisted.
type GeneratedProject struct {
	ProjectName string        `json:"projectName"`
	Files       []ProjectFile `json:"files"`
}

// Validate checks the project against the file list contract: a name, at
// least one file, and unique relative paths that stay inside the repository.
func (p GeneratedProject) Validate() error {
	if strings.TrimSpace(p.ProjectName) == "" || len(p.Files) == 0 {
		return ErrProjectIncomplete
	}
	seen := make(map[string]struct{}, len(p.Files))
	for i, f := range p.Files {
		clean, ok := CleanFilePath(f.Path)
		if !ok {
			return fmt.Errorf("%w: files[%d]: invalid path %q", ErrInvalidRequest, i, f.Path)
		}
		if _, dup := seen[clean]; dup {
			return fmt.Errorf("%w: files[%d]: duplicate path %q", ErrInvalidRequest, i, f.Path)
		}
		seen[clean] = struct{}{}
	}
	return nil
}

// HasFile reports whether the project contains a file at name.
func (p GeneratedProject) HasFile(name string) bool {
	for _, f := range p.Files {
		if clean, ok := CleanFilePath(f.Path); ok && clean == name {
			return true
		}
	}
	return false
}

// CleanFilePath normalizes a repository-relative path. It rejects empty,
// absolute and escaping paths.
func CleanFilePath(p string) (string, bool) {
	trimmed := strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if trimmed == "" || strings.HasPrefix(trimmed, "/") {
		return "", false
	}
	clean := path.Clean(trimmed)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", false
	}
	return clean, true
}
