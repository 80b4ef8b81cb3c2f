package hookconfig

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Scope selects which settings file hooks are written to.
type Scope string

const (
	// ScopeUser is ~/.claude/settings.json, shared by every project.
	ScopeUser Scope = "user"
	// ScopeProject is <repo>/.claude/settings.json, committed with the repo.
	ScopeProject Scope = "project"
	// ScopeLocal is <repo>/.claude/settings.local.json, private to this checkout.
	ScopeLocal Scope = "local"
)

var (
	// ErrInvalidScope is returned for unknown scope names.
	ErrInvalidScope = errors.New("invalid scope")
	// ErrScopeUnavailable is returned for project and local scopes outside a
	// git repository.
	ErrScopeUnavailable = errors.New("scope requires a git repository")
)

// ParseScope converts a scope name.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeUser:
		return ScopeUser, nil
	case ScopeProject:
		return ScopeProject, nil
	case ScopeLocal:
		return ScopeLocal, nil
	}
	return "", fmt.Errorf("%w: %q (want user, project or local)", ErrInvalidScope, s)
}

// Resolver maps scopes to settings file paths.
type Resolver struct {
	Home string
	// RepoRoot is empty outside a git repository.
	RepoRoot string
}

// NewResolver builds a resolver for the given working directory, detecting
// the enclosing git repository if any.
func NewResolver(workingDir string) (*Resolver, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	return &Resolver{Home: home, RepoRoot: FindRepoRoot(workingDir)}, nil
}

// FindRepoRoot returns the top level of the git work tree containing dir,
// or "" when dir is not inside one or git is unavailable.
func FindRepoRoot(dir string) string {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// InRepo reports whether project and local scopes are available.
func (r *Resolver) InRepo() bool {
	return r.RepoRoot != ""
}

// SettingsPath returns the settings file for scope.
func (r *Resolver) SettingsPath(scope Scope) (string, error) {
	switch scope {
	case ScopeUser:
		return filepath.Join(r.Home, ".claude", "settings.json"), nil
	case ScopeProject, ScopeLocal:
		if !r.InRepo() {
			return "", fmt.Errorf("%w: %s", ErrScopeUnavailable, scope)
		}
		name := "settings.json"
		if scope == ScopeLocal {
			name = "settings.local.json"
		}
		return filepath.Join(r.RepoRoot, ".claude", name), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidScope, string(scope))
}

// AvailableScopes lists the scopes usable from the current directory.
func (r *Resolver) AvailableScopes() []Scope {
	if r.InRepo() {
		return []Scope{ScopeUser, ScopeProject, ScopeLocal}
	}
	return []Scope{ScopeUser}
}

// Describe returns a one-line description of scope.
func Describe(scope Scope) string {
	switch scope {
	case ScopeUser:
		return "Global settings for all projects (~/.claude/settings.json)"
	case ScopeProject:
		return "Shared project settings, committed to git (.claude/settings.json)"
	case ScopeLocal:
		return "Personal project settings, not committed (.claude/settings.local.json)"
	}
	return string(scope)
}
