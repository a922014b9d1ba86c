package git

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Cloner mirrors repositories with the git binary.
type Cloner struct {
	// SSLVerify disables certificate checks when false.
	SSLVerify bool

	// Authorization is sent as the HTTP Authorization header. It is passed
	// through the environment so it never shows up in a process listing.
	Authorization string

	// Env is extra environment for the git process.
	Env []string
}

// Mirror clones url into target as a bare mirror. An existing target is
// replaced.
func (c *Cloner) Mirror(ctx context.Context, rawURL, target string) error {
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("remove %s: %w", target, err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(target), err)
	}

	cmd := exec.CommandContext(ctx, "git", "clone", "--mirror", rawURL, target)
	cmd.Env = c.environ()
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git clone %s: %w\n%s", Redact(rawURL), err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (c *Cloner) environ() []string {
	env := append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	env = append(env, "GIT_SSL_NO_VERIFY="+strconv.FormatBool(!c.SSLVerify))
	if c.Authorization != "" {
		env = append(env,
			"GIT_CONFIG_COUNT=1",
			"GIT_CONFIG_KEY_0=http.extraHeader",
			"GIT_CONFIG_VALUE_0=Authorization: "+c.Authorization,
		)
	}
	return append(env, c.Env...)
}

// CloneURL returns the http(s) clone link with user set as the URL's
// username, or "" when the repository has no such link.
func CloneURL(cloneLinks []string, user string) string {
	for _, link := range cloneLinks {
		u, err := url.Parse(link)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		if user != "" {
			u.User = url.User(user)
		}
		return u.String()
	}
	return ""
}

// Redact drops the password from a URL for display.
func Redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Redacted()
}
