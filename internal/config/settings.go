package config

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"
)

// Credentials identify the exporter to Bitbucket Server. Either Token or
// Username and Password are required.
type Credentials struct {
	ServerURL string
	Username  string
	Password  string
	Token     string
}

// Complete reports whether the credentials are enough to connect.
func (c Credentials) Complete() bool {
	return c.ServerURL != "" && (c.Token != "" || (c.Username != "" && c.Password != ""))
}

// GetCredentials returns the configured credentials.
func GetCredentials() Credentials {
	return Credentials{
		ServerURL: strings.TrimRight(strings.TrimSpace(GetString("server-url")), "/"),
		Username:  strings.TrimSpace(GetString("username")),
		Password:  GetString("password"),
		Token:     strings.TrimSpace(GetString("token")),
	}
}

// Settings control one export run.
type Settings struct {
	SSLVerify          bool
	Retries            int
	ReadTimeout        time.Duration
	OpenTimeout        time.Duration
	PaginationLimit    int
	GitPaginationLimit int

	MaxThreads         int
	Models             []string
	Output             string
	StagingDir         string
	IgnoreVersionCheck bool
	Since              string
}

// HasModel reports whether the optional model is selected.
func (s *Settings) HasModel(model string) bool {
	return slices.Contains(s.Models, model)
}

// GetSettings returns the export settings. Invalid values are replaced by
// their defaults with a warning on stderr.
func GetSettings() Settings {
	return getSettings(os.Stderr)
}

func getSettings(warn io.Writer) Settings {
	s := Settings{
		SSLVerify:          GetBool("ssl-verify"),
		Retries:            GetInt("retries"),
		ReadTimeout:        GetDuration("read-timeout"),
		OpenTimeout:        GetDuration("open-timeout"),
		PaginationLimit:    GetInt("pagination-limit"),
		GitPaginationLimit: GetInt("git-pagination-limit"),
		MaxThreads:         GetInt("max-threads"),
		Output:             GetString("output"),
		StagingDir:         GetString("staging-dir"),
		IgnoreVersionCheck: GetBool("ignore-version-check"),
		Since:              strings.TrimSpace(GetString("since")),
	}

	if s.MaxThreads < 1 {
		fmt.Fprintf(warn, "Warning: max-threads must be at least 1 (got %d), using %d\n", s.MaxThreads, DefaultMaxThreads)
		s.MaxThreads = DefaultMaxThreads
	}
	if s.Retries < 0 {
		fmt.Fprintf(warn, "Warning: retries cannot be negative (got %d), using 0\n", s.Retries)
		s.Retries = 0
	}

	for _, m := range GetStringSlice("models") {
		m = strings.ToLower(m)
		switch {
		case m == "none":
			continue
		case !slices.Contains(OptionalModels, m):
			fmt.Fprintf(warn, "Warning: unknown model %q ignored (valid: %s)\n", m, strings.Join(OptionalModels, ", "))
		case !slices.Contains(s.Models, m):
			s.Models = append(s.Models, m)
		}
	}
	return s
}
