package bitbucket

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/steveyegge/bbs-exporter/internal/debug"
	"github.com/steveyegge/bbs-exporter/internal/types"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate ...func(*Options)) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts := Options{BaseURL: server.URL + "/", Token: "test-token"}
	for _, m := range mutate {
		m(&opts)
	}
	c, err := NewClient(opts)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClientValidation(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr error
		invalid bool
	}{
		{name: "token", opts: Options{BaseURL: "https://bbs.example.com", Token: "t"}},
		{name: "basic", opts: Options{BaseURL: "http://bbs.example.com", Username: "u", Password: "p"}},
		{name: "no credentials", opts: Options{BaseURL: "https://bbs.example.com"}, wantErr: ErrMissingCredentials},
		{name: "username only", opts: Options{BaseURL: "https://bbs.example.com", Username: "u"}, wantErr: ErrMissingCredentials},
		{name: "ftp url", opts: Options{BaseURL: "ftp://bbs.example.com", Token: "t"}, invalid: true},
		{name: "not a url", opts: Options{BaseURL: "bbs.example.com", Token: "t"}, invalid: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(tt.opts)
			switch {
			case tt.invalid:
				var invalid *InvalidBaseURLError
				if !errors.As(err, &invalid) {
					t.Fatalf("err = %v, want InvalidBaseURLError", err)
				}
				if !strings.HasSuffix(err.Error(), "is not a valid URL!") {
					t.Errorf("message = %q", err.Error())
				}
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
			default:
				if err != nil {
					t.Fatalf("NewClient() error = %v", err)
				}
				if c.opts.PaginationLimit != DefaultPaginationLimit || c.opts.GitPaginationLimit != DefaultGitPaginationLimit {
					t.Errorf("limits = %d/%d, want defaults", c.opts.PaginationLimit, c.opts.GitPaginationLimit)
				}
			}
		})
	}
}

func TestEncodeURL(t *testing.T) {
	c, err := NewClient(Options{BaseURL: "https://bbs.example.com/", Token: "t"})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		api   API
		path  []string
		query map[string][]string
		want  string
	}{
		{"core", APICore, []string{"projects", "MIGR8"}, nil, "https://bbs.example.com/rest/api/1.0/projects/MIGR8"},
		{"branch", APIBranch, []string{"branchmodel"}, nil, "https://bbs.example.com/rest/branch-utils/1.0/branchmodel"},
		{"ref restriction", APIRefRestriction, []string{"restrictions"}, nil, "https://bbs.example.com/rest/branch-permissions/2.0/restrictions"},
		{"ssh", APISSH, []string{"ssh"}, nil, "https://bbs.example.com/rest/keys/1.0/ssh"},
		{"plugin trailing slash", APIPlugin, []string{""}, nil, "https://bbs.example.com/rest/plugins/1.0/"},
		{"no api", APINone, []string{"projects", "MIGR8", "repos", "r", "attachments", "7", "a b.png"}, nil,
			"https://bbs.example.com/projects/MIGR8/repos/r/attachments/7/a%20b.png"},
		{"segment slash escaped", APICore, []string{"tags", "release/1.0"}, nil, "https://bbs.example.com/rest/api/1.0/tags/release%2F1.0"},
		{"query", APICore, []string{"commits"}, map[string][]string{"until": {"abc"}, "limit": {"250"}},
			"https://bbs.example.com/rest/api/1.0/commits?limit=250&until=abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.encodeURL(tt.api, tt.path, tt.query); got != tt.want {
				t.Errorf("encodeURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAuthorizationHeaders(t *testing.T) {
	var gotAuth string
	handler := func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeJSON(w, types.ApplicationProperties{Version: "5.16.0"})
	}

	c := newTestClient(t, handler)
	if _, err := c.ApplicationProperties(context.Background()); err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}

	c = newTestClient(t, handler, func(o *Options) { o.Token = ""; o.Username = "admin"; o.Password = "secret" })
	props, err := c.ApplicationProperties(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(gotAuth, "Basic ") {
		t.Errorf("Authorization = %q, want basic auth", gotAuth)
	}
	if props.Version != "5.16.0" {
		t.Errorf("Version = %q", props.Version)
	}
	if c.Secret() != "secret" || c.TokenAuthenticated() {
		t.Error("basic client reports token authentication")
	}
}

func TestPaginationFollowsNextPageStart(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Query().Get("limit") != "250" {
			t.Errorf("limit = %q, want 250", r.URL.Query().Get("limit"))
		}
		switch r.URL.Query().Get("start") {
		case "":
			writeJSON(w, Page[types.Branch]{Values: []types.Branch{{DisplayID: "master"}, {DisplayID: "develop"}}, NextPageStart: 2})
		case "2":
			writeJSON(w, Page[types.Branch]{Values: []types.Branch{{DisplayID: "feature/a"}}, IsLastPage: true})
		default:
			t.Errorf("unexpected start %q", r.URL.Query().Get("start"))
		}
	})

	branches, err := c.Project("MIGR8").Repository("r").Branches(context.Background())
	if err != nil {
		t.Fatalf("Branches() error = %v", err)
	}
	if len(branches) != 3 || branches[2].DisplayID != "feature/a" {
		t.Errorf("branches = %+v", branches)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestGitPaginationLimit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "5000" {
			t.Errorf("limit = %q, want 5000", got)
		}
		if got := r.URL.Query().Get("until"); got != "deadbeef" {
			t.Errorf("until = %q", got)
		}
		writeJSON(w, Page[types.Commit]{Values: []types.Commit{{ID: "deadbeef"}}, IsLastPage: true})
	})

	repo := c.Project("MIGR8").Repository("r")
	commits, err := repo.Commits(context.Background(), CommitsQuery{Until: "deadbeef"})
	if err != nil {
		t.Fatal(err)
	}
	if len(commits) != 1 {
		t.Fatalf("commits = %+v", commits)
	}

	// Listed commits are cached.
	commit, err := repo.Commit(context.Background(), "deadbeef")
	if err != nil || commit.ID != "deadbeef" {
		t.Errorf("Commit() = %+v, %v", commit, err)
	}
}

func TestPullRequestsStopAtDataSince(t *testing.T) {
	since := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	ms := func(tm time.Time) int64 { return tm.UnixMilli() }

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Query().Get("state") != "all" {
			t.Errorf("state = %q", r.URL.Query().Get("state"))
		}
		switch r.URL.Query().Get("start") {
		case "":
			writeJSON(w, Page[types.PullRequest]{Values: []types.PullRequest{
				{ID: 3, CreatedDate: ms(since.AddDate(0, 2, 0))},
				{ID: 2, CreatedDate: ms(since.AddDate(0, -1, 0))},
			}, NextPageStart: 2})
		default:
			t.Error("paged past the data cutoff")
			writeJSON(w, Page[types.PullRequest]{IsLastPage: true})
		}
	}, func(o *Options) { o.DataSince = since })

	prs, err := c.Project("MIGR8").Repository("r").PullRequests(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(prs) != 2 {
		t.Errorf("len(prs) = %d, want the whole first page", len(prs))
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestAPIErrorMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]any{"errors": []map[string]string{
			{"message": "Repository MIGR8/missing does not exist.", "exceptionName": "com.atlassian.bitbucket.repository.NoSuchRepositoryException"},
		}})
	})

	_, err := c.Project("MIGR8").Repository("missing").Get(context.Background())
	if !IsNotFound(err) {
		t.Fatalf("err = %v, want 404", err)
	}
	want := "404 on GET to " + c.BaseURL() + "/rest/api/1.0/projects/MIGR8/repos/missing: Repository MIGR8/missing does not exist."
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if IsUnauthorized(err) {
		t.Error("404 reported as unauthorized")
	}
}

func TestCommitsOfEmptyRepository(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]any{"errors": []map[string]string{
			{"message": "no default branch", "exceptionName": noDefaultBranchException},
		}})
	})

	commits, err := c.Project("MIGR8").Repository("empty").Commits(context.Background(), CommitsQuery{})
	if err != nil {
		t.Fatalf("Commits() error = %v", err)
	}
	if len(commits) != 0 {
		t.Errorf("commits = %+v", commits)
	}
}

func TestBranchModelOutcomes(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      any
		wantErr   error
		wantModel bool
	}{
		{
			name:      "model",
			status:    http.StatusOK,
			body:      types.BranchModel{Development: &types.Branch{DisplayID: "develop"}},
			wantModel: true,
		},
		{
			name:   "no model",
			status: http.StatusNotFound,
			body: map[string]any{"errors": []map[string]string{
				{"message": "There is no branch model defined for repository r"},
			}},
		},
		{
			name:   "empty repository",
			status: http.StatusConflict,
			body: map[string]any{"errors": []map[string]string{
				{"message": "empty", "exceptionName": emptyRepositoryException},
			}},
			wantErr: ErrEmptyRepository,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if !strings.HasPrefix(r.URL.Path, "/rest/branch-utils/1.0/") {
					t.Errorf("path = %s", r.URL.Path)
				}
				w.WriteHeader(tt.status)
				writeJSON(w, tt.body)
			})
			model, err := c.Project("MIGR8").Repository("r").BranchModel(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if (model != nil) != tt.wantModel {
				t.Errorf("model = %+v, want present = %v", model, tt.wantModel)
			}
		})
	}
}

func TestPullRequestNotFoundFallbacks(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	pr := c.Project("MIGR8").Repository("r").PullRequest(7)

	commits, err := pr.Commits(context.Background())
	if err != nil || len(commits) != 0 {
		t.Errorf("Commits() = %v, %v; want empty", commits, err)
	}
	comment, err := pr.Comment(context.Background(), 12)
	if err != nil || comment != nil {
		t.Errorf("Comment() = %v, %v; want nil", comment, err)
	}
}

func TestRetriesTransportFailures(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			// Drop the connection without a response.
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatal("no hijacker")
			}
			conn, _, _ := hj.Hijack()
			_ = conn.Close()
			return
		}
		writeJSON(w, types.ApplicationProperties{Version: "6.0.0"})
	}, func(o *Options) { o.Retries = 3 })

	props, err := c.ApplicationProperties(context.Background())
	if err != nil {
		t.Fatalf("ApplicationProperties() error = %v", err)
	}
	if props.Version != "6.0.0" || calls.Load() != 3 {
		t.Errorf("version = %q after %d calls", props.Version, calls.Load())
	}
}

func TestTimeoutError(t *testing.T) {
	var calls atomic.Int32
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}, func(o *Options) {
		o.Retries = 2
		o.HTTPClient = &http.Client{Timeout: 50 * time.Millisecond}
	})

	_, err := c.ApplicationProperties(context.Background())
	var timeout *TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("err = %v, want TimeoutError", err)
	}
	if !strings.HasPrefix(err.Error(), "Timed out 2 times during GETs to ") {
		t.Errorf("Error() = %q", err.Error())
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3 attempts", calls.Load())
	}
}

func TestTransportErrorAfterRetries(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()

	logDir := t.TempDir()
	if err := debug.SetLogFile(logDir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = debug.SetLogFile("") })

	var attempts atomic.Int32
	c, err := NewClient(Options{
		BaseURL:   "http://" + addr + "/",
		Token:     "test-token",
		Retries:   2,
		OnRequest: func(string, string) { attempts.Add(1) },
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.ApplicationProperties(context.Background())
	var transport *TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("err = %v, want TransportError", err)
	}
	if transport.Retries != 2 || !strings.Contains(transport.URL, addr) || transport.Method != http.MethodGet {
		t.Errorf("TransportError = %+v", transport)
	}
	if !strings.Contains(err.Error(), "failed after 2 retries") {
		t.Errorf("Error() = %q", err.Error())
	}
	if attempts.Load() != 3 {
		t.Errorf("attempts = %d, want 3", attempts.Load())
	}

	data, err := os.ReadFile(filepath.Join(logDir, debug.LogFileName))
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(data), "|DEBUG|none|retrying GET "); got != 3 {
		t.Errorf("retry notices = %d, want 3\n%s", got, data)
	}
}

func TestAPIErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}, func(o *Options) { o.Retries = 3 })

	if _, err := c.ApplicationProperties(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestAuthenticatedUser(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("X-AUSERNAME", "ed%40smith")
		writeJSON(w, types.ApplicationProperties{Version: "5.0.0"})
	})

	for i := 0; i < 2; i++ {
		name, err := c.AuthenticatedUser(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if name != "ed@smith" {
			t.Errorf("AuthenticatedUser() = %q", name)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want a single lookup", calls.Load())
	}

	missing := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, types.ApplicationProperties{})
	})
	if _, err := missing.AuthenticatedUser(context.Background()); !errors.Is(err, ErrAuthentication) {
		t.Errorf("err = %v, want ErrAuthentication", err)
	}
}

func TestUserFiltersExactName(t *testing.T) {
	users := []types.User{
		{Name: "ed@smithson", Slug: "ed_smithson"},
		{Name: "ed@smith", Slug: "ed_smith"},
	}
	var (
		mu      sync.Mutex
		filters []string
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/api/1.0/admin/users" {
			t.Errorf("path = %q", r.URL.Path)
		}
		filter := r.URL.Query().Get("filter")
		mu.Lock()
		filters = append(filters, filter)
		mu.Unlock()
		var matches []types.User
		for _, u := range users {
			if strings.Contains(u.Name, filter) {
				matches = append(matches, u)
			}
		}
		writeJSON(w, Page[types.User]{IsLastPage: true, Values: matches})
	})

	u, err := c.User(context.Background(), "ed@smith")
	if err != nil {
		t.Fatal(err)
	}
	if u.Slug != "ed_smith" {
		t.Errorf("Slug = %q", u.Slug)
	}

	_, err = c.User(context.Background(), "nobody")
	var notFound *UserNotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("err = %v, want UserNotFoundError", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if want := []string{"ed@smith", "nobody"}; !slices.Equal(filters, want) {
		t.Errorf("filters = %v, want %v", filters, want)
	}
}

func TestPlugins(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/plugins/1.0/" {
			t.Errorf("path = %q", r.URL.Path)
		}
		writeJSON(w, map[string]any{"plugins": []types.Plugin{
			{Key: "a", Name: "Awesome Graphs", Enabled: true, UserInstalled: true},
			{Key: "b", Name: "Core", Enabled: true},
		}})
	})

	plugins, err := c.Plugins(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(plugins) != 2 || !plugins[0].UserInstalled {
		t.Errorf("plugins = %+v", plugins)
	}
}

func TestCommitDiffWithComments(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		want := "/rest/api/1.0/projects/MIGR8/repos/r/commits/abc/diff/docs/README.md"
		if r.URL.Path != want {
			t.Errorf("path = %q, want %q", r.URL.Path, want)
		}
		if r.URL.Query().Get("since") != "parent" {
			t.Errorf("since = %q", r.URL.Query().Get("since"))
		}
		_, _ = io.WriteString(w, `{
			"fromHash": "parent", "toHash": "abc",
			"diffs": [{
				"destination": {"toString": "docs/README.md"},
				"hunks": [],
				"lineComments": [{"id": 5, "text": "nice"}],
				"fileComments": [{"id": 6, "text": "whole file"}]
			}]
		}`)
	})

	d, err := c.Project("MIGR8").Repository("r").Diff(context.Background(), "abc", "docs/README.md", "parent")
	if err != nil {
		t.Fatal(err)
	}
	if d.ToHash != "abc" || len(d.Diffs) != 1 || d.Diffs[0].Path() != "docs/README.md" {
		t.Errorf("diff = %+v", d.Diff)
	}
	if len(d.Comments) != 1 || d.Comments[0].LineComments[0].ID != 5 || d.Comments[0].FileComments[0].Text != "whole file" {
		t.Errorf("comments = %+v", d.Comments)
	}
}

func TestAttachments(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/projects/MIGR8/repos/r/attachments/7/screen.png" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "image/png")
		if r.Method == http.MethodHead {
			return
		}
		_, _ = io.WriteString(w, "PNG")
	})
	repo := c.Project("MIGR8").Repository("r")

	ct, err := repo.AttachmentContentType(context.Background(), []string{"7", "screen.png"})
	if err != nil || ct != "image/png" {
		t.Errorf("AttachmentContentType() = %q, %v", ct, err)
	}

	ct, err = repo.AttachmentContentType(context.Background(), []string{".", "screen.png"})
	if err != nil || ct != "" {
		t.Errorf("dot path = %q, %v; want skipped", ct, err)
	}

	rc, err := repo.Attachment(context.Background(), []string{"7", "screen.png"})
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "PNG" {
		t.Errorf("body = %q", data)
	}
}

func TestActivitiesQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/api/1.0/projects/MIGR8/repos/r/pull-requests/7/activities" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("fromId") != "42" || r.URL.Query().Get("fromType") != "COMMENT" {
			t.Errorf("query = %q", r.URL.RawQuery)
		}
		writeJSON(w, Page[types.Activity]{IsLastPage: true, Values: []types.Activity{
			{ID: 1, Action: types.ActionCommented, Comment: &types.Comment{ID: 42}},
		}})
	})

	acts, err := c.Project("MIGR8").Repository("r").PullRequest(7).Activities(context.Background(),
		ActivitiesQuery{FromID: 42, FromType: "COMMENT"})
	if err != nil {
		t.Fatal(err)
	}
	if len(acts) != 1 || !acts[0].IsComment() {
		t.Errorf("activities = %+v", acts)
	}
}

func TestIDString(t *testing.T) {
	for _, id := range []int64{0, 7, 1 << 40} {
		if got := IDString(id); got != strconv.FormatInt(id, 10) {
			t.Errorf("IDString(%d) = %q", id, got)
		}
	}
}
