package issue

import "testing"

func TestParseGitHubURL(t *testing.T) {
	tests := []struct {
		in     string
		want   GitHubRef
		wantOK bool
	}{
		{"https://github.com/owner/repo/issues/42", GitHubRef{"github.com", "owner", "repo", "issues", 42}, true},
		{"https://github.com/owner/repo/pull/123", GitHubRef{"github.com", "owner", "repo", "pull", 123}, true},
		{"https://www.github.com/owner/repo/issues/1", GitHubRef{"github.com", "owner", "repo", "issues", 1}, true},
		{"http://github.com/owner/repo/issues/99", GitHubRef{"github.com", "owner", "repo", "issues", 99}, true},
		{"https://github.example.net/team/project/issues/456", GitHubRef{"github.example.net", "team", "project", "issues", 456}, true},
		{"https://github.com/my-org/my-cool-repo/issues/7", GitHubRef{"github.com", "my-org", "my-cool-repo", "issues", 7}, true},
		{"https://gitlab.com/owner/repo/issues/1", GitHubRef{}, false},
		{"not a url", GitHubRef{}, false},
		{"https://github.com/owner/repo", GitHubRef{}, false},
		{"https://github.com/owner/repo/commits/abc", GitHubRef{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseGitHubURL(tt.in)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParseGitHubURL(%q) = %+v, %v; want %+v, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParseJiraKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"AIE-123", "AIE-123"},
		{"PROJ-1", "PROJ-1"},
		{"ABC-99999", "ABC-99999"},
		{"https://example.atlassian.net/browse/AIE-456", "AIE-456"},
		{"https://example.atlassian.net/browse/TASK-789?focused=1", "TASK-789"},
		{"123", ""},
		{"aie-123", ""},
		{"AIE123", ""},
		{"https://github.com/owner/repo", ""},
	}
	for _, tt := range tests {
		got, ok := ParseJiraKey(tt.in)
		if got != tt.want || ok != (tt.want != "") {
			t.Errorf("ParseJiraKey(%q) = %q, %v; want %q", tt.in, got, ok, tt.want)
		}
	}
}

func TestSplitArg(t *testing.T) {
	tests := []struct {
		in, issue, repo string
	}{
		{"42", "42", ""},
		{"myrepo:42", "42", "myrepo"},
		{"AIE-123", "AIE-123", ""},
		{"https://github.com/owner/repo/issues/1", "https://github.com/owner/repo/issues/1", ""},
	}
	for _, tt := range tests {
		issue, repo := SplitArg(tt.in)
		if issue != tt.issue || repo != tt.repo {
			t.Errorf("SplitArg(%q) = %q, %q; want %q, %q", tt.in, issue, repo, tt.issue, tt.repo)
		}
	}
}

func TestParseArg(t *testing.T) {
	tests := []struct {
		in     string
		want   Ref
		wantOK bool
	}{
		{"42", Ref{Number: 42}, true},
		{"myrepo:42", Ref{Repo: "myrepo", Number: 42}, true},
		{"AIE-123", Ref{JiraKey: "AIE-123"}, true},
		{"https://github.com/owner/repo/pull/9", Ref{Repo: "repo", Number: 9}, true},
		{"myrepo:abc", Ref{}, false},
		{"0", Ref{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseArg(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("ParseArg(%q) = %+v, %v; want %+v, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
	if k := (Ref{Number: 42}).Key(); k != "42" {
		t.Errorf("Key = %q", k)
	}
	if k := (Ref{Number: 1, JiraKey: "AB-1"}).Key(); k != "AB-1" {
		t.Errorf("Key = %q", k)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"Hello World", 0, "hello-world"},
		{"Fix: the [bug]!", 0, "fix-the-bug"},
		{"Feature/add-login", 0, "feature-add-login"},
		{"test@example#123", 0, "test-example-123"},
		{"hello   world", 0, "hello-world"},
		{"hello---world", 0, "hello-world"},
		{"  hello  ", 0, "hello"},
		{"", 0, ""},
		{"   ", 0, ""},
		{"v2.0.0 release", 0, "v2-0-0-release"},
		{"café résumé", 0, "cafe-resume"},
		{"implement user authentication system", 30, "implement-user-authentication"},
		{"this is a very long issue title that should be truncated", 20, "this-is-a-very-long"},
		{"hello world again", 11, "hello-world"},
		{"hello world again", 12, "hello-world"},
	}
	for _, tt := range tests {
		got := Slugify(tt.in, tt.max)
		if got != tt.want {
			t.Errorf("Slugify(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
		if tt.max > 0 && len(got) > tt.max {
			t.Errorf("Slugify(%q, %d) length %d", tt.in, tt.max, len(got))
		}
	}
}
