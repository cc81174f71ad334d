package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractPullRequestURL(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{
			name: "bare URL",
			line: "Opened https://github.com/acme/widgets/pull/42 for review",
			want: "https://github.com/acme/widgets/pull/42",
		},
		{
			name: "markdown link",
			line: "Done! [PR #7](https://github.com/acme/widgets/pull/7)",
			want: "https://github.com/acme/widgets/pull/7",
		},
		{
			name: "markdown link with empty title",
			line: "[](https://github.com/acme/widgets/pull/9)",
			want: "https://github.com/acme/widgets/pull/9",
		},
		{
			name: "dots and dashes in slug",
			line: "see https://github.com/my-org/my.repo-v2/pull/123",
			want: "https://github.com/my-org/my.repo-v2/pull/123",
		},
		{
			name: "trailing punctuation ignored by canonical form",
			line: "merged via https://github.com/acme/widgets/pull/5.",
			want: "https://github.com/acme/widgets/pull/5",
		},
		{
			name: "no URL",
			line: "still cloning the repository...",
			want: "",
		},
		{
			name: "issue URL is not a completion signal",
			line: "tracking in https://github.com/acme/widgets/issues/42",
			want: "",
		},
		{
			name: "wrong host",
			line: "https://gitlab.com/acme/widgets/pull/42",
			want: "",
		},
		{
			name: "non-numeric pull id",
			line: "https://github.com/acme/widgets/pull/abc",
			want: "",
		},
		{
			name: "empty line",
			line: "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractPullRequestURL(tt.line))
		})
	}
}

func TestExtractPullRequestURLPrefersMarkdownCapture(t *testing.T) {
	// The bare pattern also matches inside the markdown link; the markdown
	// matcher must win so the canonical form comes from the link target.
	line := "[see https://github.com/other/repo/pull/1](https://github.com/acme/widgets/pull/2)"
	got := ExtractPullRequestURL(line)
	assert.Equal(t, "https://github.com/acme/widgets/pull/2", got)
}

func TestValidatePullRequestURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		slug string
		want bool
	}{
		{"matching slug", "https://github.com/acme/widgets/pull/42", "acme/widgets", true},
		{"case-insensitive slug", "https://github.com/Acme/Widgets/pull/42", "acme/widgets", true},
		{"different repo", "https://github.com/acme/gadgets/pull/42", "acme/widgets", false},
		{"wrong host", "https://gitlab.com/acme/widgets/pull/42", "acme/widgets", false},
		{"not a pull path", "https://github.com/acme/widgets/issues/42", "acme/widgets", false},
		{"extra segments", "https://github.com/acme/widgets/pull/42/files", "acme/widgets", false},
		{"non-numeric id", "https://github.com/acme/widgets/pull/latest", "acme/widgets", false},
		{"malformed URL", "://not-a-url", "acme/widgets", false},
		{"empty URL", "", "acme/widgets", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidatePullRequestURL(tt.url, tt.slug))
		})
	}
}

func TestRepoSlug(t *testing.T) {
	assert.Equal(t, "acme/widgets", RepoSlug("https://github.com/acme/widgets"))
	assert.Equal(t, "acme/widgets", RepoSlug("https://github.com/acme/widgets.git"))
	assert.Equal(t, "", RepoSlug("https://github.com/acme"))
	assert.Equal(t, "", RepoSlug(""))
}
