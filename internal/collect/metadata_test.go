package collect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFunc(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestDetectMetadata(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		env       map[string]string
		overrides Overrides
		check     func(t *testing.T, repo, branch, commit, provider, workflow, job, build string, attempt int)
	}{
		{
			name: "no environment",
			env:  map[string]string{},
			check: func(t *testing.T, repo, branch, commit, provider, workflow, job, build string, attempt int) {
				assert.Equal(t, "unknown", repo)
				assert.Equal(t, "unknown", branch)
				assert.Equal(t, "unknown", commit)
				assert.Empty(t, provider)
				assert.Zero(t, attempt)
			},
		},
		{
			name: "github actions",
			env: map[string]string{
				"GITHUB_ACTIONS":     "true",
				"GITHUB_REPOSITORY":  "acme/shop",
				"GITHUB_REF_NAME":    "main",
				"GITHUB_SHA":         "abc123",
				"GITHUB_WORKFLOW":    "CI",
				"GITHUB_JOB":         "test",
				"GITHUB_RUN_ID":      "99",
				"GITHUB_RUN_ATTEMPT": "2",
			},
			check: func(t *testing.T, repo, branch, commit, provider, workflow, job, build string, attempt int) {
				assert.Equal(t, "acme/shop", repo)
				assert.Equal(t, "main", branch)
				assert.Equal(t, "abc123", commit)
				assert.Equal(t, ProviderGitHubActions, provider)
				assert.Equal(t, "CI", workflow)
				assert.Equal(t, "test", job)
				assert.Equal(t, "99", build)
				assert.Equal(t, 2, attempt)
			},
		},
		{
			name: "github pull request prefers head ref",
			env: map[string]string{
				"GITHUB_ACTIONS":  "true",
				"GITHUB_HEAD_REF": "feature/x",
				"GITHUB_REF_NAME": "42/merge",
			},
			check: func(t *testing.T, repo, branch, commit, provider, workflow, job, build string, attempt int) {
				assert.Equal(t, "feature/x", branch)
				assert.Equal(t, 1, attempt)
			},
		},
		{
			name: "jenkins",
			env: map[string]string{
				"JENKINS_URL":  "https://ci.example.com",
				"GIT_REPO":     "acme/shop",
				"BRANCH_NAME":  "release",
				"GIT_COMMIT":   "def456",
				"JOB_NAME":     "shop-tests",
				"BUILD_NUMBER": "7",
			},
			check: func(t *testing.T, repo, branch, commit, provider, workflow, job, build string, attempt int) {
				assert.Equal(t, "acme/shop", repo)
				assert.Equal(t, "release", branch)
				assert.Equal(t, "def456", commit)
				assert.Equal(t, ProviderJenkins, provider)
				assert.Equal(t, "shop-tests", workflow)
				assert.Equal(t, "shop-tests", job)
				assert.Equal(t, "7", build)
			},
		},
		{
			name: "gitlab",
			env: map[string]string{
				"GITLAB_CI":          "true",
				"CI_PROJECT_PATH":    "acme/shop",
				"CI_COMMIT_REF_NAME": "main",
				"CI_COMMIT_SHA":      "fff000",
				"CI_JOB_NAME":        "rspec",
				"CI_PIPELINE_ID":     "314",
			},
			check: func(t *testing.T, repo, branch, commit, provider, workflow, job, build string, attempt int) {
				assert.Equal(t, "acme/shop", repo)
				assert.Equal(t, ProviderGitLab, provider)
				assert.Equal(t, "rspec", job)
				assert.Equal(t, "314", build)
			},
		},
		{
			name: "overrides win",
			env: map[string]string{
				"GITHUB_ACTIONS":     "true",
				"GITHUB_REPOSITORY":  "acme/shop",
				"GITHUB_RUN_ATTEMPT": "3",
			},
			overrides: Overrides{Repo: "acme/override", Branch: "b", Commit: "c", Workflow: "w", Attempt: 5},
			check: func(t *testing.T, repo, branch, commit, provider, workflow, job, build string, attempt int) {
				assert.Equal(t, "acme/override", repo)
				assert.Equal(t, "b", branch)
				assert.Equal(t, "c", commit)
				assert.Equal(t, "w", workflow)
				assert.Equal(t, 5, attempt)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := DetectMetadata(envFunc(tt.env), tt.overrides, now)
			require.NotNil(t, md.StartedAt)
			assert.True(t, md.StartedAt.Equal(now))
			tt.check(t, md.Repo, md.Branch, md.CommitSHA, md.CIProvider, md.Workflow, md.Job, md.BuildNumber, md.Attempt)
		})
	}
}

func TestDetectMetadata_Environment(t *testing.T) {
	md := DetectMetadata(envFunc(map[string]string{
		"RUNNER_OS":   "Linux",
		"BROWSER":     "chrome",
		"DEVICE":      "pixel",
		"RUNNER_POOL": "stable",
		"SHARD_ID":    "3",
	}), Overrides{Browser: "firefox"}, time.Now())

	assert.Equal(t, "Linux", md.OS)
	assert.Equal(t, "firefox", md.Browser)
	assert.Equal(t, "pixel", md.Device)
	assert.Equal(t, "stable", md.RunnerPool)
	assert.Equal(t, "3", md.ShardID)
}
