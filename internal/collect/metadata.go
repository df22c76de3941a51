package collect

import (
	"strconv"
	"time"

	"github.com/leapstack-labs/rqg/pkg/core"
)

// CI provider names.
const (
	ProviderGitHubActions = "github_actions"
	ProviderJenkins       = "jenkins"
	ProviderGitLab        = "gitlab_ci"
)

// unknownValue fills repo, branch and commit when nothing identifies them.
const unknownValue = "unknown"

// Overrides are metadata values given explicitly on the command line.
// Empty fields fall through to the environment.
type Overrides struct {
	Repo        string
	Branch      string
	Commit      string
	Workflow    string
	Job         string
	BuildNumber string
	Attempt     int
	OS          string
	Browser     string
	Device      string
	RunnerPool  string
	ShardID     string
}

// DetectMetadata builds run metadata from overrides, CI provider variables and
// generic variables, in that order of precedence.
func DetectMetadata(getenv func(string) string, o Overrides, now time.Time) core.RunMetadata {
	md := core.RunMetadata{
		Repo:        first(o.Repo, getenv("GITHUB_REPOSITORY"), getenv("CI_PROJECT_PATH"), getenv("GIT_REPO"), unknownValue),
		Branch:      first(o.Branch, getenv("GITHUB_HEAD_REF"), getenv("GITHUB_REF_NAME"), getenv("CI_COMMIT_REF_NAME"), getenv("BRANCH_NAME"), getenv("GIT_BRANCH"), unknownValue),
		CommitSHA:   first(o.Commit, getenv("GITHUB_SHA"), getenv("CI_COMMIT_SHA"), getenv("GIT_COMMIT"), unknownValue),
		Workflow:    o.Workflow,
		Job:         o.Job,
		BuildNumber: o.BuildNumber,
		Attempt:     o.Attempt,
		OS:          first(o.OS, getenv("RUNNER_OS"), getenv("OS")),
		Browser:     first(o.Browser, getenv("BROWSER")),
		Device:      first(o.Device, getenv("DEVICE")),
		RunnerPool:  first(o.RunnerPool, getenv("RUNNER_POOL")),
		ShardID:     first(o.ShardID, getenv("SHARD_ID")),
	}

	switch {
	case getenv("GITHUB_ACTIONS") != "":
		md.CIProvider = ProviderGitHubActions
		md.Workflow = first(md.Workflow, getenv("GITHUB_WORKFLOW"))
		md.Job = first(md.Job, getenv("GITHUB_JOB"))
		md.BuildNumber = first(md.BuildNumber, getenv("GITHUB_RUN_ID"))
		if md.Attempt == 0 {
			md.Attempt = atoiOr(getenv("GITHUB_RUN_ATTEMPT"), 1)
		}
	case getenv("JENKINS_URL") != "":
		md.CIProvider = ProviderJenkins
		md.Workflow = first(md.Workflow, getenv("JOB_NAME"))
		md.BuildNumber = first(md.BuildNumber, getenv("BUILD_NUMBER"))
	case getenv("GITLAB_CI") != "":
		md.CIProvider = ProviderGitLab
		md.Workflow = first(md.Workflow, getenv("CI_PIPELINE_NAME"), getenv("CI_PROJECT_NAME"))
		md.Job = first(md.Job, getenv("CI_JOB_NAME"))
		md.BuildNumber = first(md.BuildNumber, getenv("CI_PIPELINE_ID"))
		if md.Attempt == 0 {
			md.Attempt = atoiOr(getenv("CI_JOB_ATTEMPT"), 0)
		}
	}
	md.Job = first(md.Job, md.Workflow)

	started, ended := now.UTC(), now.UTC()
	md.StartedAt = &started
	md.EndedAt = &ended
	return md
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
