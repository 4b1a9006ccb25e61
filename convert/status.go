package convert

import (
	"errors"

	"github.com/eyeballvul/repovul"
)

// StatusCode classifies the outcome of one repository's conversion.
type StatusCode string

// Possible outcomes.
const (
	StatusOK              = StatusCode("OK")
	StatusRepoNotFound    = StatusCode("REPO_NOT_FOUND")
	StatusGitRuntimeError = StatusCode("GIT_RUNTIME_ERROR")
	StatusLinguistError   = StatusCode("LINGUIST_ERROR")
)

// Describe returns the operator-facing explanation for the final
// statistics report.
func (s StatusCode) Describe() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusRepoNotFound:
		return `"remote: Repository not found". Repo isn't accessible anymore.`
	case StatusGitRuntimeError:
		return "runtime error while cloning the repo"
	case StatusLinguistError:
		return "error running linguist"
	}
	return string(s)
}

// nonOKStatuses, in reporting order.
var nonOKStatuses = []StatusCode{StatusRepoNotFound, StatusGitRuntimeError, StatusLinguistError}

// statusForErr maps a gateway failure to its per-repo status. Errors
// outside the gateway taxonomy (solver, validation, anything else) are
// fatal to the run and report no status.
func statusForErr(err error) (StatusCode, bool) {
	switch {
	case errors.Is(err, repovul.ErrRepoNotFound):
		return StatusRepoNotFound, true
	case errors.Is(err, repovul.ErrLinguist):
		return StatusLinguistError, true
	case errors.Is(err, repovul.ErrGit):
		return StatusGitRuntimeError, true
	}
	return "", false
}
