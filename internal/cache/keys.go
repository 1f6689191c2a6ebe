package cache

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// BugKey caches a bug fetched from the tracking service.
func BugKey(bugID int) string {
	return fmt.Sprintf("intake:bug:%d", bugID)
}

// PullRequestKey caches a pull request fetched from the code-review service.
func PullRequestKey(owner, repo string, number int) string {
	return fmt.Sprintf("intake:pr:%s/%s:%d", strings.ToLower(owner), strings.ToLower(repo), number)
}

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s", jobID)
}

// JobResultKey holds the result of a finished job whose report could not be stored.
func JobResultKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s:result", jobID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
