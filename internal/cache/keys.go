package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s", jobID)
}

func RateWindowKey(name string) string {
	return fmt.Sprintf("ratelimit:%s", name)
}

func TokenBucketKey(name string) string {
	return fmt.Sprintf("bucket:%s", name)
}

// TaskKey maps a queue task ID (a UUID string minted at enqueue time) to
// its Redis state hash.
func TaskKey(taskID string) string {
	return fmt.Sprintf("task:%s", taskID)
}

func OAuthStateKey(state string) string {
	return fmt.Sprintf("oauthstate:%s", state)
}

func GenerationChannel(jobID string) string {
	return fmt.Sprintf("generation:%s", jobID)
}
