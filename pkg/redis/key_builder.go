package redis

import "fmt"

// KeyBuilder namespaces keys when several deployments share one Redis
type KeyBuilder struct {
	prefix string
}

// NewKeyBuilder creates a key builder. An empty prefix leaves keys untouched
// so they match the names the web client and edge functions expect.
func NewKeyBuilder(prefix string) *KeyBuilder {
	return &KeyBuilder{prefix: prefix}
}

// BuildKey constructs a Redis key with the configured prefix
func (kb *KeyBuilder) BuildKey(key string) string {
	if kb.prefix == "" {
		return key
	}
	return fmt.Sprintf("%s:%s", kb.prefix, key)
}

// Statistics key builders
func (kb *KeyBuilder) KeyUserStats(userID string) string {
	return kb.BuildKey(fmt.Sprintf(KeyUserStats, userID))
}

func (kb *KeyBuilder) KeyUserStatsGen(userID string) string {
	return kb.BuildKey(fmt.Sprintf(KeyUserStatsGen, userID))
}

func (kb *KeyBuilder) KeyActivity(userID string, unixMillis int64) string {
	return kb.BuildKey(fmt.Sprintf(KeyActivity, userID, unixMillis))
}

// KeyActivityPattern matches every activity log entry of a user
func (kb *KeyBuilder) KeyActivityPattern(userID string) string {
	return kb.BuildKey(fmt.Sprintf(KeyActivityScan, userID))
}
