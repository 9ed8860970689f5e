package redis

import "fmt"

// KeyBuilder provides environment-aware Redis key building functionality
type KeyBuilder struct {
	prefix string // Environment prefix (staging/prod)
}

// NewKeyBuilder creates a new key builder with environment-based prefix
func NewKeyBuilder(environment string) *KeyBuilder {
	// Set key prefix based on environment
	prefix := "prod"
	if environment == "development" || environment == "staging" {
		prefix = "staging"
	}

	return &KeyBuilder{
		prefix: prefix,
	}
}

// BuildKey constructs a Redis key with the environment prefix
func (kb *KeyBuilder) BuildKey(key string) string {
	return fmt.Sprintf("%s:%s", kb.prefix, key)
}

// GetPrefix returns the current environment prefix
func (kb *KeyBuilder) GetPrefix() string {
	return kb.prefix
}

// Approval key builders
func (kb *KeyBuilder) KeyApprovalStatus(groupID string) string {
	return kb.BuildKey(fmt.Sprintf(KeyApprovalStatus, groupID))
}

func (kb *KeyBuilder) KeyMemberCount(groupID string) string {
	return kb.BuildKey(fmt.Sprintf(KeyMemberCount, groupID))
}

func (kb *KeyBuilder) KeyGroupDetail(groupID string) string {
	return kb.BuildKey(fmt.Sprintf(KeyGroupDetail, groupID))
}

// ChannelPlanChanges returns the environment-scoped pub/sub channel carrying
// vote change notifications
func (kb *KeyBuilder) ChannelPlanChanges() string {
	return kb.BuildKey(ChannelPlanChanges)
}

// Generic key builders for custom patterns
func (kb *KeyBuilder) KeyCustom(pattern string, args ...interface{}) string {
	key := fmt.Sprintf(pattern, args...)
	return kb.BuildKey(key)
}
