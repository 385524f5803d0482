package redis

import "fmt"

// KeyBuilder provides environment-aware Redis key building functionality
type KeyBuilder struct {
	prefix string // Environment prefix (staging/prod)
}

// NewKeyBuilder creates a new key builder with environment-based prefix
func NewKeyBuilder(environment string) *KeyBuilder {
	prefix := "prod"
	if environment == "development" || environment == "staging" || environment == "test" {
		prefix = "staging"
	}

	return &KeyBuilder{
		prefix: "coopvote:" + prefix,
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

func (kb *KeyBuilder) KeyTally(agendaID string) string {
	return kb.BuildKey(fmt.Sprintf(KeyTally, agendaID))
}

func (kb *KeyBuilder) KeyVoted(agendaID, userID string) string {
	return kb.BuildKey(fmt.Sprintf(KeyVoted, agendaID, userID))
}

func (kb *KeyBuilder) KeyStartLock(agendaID string) string {
	return kb.BuildKey(fmt.Sprintf(KeyStartLock, agendaID))
}
