package rediskey

import (
	"fmt"
	"strings"
)

const (
	CatalogPrefix  = "api_tasks"
	ProviderPrefix = "provider"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildCatalogKey returns "api_tasks:{provider}", or "api_tasks:all" when provider is empty.
func BuildCatalogKey(provider string) string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		provider = "all"
	}
	return NamespaceKey(CatalogPrefix, provider)
}

// BuildProviderFetchLockKey returns "provider:{provider}:fetch".
func BuildProviderFetchLockKey(provider string) string {
	return NamespaceKey(ProviderPrefix, strings.ToLower(provider)+":fetch")
}
