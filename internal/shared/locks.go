package shared

import "fmt"

// ResolveStatusLockKey builds the redis key guarding a deferred status resolution.
func ResolveStatusLockKey(mtoID int64) string {
	return fmt.Sprintf("mto:%d:resolve:lock", mtoID)
}
