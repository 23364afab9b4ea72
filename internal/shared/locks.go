package shared

import "fmt"

// TenantLockKey builds redis keys for per-tenant maintenance sections.
func TenantLockKey(scope string, tenantID int64) string {
	return fmt.Sprintf("gstbilling:%s:tenant:%d:lock", scope, tenantID)
}

