package domain

// KeyPrefix namespaces every redis key written by this service.
const KeyPrefix = "corpora:"

// NamespaceForUser derives the per-tenant vector namespace. The namespace
// string is the sole isolation boundary between tenants: every vector store
// call must receive it, and stores verify returned hits against it.
func NamespaceForUser(userID string) string {
	return "user_" + userID
}
