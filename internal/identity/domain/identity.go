package domain

// Organization is the identity an API key resolves to. Its Name is recorded
// as created_by on every session the key creates.
type Organization struct {
	Name string
}

// KeyKind says how a configured API key is stored.
type KeyKind string

const (
	KeyKindPlain  KeyKind = "plain"
	KeyKindBcrypt KeyKind = "bcrypt"
)

// APIKey binds one secret (plaintext or bcrypt hash) to an organization.
type APIKey struct {
	Organization Organization
	Kind         KeyKind
	Secret       string
}
