package security

import "golang.org/x/crypto/bcrypt"

// credentialCost is the bcrypt work factor for newly stored credentials.
// Raising it affects new hashes only; existing hashes verify against the
// cost they were created with and are upgraded via NeedsRehash.
const credentialCost = 12

// HashPassword derives a bcrypt hash for storing a user credential.
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), credentialCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether plain matches the stored bcrypt hash.
func CheckPassword(stored, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(plain)) == nil
}

// NeedsRehash reports whether a stored hash was created with a weaker work
// factor than credentialCost. Upgrading happens on the next successful
// login, the only moment the plaintext is available.
func NeedsRehash(stored string) bool {
	cost, err := bcrypt.Cost([]byte(stored))
	if err != nil {
		return false
	}
	return cost < credentialCost
}
