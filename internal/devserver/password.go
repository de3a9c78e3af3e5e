package devserver

import "golang.org/x/crypto/bcrypt"

// hashPassword hashes a plaintext password with cost, falling back to the
// bcrypt default for out-of-range values.
func hashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// comparePassword verifies a password against its hashed value.
func comparePassword(hashed, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}
