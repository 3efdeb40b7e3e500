package bank

import "fmt"

// SeedUser describes one demo identity created by Seed.
type SeedUser struct {
	ID   string
	Name string
	Role string
}

// SeedUsers are the demo identities created by `scope init`.
var SeedUsers = []SeedUser{
	{ID: "demo-alice", Name: "Alice Chen", Role: "user"},
	{ID: "demo-bob", Name: "Bob Park", Role: "user"},
	{ID: "demo-staff", Name: "Sam Rivera", Role: "staff"},
	{ID: "demo-admin", Name: "Ada Okafor", Role: "admin"},
}

// Seed creates demo accounts for the seed users: a checking and a savings
// account each, with small opening balances. Idempotent per database only
// in the sense that re-running adds nothing when accounts already exist.
func (s *Store) Seed() error {
	for _, u := range SeedUsers {
		existing, err := s.AccountsForUser(u.ID)
		if err != nil {
			return fmt.Errorf("checking seed state for %s: %w", u.ID, err)
		}
		if len(existing) > 0 {
			continue
		}
		if _, err := s.CreateAccount(u.ID, TypeChecking, 2500); err != nil {
			return fmt.Errorf("seeding checking for %s: %w", u.ID, err)
		}
		if _, err := s.CreateAccount(u.ID, TypeSavings, 10000); err != nil {
			return fmt.Errorf("seeding savings for %s: %w", u.ID, err)
		}
	}
	return nil
}
