package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"homeserve/backend/internal/domain"
)

// Seed is the catalog a memory store starts with when no database is
// configured.
type Seed struct {
	Users        []domain.User                 `json:"users"`
	Services     []domain.Service              `json:"services"`
	Availability []domain.ProviderAvailability `json:"availability"`
}

func LoadSeedFile(path string) (Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return Seed{}, err
	}
	defer f.Close()
	return DecodeSeed(f)
}

func DecodeSeed(r io.Reader) (Seed, error) {
	var seed Seed
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&seed); err != nil {
		return Seed{}, fmt.Errorf("decode seed: %w", err)
	}
	return seed, nil
}

// Apply loads seed into s. Availability documents are validated the same way
// the service validates them.
func (s *Store) Apply(ctx context.Context, seed Seed) error {
	for _, u := range seed.Users {
		if u.ID == "" || !u.Role.Valid() {
			return fmt.Errorf("seed user %q: id and a valid role are required", u.ID)
		}
		s.PutUser(u)
	}
	for _, svc := range seed.Services {
		if svc.ID == "" {
			return fmt.Errorf("seed service: id is required")
		}
		s.PutService(svc)
	}
	for _, pa := range seed.Availability {
		if pa.Timezone == "" {
			pa.Timezone = "UTC"
		}
		if err := pa.Validate(); err != nil {
			return fmt.Errorf("seed availability %s: %w", pa.ProviderID, err)
		}
		if _, err := s.SaveAvailability(ctx, pa); err != nil {
			return err
		}
	}
	return nil
}
