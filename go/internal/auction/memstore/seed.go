package memstore

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mcdev12/teamauction/go/internal/auction"
	"gopkg.in/yaml.v3"
)

// Seed is the YAML layout accepted by LoadSeed.
type Seed struct {
	AuctionDate  *time.Time        `yaml:"auction_date"`
	Groups       []auction.Group   `yaml:"groups"`
	Teams        []SeedTeam        `yaml:"teams"`
	Participants []SeedParticipant `yaml:"participants"`
}

type SeedTeam struct {
	ID           string `yaml:"id"`
	GroupID      string `yaml:"group_id"`
	Name         string `yaml:"team_name"`
	RandomNumber int64  `yaml:"random_number"`
}

type SeedParticipant struct {
	ID        string         `yaml:"id"`
	FirstName string         `yaml:"first_name"`
	LastName  string         `yaml:"last_name"`
	Email     string         `yaml:"email"`
	Amount    int64          `yaml:"amount"`
	Profile   map[string]any `yaml:"profile"`
}

// LoadSeed reads a YAML seed file into the store.
func (s *Store) LoadSeed(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}
	return s.Apply(seed)
}

// Apply inserts everything in seed.
func (s *Store) Apply(seed Seed) error {
	for _, g := range seed.Groups {
		s.PutGroup(g)
	}
	for _, t := range seed.Teams {
		if _, ok := s.groupExists(t.GroupID); !ok {
			return fmt.Errorf("team %s references unknown group %s", t.ID, t.GroupID)
		}
		s.PutTeam(auction.Team{ID: t.ID, GroupID: t.GroupID, Name: t.Name, RandomNumber: t.RandomNumber})
	}
	for _, p := range seed.Participants {
		var profile json.RawMessage
		if len(p.Profile) > 0 {
			raw, err := json.Marshal(p.Profile)
			if err != nil {
				return fmt.Errorf("failed to encode profile of %s: %w", p.ID, err)
			}
			profile = raw
		}
		s.PutParticipant(auction.Participant{
			ID:        p.ID,
			FirstName: p.FirstName,
			LastName:  p.LastName,
			Email:     p.Email,
			Amount:    p.Amount,
			Profile:   profile,
		})
	}
	if seed.AuctionDate != nil {
		s.SetAuctionDate(*seed.AuctionDate)
	}
	return nil
}

func (s *Store) groupExists(id string) (auction.Group, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	return g, ok
}
