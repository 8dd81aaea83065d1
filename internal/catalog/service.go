package catalog

import (
	"math/rand"
	"sync"

	"github.com/ParthMishra20/pokedex/internal/ledger"
)

// Service exposes a small in-memory catalog of mintable species.
type Service struct {
	mu      sync.Mutex
	rng     *rand.Rand
	species []Species
}

func NewService(seed int64) *Service {
	return &Service{
		rng: rand.New(rand.NewSource(seed)),
		species: []Species{
			{
				SourceID:    1,
				Name:        "bulbasaur",
				RarityTier:  "common",
				Types:       []string{"grass", "poison"},
				Description: "A strange seed was planted on its back at birth.",
				ShinyOdds:   4096,
			},
			{
				SourceID:    4,
				Name:        "charmander",
				RarityTier:  "common",
				Types:       []string{"fire"},
				Description: "The flame at the tip of its tail makes a sound as it burns.",
				ShinyOdds:   4096,
			},
			{
				SourceID:    7,
				Name:        "squirtle",
				RarityTier:  "common",
				Types:       []string{"water"},
				Description: "When it retracts its long neck into its shell, it squirts out water.",
				ShinyOdds:   4096,
			},
			{
				SourceID:    25,
				Name:        "pikachu",
				RarityTier:  "rare",
				Types:       []string{"electric"},
				Description: "When several of these gather, their electricity can build and cause lightning storms.",
				ShinyOdds:   2048,
			},
			{
				SourceID:    133,
				Name:        "eevee",
				RarityTier:  "rare",
				Types:       []string{"normal"},
				Description: "Its genetic code is irregular. It may mutate if it is exposed to radiation.",
				ShinyOdds:   2048,
			},
			{
				SourceID:    6,
				Name:        "charizard",
				RarityTier:  "epic",
				Types:       []string{"fire", "flying"},
				Description: "It spits fire that is hot enough to melt boulders.",
				ShinyOdds:   1024,
			},
			{
				SourceID:    150,
				Name:        "mewtwo",
				RarityTier:  "legendary",
				Types:       []string{"psychic"},
				Description: "Created by a scientist after years of horrific gene splicing experiments.",
				ShinyOdds:   512,
			},
		},
	}
}

func (s *Service) List() []Species {
	return s.species
}

func (s *Service) Get(sourceID uint64) (Species, bool) {
	for _, sp := range s.species {
		if sp.SourceID == sourceID {
			return sp, true
		}
	}
	return Species{}, false
}

// MintMetadata builds the immutable metadata for a new asset of the given
// species, rolling the shiny trait at the species' odds (1-in-N).
func (s *Service) MintMetadata(sourceID uint64) (ledger.Metadata, bool) {
	sp, ok := s.Get(sourceID)
	if !ok {
		return ledger.Metadata{}, false
	}

	s.mu.Lock()
	shiny := sp.ShinyOdds > 0 && s.rng.Intn(int(sp.ShinyOdds)) == 0
	s.mu.Unlock()

	return ledger.Metadata{
		SourceID:   sp.SourceID,
		Name:       sp.Name,
		RarityTier: sp.RarityTier,
		Shiny:      shiny,
	}, true
}
