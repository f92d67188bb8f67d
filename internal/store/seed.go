package store

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/katakuxiko/assistgw/internal/model"
)

// SeedProvider - запись провайдера организации в seed-файле
type SeedProvider struct {
	OrganizationID string `json:"organization_id"`
	model.ProviderConfig
}

// Seed - содержимое JSON-файла с ассистентами и настройками организаций
type Seed struct {
	Assistants []model.Assistant `json:"assistants"`
	Providers  []SeedProvider    `json:"providers"`
}

// LoadSeed читает и проверяет seed-файл
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Seed
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("seed %s: %w", path, err)
	}
	return &s, nil
}

func (s *Seed) validate() error {
	seen := make(map[string]bool, len(s.Assistants))
	for i, a := range s.Assistants {
		if a.ID == "" {
			return fmt.Errorf("assistant #%d has no id", i+1)
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate assistant id %q", a.ID)
		}
		seen[a.ID] = true
	}
	for i, p := range s.Providers {
		if p.OrganizationID == "" || p.Provider == "" {
			return fmt.Errorf("provider #%d needs organization_id and provider", i+1)
		}
	}
	return nil
}
