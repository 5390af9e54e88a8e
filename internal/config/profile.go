package config

import (
	"fmt"
	"os"

	"github.com/danmuck/convoctl/internal/controlplane"
	"github.com/pelletier/go-toml/v2"
)

// LoadProfile reads the agent profile consumed by the join document builder.
func LoadProfile(path string) (controlplane.Profile, error) {
	var p controlplane.Profile
	if err := loadToml(path, &p); err != nil {
		return controlplane.Profile{}, err
	}
	if err := p.Validate(); err != nil {
		return controlplane.Profile{}, fmt.Errorf("profile %s: %w", path, err)
	}
	return p, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}
