package persona

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads the persona directory (agent_registry.yaml plus
// personas/<agent_id>.yaml and templates/<agent_id>.yaml) and returns a
// Resolver. Missing files are tolerated: resolution falls back to built-in
// defaults, so a partially populated directory still resolves every agent.
func Load(log *slog.Logger, dir, defaultAgentID string) (*Resolver, error) {
	if log == nil {
		log = slog.Default()
	}
	logger := log.With(slog.String("service", "persona"))
	r := &Resolver{
		defaultAgentID: defaultAgentID,
		bundles:        map[string]*Bundle{},
		countryAgents:  map[string]string{},
		logger:         logger,
	}

	registry, err := loadRegistry(filepath.Join(dir, "agent_registry.yaml"))
	if err != nil {
		logger.Warn("agent registry unavailable, using built-in defaults", slog.Any("error", err))
		return r, nil
	}

	for _, entry := range registry.AgentRegistry {
		if entry.AgentID == "" {
			continue
		}
		bundle := &Bundle{AgentID: entry.AgentID, Templates: map[string]any{}}
		if p, err := loadPersona(filepath.Join(dir, "personas", entry.AgentID+".yaml")); err == nil {
			bundle.Persona = p
		} else if !os.IsNotExist(err) {
			logger.Warn("persona file unreadable", slog.String("agent_id", entry.AgentID), slog.Any("error", err))
		}
		if t, err := loadTemplates(filepath.Join(dir, "templates", entry.AgentID+".yaml")); err == nil {
			bundle.Templates = t
		} else if !os.IsNotExist(err) {
			logger.Warn("template file unreadable", slog.String("agent_id", entry.AgentID), slog.Any("error", err))
		}
		r.bundles[entry.AgentID] = bundle
		if entry.ContactSelector != nil && entry.ContactSelector.CountryCode != "" {
			r.countryAgents[entry.ContactSelector.CountryCode] = entry.AgentID
		}
	}
	logger.Info("personas loaded", slog.Int("agents", len(r.bundles)))
	return r, nil
}

func loadRegistry(path string) (registryFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return registryFile{}, err
	}
	var registry registryFile
	if err := yaml.Unmarshal(raw, &registry); err != nil {
		return registryFile{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if registry.AgentRegistry == nil {
		return registryFile{}, fmt.Errorf("%s: agent_registry key missing", path)
	}
	return registry, nil
}

func loadPersona(path string) (*Persona, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Persona
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &p, nil
}

func loadTemplates(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var t map[string]any
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return t, nil
}
