// Package yamlfile reads safety rule versions from YAML files. Loaded rules
// are activation requests only; they go through the validator and guard like
// any other rule version.
package yamlfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/intake-triage/internal/core/domain"
)

type ruleFile struct {
	OrganizationID string     `yaml:"organization_id"`
	Rules          []ruleSpec `yaml:"rules"`
}

type ruleSpec struct {
	RuleKey        string         `yaml:"rule_key"`
	OrganizationID string         `yaml:"organization_id"`
	Logic          map[string]any `yaml:"logic"`
	Defaults       map[string]any `yaml:"defaults"`
}

// Load reads one file, or every *.yaml / *.yml file of a directory in name
// order.
func Load(path string) ([]domain.ActivateRuleRequest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat rule source %s: %w", path, err)
	}
	if !info.IsDir() {
		return LoadFile(path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read rule dir %s: %w", path, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make([]domain.ActivateRuleRequest, 0)
	for _, name := range names {
		reqs, err := LoadFile(filepath.Join(path, name))
		if err != nil {
			return nil, err
		}
		out = append(out, reqs...)
	}
	return out, nil
}

func LoadFile(path string) ([]domain.ActivateRuleRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule file %s: %w", path, err)
	}
	reqs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reqs, nil
}

func Parse(data []byte) ([]domain.ActivateRuleRequest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file ruleFile
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, domain.WrapError(domain.ErrRuleConfigInvalid, "yamlfile.parse", errors.New("empty rule file"))
		}
		return nil, domain.WrapError(domain.ErrRuleConfigInvalid, "yamlfile.parse", err)
	}
	if len(file.Rules) == 0 {
		return nil, domain.WrapError(domain.ErrRuleConfigInvalid, "yamlfile.parse", errors.New("no rules declared"))
	}

	out := make([]domain.ActivateRuleRequest, 0, len(file.Rules))
	for i, entry := range file.Rules {
		org := entry.OrganizationID
		if org == "" {
			org = file.OrganizationID
		}
		logic, err := toRawJSON(entry.Logic)
		if err != nil {
			return nil, domain.WrapError(domain.ErrRuleConfigInvalid, "yamlfile.parse",
				fmt.Errorf("rules[%d] %s logic: %w", i, entry.RuleKey, err))
		}
		defaults, err := toRawJSON(entry.Defaults)
		if err != nil {
			return nil, domain.WrapError(domain.ErrRuleConfigInvalid, "yamlfile.parse",
				fmt.Errorf("rules[%d] %s defaults: %w", i, entry.RuleKey, err))
		}
		out = append(out, domain.ActivateRuleRequest{
			OrganizationID: org,
			RuleKey:        strings.TrimSpace(entry.RuleKey),
			Logic:          logic,
			Defaults:       defaults,
		})
	}
	return out, nil
}

// toRawJSON leaves a missing section empty so the validator reports it as
// required.
func toRawJSON(v map[string]any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
