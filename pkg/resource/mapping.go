package resource

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// MappingEntry is one canonical entity of a mapping file: the canonical name
// shown to applications, an optional stable identifier, and the whitelist of
// surface forms that resolve to it.
type MappingEntry struct {
	ID        string   `json:"id,omitempty"`
	CName     string   `json:"cname"`
	Whitelist []string `json:"whitelist,omitempty"`
}

// Mapping is the parsed mapping.json of one entity type.
type Mapping struct {
	Entities []MappingEntry `json:"entities"`
}

// LoadMapping reads and parses an entity type's mapping.json. A missing file
// yields an empty mapping, since many entity types resolve purely through
// gazetteers or not at all.
func LoadMapping(path string) (*Mapping, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Mapping{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading mapping file: %w", err)
	}
	var m Mapping
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing mapping file %s: %w", path, err)
	}
	return &m, nil
}

// LoadGazetteer reads an entity type's gazetteer, one phrase per line.
// Blank lines and lines starting with # are skipped. A missing file yields
// an empty list.
func LoadGazetteer(path string) ([]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening gazetteer: %w", err)
	}
	defer f.Close()

	var phrases []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		phrases = append(phrases, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading gazetteer %s: %w", path, err)
	}
	return phrases, nil
}
