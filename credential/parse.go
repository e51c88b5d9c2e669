package credential

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseJSON decodes a JSON object of id -> {username, password}, keeping
// the order in which the ids appear.
func ParseJSON(data []byte) ([]Credential, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("failed to parse credentials: expected an object")
	}

	var creds []Credential
	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to parse credentials: %w", err)
		}
		id, _ := tok.(string)

		var e entry
		if err := dec.Decode(&e); err != nil {
			return nil, fmt.Errorf("failed to parse credential %q: %w", id, err)
		}

		cred, err := build(id, e, seen)
		if err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	return creds, nil
}

// ParseYAML decodes a YAML mapping of id -> {username, password}, keeping
// the order in which the ids appear.
func ParseYAML(data []byte) ([]Credential, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("failed to parse credentials: expected a mapping")
	}

	var creds []Credential
	seen := make(map[string]bool)
	for i := 0; i+1 < len(root.Content); i += 2 {
		id := root.Content[i].Value

		var e entry
		if err := root.Content[i+1].Decode(&e); err != nil {
			return nil, fmt.Errorf("failed to parse credential %q: %w", id, err)
		}

		cred, err := build(id, e, seen)
		if err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	return creds, nil
}

func build(id string, e entry, seen map[string]bool) (Credential, error) {
	if seen[id] {
		return Credential{}, fmt.Errorf("%w: %q", ErrDuplicateID, id)
	}
	seen[id] = true

	cred := Credential{ID: id, Username: e.Username, Password: e.Password}
	if err := cred.Validate(); err != nil {
		return Credential{}, fmt.Errorf("credential %q: %w", id, err)
	}
	return cred, nil
}
