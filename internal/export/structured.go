package export

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

func encodeJSON(snap Snapshot) (*Result, error) {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode json export: %w", err)
	}
	return &Result{
		Data:     append(data, '\n'),
		Filename: sanitizeFilename(snap.Title) + ".json",
		MimeType: "application/json",
	}, nil
}

// encodeYAML goes through the JSON encoding so field names and order match
// the JSON export, then re-emits the tree in block style.
func encodeYAML(snap Snapshot) (*Result, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode yaml export: %w", err)
	}
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("decode export tree: %w", err)
	}
	clearStyle(&root)

	data, err := yaml.Marshal(&root)
	if err != nil {
		return nil, fmt.Errorf("encode yaml export: %w", err)
	}
	return &Result{
		Data:     data,
		Filename: sanitizeFilename(snap.Title) + ".yaml",
		MimeType: "application/yaml",
	}, nil
}

func clearStyle(node *yaml.Node) {
	node.Style = 0
	for _, child := range node.Content {
		clearStyle(child)
	}
}
