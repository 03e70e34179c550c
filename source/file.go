package source

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lambda-feedback/procpool/internal/execution/models"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// yamlCommand mirrors models.Command with free-form yaml args.
type yamlCommand struct {
	ID   string `yaml:"id"`
	Op   string `yaml:"op"`
	Args any    `yaml:"args"`
}

// NewFile loads all commands from path. Files ending in .yaml or .yml
// hold a list of commands, anything else is read as JSON lines.
func NewFile(path string) (Source, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return loadYAML(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open command file: %w", err)
	}

	// the whole file is read eagerly, so it can be closed right away
	var cmds []models.Command

	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	for {
		cmd, err := r.next()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if cmd == nil {
			break
		}
		cmds = append(cmds, *cmd)
	}

	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close command file: %w", err)
	}

	return NewSlice(cmds...), nil
}

// next returns the next command of a file, skipping blank lines. It
// returns nil at the end of the input.
func (r *Reader) next() (*models.Command, error) {
	for r.scanner.Scan() {
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}

		cmd, err := parseCommand(r.schema, []byte(line))
		if err != nil {
			return nil, err
		}

		return &cmd, nil
	}

	return nil, r.scanner.Err()
}

func loadYAML(path string) (Source, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read command file: %w", err)
	}

	var docs []yamlCommand
	if err := yaml.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidCommand, path, err)
	}

	schema, err := gojsonschema.NewSchema(commandSchemaLoader)
	if err != nil {
		return nil, fmt.Errorf("failed to load command schema: %w", err)
	}

	cmds := make([]models.Command, 0, len(docs))
	for i, doc := range docs {
		data, err := json.Marshal(toJSONDoc(doc))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: entry %d: %w", ErrInvalidCommand, path, i, err)
		}

		cmd, err := parseCommand(schema, data)
		if err != nil {
			return nil, fmt.Errorf("%s: entry %d: %w", path, i, err)
		}

		cmds = append(cmds, cmd)
	}

	return NewSlice(cmds...), nil
}

func toJSONDoc(doc yamlCommand) map[string]any {
	m := map[string]any{"op": doc.Op}
	if doc.ID != "" {
		m["id"] = doc.ID
	}
	if doc.Args != nil {
		m["args"] = doc.Args
	}

	return m
}
