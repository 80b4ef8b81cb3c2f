package hookconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// Load reads the settings document at path.
//
// A missing file yields an empty document. A file that is not valid JSON is
// logged and also yields an empty document; it is overwritten on the next
// Save. Only I/O failures other than "not found" are returned as errors.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewSettings(), nil
		}
		return nil, fmt.Errorf("read settings %s: %w", path, err)
	}
	settings, err := Parse(data)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Settings file is not valid JSON, starting from an empty registry")
		return NewSettings(), nil
	}
	return settings, nil
}

// Parse decodes a settings document, normalizing malformed hook entries.
func Parse(data []byte) (*Settings, error) {
	settings := NewSettings()
	if len(bytes.TrimSpace(data)) == 0 {
		return settings, nil
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	for k, v := range top {
		if k == "hooks" {
			continue
		}
		settings.Other[k] = v
	}
	if raw, ok := top["hooks"]; ok {
		settings.Hooks = parseRegistry(raw)
	}
	return settings, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func parseRegistry(raw json.RawMessage) *Registry {
	reg := NewRegistry()
	if isNull(raw) {
		return reg
	}
	var events map[string]json.RawMessage
	if err := json.Unmarshal(raw, &events); err != nil {
		log.Warn().Err(err).Msg("Ignoring hooks value that is not an object")
		return reg
	}
	for event, value := range events {
		if isNull(value) {
			reg.Disabled[event] = true
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(value, &items); err != nil {
			log.Warn().Str("event", event).Msg("Ignoring event whose value is not a list")
			continue
		}
		groups := make([]*Group, 0, len(items))
		for i, item := range items {
			g, ok := parseGroup(item)
			if !ok {
				log.Warn().Str("event", event).Int("index", i).Msg("Skipping hook group that is not an object")
				continue
			}
			groups = append(groups, g)
		}
		reg.Events[event] = groups
	}
	return reg
}

func parseGroup(raw json.RawMessage) (*Group, bool) {
	if isNull(raw) {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}

	g := &Group{Hooks: []Command{}}
	for key, value := range obj {
		switch key {
		case "matcher":
			g.Matcher = parseMatcher(value)
		case "hooks":
			g.Hooks = parseCommands(value)
		case OwnershipKey:
			var own Ownership
			if err := json.Unmarshal(value, &own); err != nil || isNull(value) {
				own = Ownership{}
			}
			g.Flow = &own
		default:
			if g.Extra == nil {
				g.Extra = make(map[string]any)
			}
			g.Extra[key] = decodeAny(value)
		}
	}
	return g, true
}

func parseMatcher(raw json.RawMessage) *string {
	if isNull(raw) {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &s
	}
	return Matcher(string(bytes.TrimSpace(raw)))
}

func parseCommands(raw json.RawMessage) []Command {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return []Command{}
	}
	out := make([]Command, 0, len(items))
	for _, item := range items {
		var obj map[string]any
		if err := json.Unmarshal(item, &obj); err != nil || obj == nil {
			continue
		}
		cmd := Command{Type: DefaultHookType}
		if t, ok := obj["type"].(string); ok && t != "" {
			cmd.Type = t
		}
		if c, ok := obj["command"].(string); ok {
			cmd.Command = c
		}
		delete(obj, "type")
		delete(obj, "command")
		if len(obj) > 0 {
			cmd.Extra = obj
		}
		out = append(out, cmd)
	}
	return out
}

func decodeAny(raw json.RawMessage) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

// Encode renders the document the way Save writes it: two-space indent, keys
// sorted, trailing newline.
func Encode(settings *Settings) ([]byte, error) {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	return append(data, '\n'), nil
}

// Save writes the whole document to path, creating parent directories.
// The write goes through a temporary file in the same directory and a rename,
// so readers never observe a partial file.
func Save(settings *Settings, path string) error {
	data, err := Encode(settings)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return fmt.Errorf("create temp settings file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close settings: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace settings %s: %w", path, err)
	}
	return nil
}
