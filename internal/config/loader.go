package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "TREESYNC_"

// Loader resolves a Config from defaults, an optional TOML file and the
// environment.
type Loader struct {
	path    string
	prefix  string
	environ func() []string
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithEnvPrefix changes the environment variable prefix.
func WithEnvPrefix(prefix string) LoaderOption {
	return func(l *Loader) { l.prefix = prefix }
}

// WithEnviron replaces os.Environ as the source of environment variables.
func WithEnviron(fn func() []string) LoaderOption {
	return func(l *Loader) { l.environ = fn }
}

// NewLoader creates a loader for the file at path. An empty path skips the
// file layer.
func NewLoader(path string, opts ...LoaderOption) *Loader {
	l := &Loader{path: path, prefix: EnvPrefix, environ: os.Environ}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the config file path.
func (l *Loader) Path() string {
	return l.path
}

// Load reads the file, applies environment overrides and validates the
// result. A missing file is not an error.
func (l *Loader) Load() (Config, error) {
	layers := map[string]any{}

	if l.path != "" {
		data, err := os.ReadFile(l.path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return Config{}, fmt.Errorf("reading config file %s: %w", l.path, err)
		default:
			fileLayer, err := parseTOML(l.path, data)
			if err != nil {
				return Config{}, err
			}
			layers = deepMerge(layers, fileLayer)
		}
	}
	layers = deepMerge(layers, l.envLayer())

	cfg, err := decode(layers)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load is shorthand for NewLoader(path).Load().
func Load(path string) (Config, error) {
	return NewLoader(path).Load()
}

func parseTOML(source string, data []byte) (map[string]any, error) {
	var m map[string]any
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, &ParseError{Path: source, Message: err.Error(), Err: err}
	}
	return m, nil
}

// decode lays the merged layers over the defaults. Unknown keys are errors.
func decode(layers map[string]any) (Config, error) {
	cfg := Default()
	if len(layers) == 0 {
		return cfg, nil
	}
	data, err := toml.Marshal(layers)
	if err != nil {
		return Config{}, fmt.Errorf("encoding merged config: %w", err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, &ParseError{Path: "<merged>", Message: err.Error(), Err: err}
	}
	return cfg, nil
}

// envLayer collects PREFIX_SECTION_KEY variables into section.key entries,
// for example TREESYNC_SYNC_MAX_TREE_DEPTH into sync.max_tree_depth.
func (l *Loader) envLayer() map[string]any {
	out := map[string]any{}
	for _, kv := range l.environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, l.prefix) {
			continue
		}
		section, key, ok := envToPath(strings.TrimPrefix(name, l.prefix))
		if !ok {
			continue
		}
		sub, _ := out[section].(map[string]any)
		if sub == nil {
			sub = map[string]any{}
			out[section] = sub
		}
		sub[key] = parseValue(value)
	}
	return out
}

func envToPath(name string) (section, key string, ok bool) {
	section, key, ok = strings.Cut(strings.ToLower(name), "_")
	if !ok || section == "" || key == "" {
		return "", "", false
	}
	return section, key, true
}

// parseValue converts an environment string to the most specific scalar.
func parseValue(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

// deepMerge merges src into dst. Values in src win; nested maps merge.
func deepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any)
	}
	for key, srcVal := range src {
		srcMap, srcIsMap := srcVal.(map[string]any)
		dstMap, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			dst[key] = deepMerge(dstMap, srcMap)
			continue
		}
		dst[key] = srcVal
	}
	return dst
}
