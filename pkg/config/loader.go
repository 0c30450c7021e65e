package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoaderOptions configures where configuration is read from
type LoaderOptions struct {
	ConfigFile      string
	EnvironmentFile string

	// EnvPrefix names the prefixed form of every variable (BRIGHT_LND_HOST
	// for LND_HOST), which takes precedence over the bare name
	EnvPrefix string
}

// Loader fills a struct from, in increasing precedence: `default` tags, a
// YAML file, an environment file and the process environment.
type Loader struct {
	opts LoaderOptions
}

// NewLoader creates a configuration loader
func NewLoader(opts LoaderOptions) *Loader {
	return &Loader{opts: opts}
}

// Load populates target, which must be a pointer to a struct
func (l *Loader) Load(target any) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config target must be a pointer to a struct, got %T", target)
	}

	if err := walk(v.Elem(), nil, applyDefault); err != nil {
		return fmt.Errorf("failed to set defaults: %w", err)
	}

	if l.opts.ConfigFile != "" {
		if err := loadYAML(l.opts.ConfigFile, target); err != nil {
			return err
		}
	}

	if l.opts.EnvironmentFile != "" {
		if err := loadEnvironmentFile(l.opts.EnvironmentFile); err != nil {
			return err
		}
	}

	if err := walk(v.Elem(), nil, l.applyEnv); err != nil {
		return fmt.Errorf("failed to load from environment: %w", err)
	}

	return nil
}

// fieldFunc is applied to every leaf field; envName is the field's variable name
type fieldFunc func(field reflect.Value, sf reflect.StructField, envName string) error

func walk(v reflect.Value, path []string, fn fieldFunc) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		sf := t.Field(i)
		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct {
			if err := walk(field, append(path, strings.ToUpper(sf.Name)), fn); err != nil {
				return err
			}
			continue
		}

		envName := sf.Tag.Get("env")
		if envName == "" {
			envName = strings.Join(append(path, strings.ToUpper(sf.Name)), "_")
		}
		if err := fn(field, sf, envName); err != nil {
			return err
		}
	}
	return nil
}

func applyDefault(field reflect.Value, sf reflect.StructField, _ string) error {
	def, ok := sf.Tag.Lookup("default")
	if !ok {
		return nil
	}
	if err := setValue(field, def); err != nil {
		return fmt.Errorf("default for %s: %w", sf.Name, err)
	}
	return nil
}

func (l *Loader) applyEnv(field reflect.Value, sf reflect.StructField, envName string) error {
	names := []string{envName}
	if l.opts.EnvPrefix != "" {
		names = []string{strings.ToUpper(l.opts.EnvPrefix) + "_" + envName, envName}
	}

	for _, name := range names {
		raw, ok := os.LookupEnv(name)
		if !ok {
			continue
		}
		if err := setValue(field, raw); err != nil {
			return fmt.Errorf("%s from env %s: %w", sf.Name, name, err)
		}
		return nil
	}
	return nil
}

func setValue(field reflect.Value, raw string) error {
	if field.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q", raw)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := parseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer %q", raw)
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid unsigned integer %q", raw)
		}
		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid float %q", raw)
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", field.Type())
		}
		var items []string
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		field.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off", "":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", raw)
}

// loadYAML merges a YAML file over target. A missing file is not an error.
func loadYAML(filename string, target any) error {
	data, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}
	return nil
}

// loadEnvironmentFile exports KEY=VALUE lines that the process environment
// does not already define. A missing file is not an error.
func loadEnvironmentFile(filename string) error {
	data, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read environment file %s: %w", filename, err)
	}

	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid line %d in environment file %s", i+1, filename)
		}
		key = strings.TrimSpace(key)
		value = unquote(strings.TrimSpace(value))

		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}
	return nil
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// FindConfigFile looks for <name>.yaml in the working directory, ./config,
// /etc/<name> and ~/.<name>, returning the first match or "".
func FindConfigFile(name string) string {
	file := name + ".yaml"
	candidates := []string{
		file,
		filepath.Join("config", file),
		filepath.Join("/etc", name, file),
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, "."+name, file))
	}
	return firstExisting(candidates)
}

// FindEnvironmentFile looks for .env or <name>.env
func FindEnvironmentFile(name string) string {
	return firstExisting([]string{
		".env",
		name + ".env",
		filepath.Join("config", ".env"),
		filepath.Join("config", name+".env"),
	})
}

func firstExisting(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
