package cfg

import (
	"errors"
	"flag"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/xerrors"
)

// LoadFile applies a TOML file whose top-level keys are flag names, e.g.
//
//	probe-port = 8081
//	http-checks = ["http://api:8080/ready"]
//
// Flags already set (on the CLI or from the environment) keep their value,
// so call it after fs.Parse and FillFromEnv. The "config" key is ignored.
func LoadFile(path string, fs *flag.FlagSet) error {
	var raw map[string]any
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return xerrors.Wrapf(err, "decode config file %s", path)
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, name := range keys {
		if name == "config" {
			continue
		}
		if fs.Lookup(name) == nil {
			errs = append(errs, fmt.Errorf("unknown key %q", name))
			continue
		}
		if set[name] {
			continue
		}
		v, err := flagValue(raw[name])
		if err != nil {
			errs = append(errs, fmt.Errorf("key %q: %w", name, err))
			continue
		}
		if err := fs.Set(name, v); err != nil {
			errs = append(errs, fmt.Errorf("key %q: %w", name, err))
		}
	}
	if len(errs) > 0 {
		return xerrors.Wrapf(errors.Join(errs...), "config file %s", path)
	}
	return nil
}

// flagValue renders a decoded TOML value in the form flag.Value.Set expects.
func flagValue(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case time.Duration:
		return t.String(), nil
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			s, err := flagValue(e)
			if err != nil {
				return "", err
			}
			if strings.Contains(s, ",") {
				return "", fmt.Errorf("list entry %q contains a comma", s)
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}
