package corrector

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// defaultFile is written when the corrections file does not exist yet, so
// the user has a template to edit.
const defaultFile = `{
  "corrections": {
    "pie torche": "PyTorch",
    "get hub": "GitHub"
  }
}
`

// Load reads the corrections file and builds a dictionary from it. Rule
// order follows the order of keys in the file.
//
// The file format is a single JSON object:
//
//	{"corrections": {"pattern": "replacement", ...}}
func Load(path string) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("corrector: open %q: %w", path, err)
	}
	defer f.Close()

	rules, err := parseRules(f)
	if err != nil {
		return nil, fmt.Errorf("corrector: parse %q: %w", path, err)
	}
	return NewDictionary(rules), nil
}

// EnsureFile creates the corrections file with template content when it does
// not exist. Returns true when the file was created.
func EnsureFile(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("corrector: stat %q: %w", path, err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("corrector: create dir for %q: %w", path, err)
		}
	}
	if err := os.WriteFile(path, []byte(defaultFile), 0o644); err != nil {
		return false, fmt.Errorf("corrector: write default %q: %w", path, err)
	}
	return true, nil
}

// parseRules decodes the corrections object token by token. encoding/json
// map decoding would lose key order, and order is what breaks ties between
// equal-length patterns.
func parseRules(r io.Reader) ([]Rule, error) {
	dec := json.NewDecoder(r)

	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	var rules []Rule
	seen := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v, want object key", tok)
		}

		if key != "corrections" {
			// Skip unknown top-level fields.
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, err
			}
			continue
		}

		if err := expectDelim(dec, '{'); err != nil {
			return nil, err
		}
		for dec.More() {
			patTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			pattern, ok := patTok.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected token %v, want pattern key", patTok)
			}
			var replacement string
			if err := dec.Decode(&replacement); err != nil {
				return nil, fmt.Errorf("replacement for %q: %w", pattern, err)
			}
			// A repeated key keeps its original position but takes the
			// later replacement, like map semantics would.
			if i, dup := seen[pattern]; dup {
				rules[i].Replacement = replacement
				continue
			}
			seen[pattern] = len(rules)
			rules = append(rules, Rule{Pattern: pattern, Replacement: replacement})
		}
		if _, err := dec.Token(); err != nil { // closing '}'
			return nil, err
		}
	}

	return rules, nil
}

func expectDelim(dec *json.Decoder, want rune) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	delim, ok := tok.(json.Delim)
	if !ok || rune(delim) != want {
		return fmt.Errorf("unexpected token %v, want %q", tok, want)
	}
	return nil
}
