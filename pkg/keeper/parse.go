package keeper

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrEmpty rejects empty content. A writer truncating a file before
// rewriting it produces a short empty window that must not be published.
var ErrEmpty = errors.New("file is empty")

func JSON[T any]() LoadFunc[T] {
	return func(data []byte) (*T, error) {
		if len(bytes.TrimSpace(data)) == 0 {
			return nil, ErrEmpty
		}
		v := new(T)
		if err := json.Unmarshal(data, v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

func YAML[T any]() LoadFunc[T] {
	return func(data []byte) (*T, error) {
		if len(bytes.TrimSpace(data)) == 0 {
			return nil, ErrEmpty
		}
		v := new(T)
		if err := yaml.Unmarshal(data, v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// LineSet is a set of non-empty lines, e.g. a whitelist.
type LineSet map[string]struct{}

func (s LineSet) Contains(line string) bool {
	_, ok := s[line]
	return ok
}

// Lines parses one entry per line, ignoring blank lines and lines starting
// with '#'. A file holding only comments is a valid empty set.
func Lines(data []byte) (*LineSet, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmpty
	}

	set := make(LineSet)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		set[line] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return &set, nil
}
