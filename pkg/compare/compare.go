// Package compare decides whether two vaults differ and aligns legacy
// command logs.
package compare

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/forest6511/vaultsync/pkg/vault"
)

// ErrNoCommonBase indicates two command logs share no padding checkpoint.
var ErrNoCommonBase = errors.New("compare: histories have no common base")

// VaultsDiffer reports whether a and b hold different content.
// Vault IDs are ignored. Group and entry order does not matter.
func VaultsDiffer(a, b *vault.Vault) bool {
	x, errA := facadeValue(a)
	y, errB := facadeValue(b)
	if errA != nil || errB != nil {
		return true
	}
	return Different(x, y)
}

// facadeValue projects v to a generic JSON value without its ID.
func facadeValue(v *vault.Vault) (any, error) {
	raw, err := json.Marshal(vault.Facade(v))
	if err != nil {
		return nil, err
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	delete(generic, "id")
	return generic, nil
}

// Different compares generic JSON values deeply.
// Arrays are equal when every element of each has an equal element in the other.
func Different(x, y any) bool {
	switch xv := x.(type) {
	case []any:
		yv, ok := y.([]any)
		if !ok {
			return true
		}
		return !containsAll(xv, yv) || !containsAll(yv, xv)
	case map[string]any:
		yv, ok := y.(map[string]any)
		if !ok || len(xv) != len(yv) {
			return true
		}
		for k, xe := range xv {
			ye, ok := yv[k]
			if !ok || Different(xe, ye) {
				return true
			}
		}
		return false
	case nil:
		return y != nil
	default:
		return x != y
	}
}

func containsAll(haystack, needles []any) bool {
	for _, n := range needles {
		found := false
		for _, h := range haystack {
			if !Different(n, h) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Differences is the result of aligning two command logs.
type Differences struct {
	IndexA    int
	IndexB    int
	Common    []string
	Original  []string
	Secondary []string
}

// HistoryDifferences aligns two legacy command logs on their newest shared
// "pad <id>" checkpoint and splits them into a common prefix and the
// commands unique to each side.
func HistoryDifferences(a, b []string) (*Differences, error) {
	for i := len(a) - 1; i >= 0; i-- {
		id, ok := paddingID(a[i])
		if !ok {
			continue
		}
		for j := len(b) - 1; j >= 0; j-- {
			if other, ok := paddingID(b[j]); ok && other == id {
				return &Differences{
					IndexA:    i,
					IndexB:    j,
					Common:    append([]string{}, a[:i+1]...),
					Original:  append([]string{}, a[i+1:]...),
					Secondary: append([]string{}, b[j+1:]...),
				}, nil
			}
		}
	}
	return nil, ErrNoCommonBase
}

func paddingID(command string) (string, bool) {
	if !strings.HasPrefix(command, "pad") {
		return "", false
	}
	fields := strings.Fields(command)
	if len(fields) < 2 || fields[0] != "pad" {
		return "", false
	}
	return fields[1], true
}
