package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// maxSuffix bounds the search for a free name.
const maxSuffix = 999999

// nameKey is the form names are compared in. Two names that differ only in
// Unicode composition collide.
func nameKey(name string) string {
	return norm.NFC.String(name)
}

// splitSuffix splits "Cube.004" into ("Cube", 4). A name without a numeric
// suffix returns (name, 0).
func splitSuffix(name string) (string, int) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 || i == len(name)-1 {
		return name, 0
	}
	digits := name[i+1:]
	for _, r := range digits {
		if r < '0' || r > '9' {
			return name, 0
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return name, 0
	}
	return name[:i], n
}

// nameTaken reports whether a live entity other than exclude holds name.
func nameTaken(ctx context.Context, q querier, collection, name, exclude string) (bool, error) {
	var holder string
	err := q.QueryRowContext(ctx, `
		SELECT uuid FROM entities WHERE collection = ? AND name_key = ?
	`, collection, nameKey(name)).Scan(&holder)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check name: %w", err)
	}
	return holder != exclude, nil
}

// freeName returns name if it is free, otherwise the first free
// "base.NNN" after it.
func freeName(ctx context.Context, q querier, collection, name string) (string, error) {
	taken, err := nameTaken(ctx, q, collection, name, "")
	if err != nil || !taken {
		return name, err
	}
	base, n := splitSuffix(name)
	for i := n + 1; i <= maxSuffix; i++ {
		candidate := fmt.Sprintf("%s.%03d", base, i)
		taken, err := nameTaken(ctx, q, collection, candidate, "")
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: no free name for %q in %s", ErrNameConflict, name, collection)
}
