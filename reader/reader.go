// Package reader defines the contract shared by the exchange sources and
// the helpers they use to normalize exchange payloads.
package reader

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"orderflow/models"
)

// ErrParse marks an exchange message that could not be normalized. The
// message is logged and dropped; the source keeps running.
var ErrParse = errors.New("source parse error")

// Source is a running connection to one exchange feed.
type Source interface {
	Name() string
	Start(ctx context.Context) error
	Stop()
}

// Sink accepts normalized snapshots. SendRaw blocks while the inbound queue
// is full.
type Sink interface {
	SendRaw(ctx context.Context, snap models.Snapshot) error
}

// ParseLevel converts a textual price/amount pair.
func ParseLevel(source models.SourceID, price, amount string) (models.Level, error) {
	p, err := strconv.ParseFloat(price, 64)
	if err != nil {
		return models.Level{}, fmt.Errorf("%w: price %q: %v", ErrParse, price, err)
	}
	q, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return models.Level{}, fmt.Errorf("%w: amount %q: %v", ErrParse, amount, err)
	}
	if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
		return models.Level{}, fmt.Errorf("%w: price %q out of range", ErrParse, price)
	}
	if math.IsNaN(q) || math.IsInf(q, 0) || q < 0 {
		return models.Level{}, fmt.Errorf("%w: amount %q out of range", ErrParse, amount)
	}
	return models.Level{Source: source, Price: p, Quantity: q}, nil
}

// ParseLevels converts [price, amount] rows, keeping at most depth levels.
func ParseLevels(source models.SourceID, rows [][]string, depth int) ([]models.Level, error) {
	if depth > 0 && len(rows) > depth {
		rows = rows[:depth]
	}
	levels := make([]models.Level, 0, len(rows))
	for i, row := range rows {
		if len(row) < 2 {
			return nil, fmt.Errorf("%w: level %d has %d fields", ErrParse, i, len(row))
		}
		lvl, err := ParseLevel(source, row[0], row[1])
		if err != nil {
			return nil, err
		}
		levels = append(levels, lvl)
	}
	return levels, nil
}
