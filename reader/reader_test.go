package reader

import (
	"errors"
	"testing"

	"orderflow/models"
)

func TestParseLevels(t *testing.T) {
	rows := make([][]string, 0, 15)
	for i := 0; i < 15; i++ {
		rows = append(rows, []string{"0.0" + string(rune('1'+i%9)), "2.5"})
	}

	levels, err := ParseLevels(models.SourceBitstamp, rows, models.DepthLimit)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(levels) != models.DepthLimit {
		t.Fatalf("expected %d levels, got %d", models.DepthLimit, len(levels))
	}
	if levels[0].Source != models.SourceBitstamp || levels[0].Price != 0.01 || levels[0].Quantity != 2.5 {
		t.Fatalf("unexpected first level %+v", levels[0])
	}
}

func TestParseLevelsRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		rows [][]string
	}{
		{"non numeric price", [][]string{{"abc", "1"}}},
		{"non numeric amount", [][]string{{"1", "x"}}},
		{"short row", [][]string{{"1"}}},
		{"zero price", [][]string{{"0", "1"}}},
		{"negative amount", [][]string{{"1", "-1"}}},
		{"nan price", [][]string{{"NaN", "1"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseLevels(models.SourceBinance, tt.rows, 10); !errors.Is(err, ErrParse) {
				t.Fatalf("expected ErrParse, got %v", err)
			}
		})
	}
}
