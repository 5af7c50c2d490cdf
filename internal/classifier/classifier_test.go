package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		artist, title  string
		station        string
		wantShow       bool
		wantConfidence float64
	}{
		{"station named show", "The Rock", "The Rock Weekends", "The Rock", true, 1.0},
		{"regular song", "Ed Sheeran", "Shape of You", "The Rock", false, 0},
		{"station artist plain title", "ZM", "Your Hit Music", "ZM", true, 0.9},
		{"station artist breakfast", "ZM", "Fletch, Vaughan & Hayley Breakfast", "ZM", true, 1.0},
		{"artist contained in station", "Hauraki", "Saturday Sessions", "Radio Hauraki", true, 1.0},
		{"single letter artist not contained", "Z", "Top 40 countdown", "ZM", false, 0},
		{"alias", "Rock FM", "Top 20", "The Rock", true, 1.0},
		{"short station name", "Mai", "Friday Night Mix", "Mai FM", true, 1.0},
		{"show title without station artist", "Some DJ", "Morning Show", "The Rock", false, 0},
		{"diacritics and case", "THE ROCK", "late night", "the rock", true, 1.0},
		{"empty artist", "", "News", "The Rock", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Classify(tt.artist, tt.title, tt.station)
			assert.Equal(t, tt.wantShow, got.IsShow)
			assert.InDelta(t, tt.wantConfidence, got.Confidence, 1e-9)
			if got.IsShow {
				assert.NotEmpty(t, got.Reason)
			}
		})
	}
}

func TestClassifierExtraAliases(t *testing.T) {
	t.Parallel()

	c := New(map[string][]string{
		"Coast":    {"Coast Classics"},
		"The Rock": {"Rock 24/7"},
	})

	got := c.Classify("Coast Classics", "Drivetime", "Coast")
	assert.True(t, got.IsShow)
	assert.InDelta(t, 1.0, got.Confidence, 1e-9)

	got = c.Classify("Rock 24/7", "Something", "The Rock")
	assert.True(t, got.IsShow)
	assert.InDelta(t, 0.9, got.Confidence, 1e-9)

	// built-ins survive merging
	assert.True(t, c.Classify("Rock FM", "x", "The Rock").IsShow)

	// the package default does not see configured aliases
	assert.False(t, Classify("Coast Classics", "Drivetime", "Coast").IsShow)
}
