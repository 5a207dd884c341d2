package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompare(t *testing.T) {
	t.Run("partitions target against group phones", func(t *testing.T) {
		target := []string{"60111111111", "60122222222", "60133333333"}
		members := []string{"60111111111", "60199999999"}

		res := Compare(target, members)

		assert.Equal(t, []string{"60111111111"}, res.Matched)
		assert.Equal(t, []string{"60122222222", "60133333333"}, res.Unmatched)
		assert.Equal(t, []string{"60199999999"}, res.Extra)
		assert.Equal(t, 33.33, res.MatchRate)
	})

	t.Run("empty target yields zero rate", func(t *testing.T) {
		res := Compare(nil, []string{"60111111111"})
		assert.Empty(t, res.Matched)
		assert.Empty(t, res.Unmatched)
		assert.Equal(t, []string{"60111111111"}, res.Extra)
		assert.Equal(t, 0.0, res.MatchRate)
	})

	t.Run("full match", func(t *testing.T) {
		res := Compare([]string{"60111111111"}, []string{"60111111111"})
		assert.Equal(t, 100.0, res.MatchRate)
		assert.Empty(t, res.Unmatched)
		assert.Empty(t, res.Extra)
	})

	t.Run("normalizes raw identifiers on both sides", func(t *testing.T) {
		target := []string{"+60 11-111 1111"}
		members := []string{"60111111111:7@s.whatsapp.net"}

		res := Compare(target, members)
		assert.Equal(t, []string{"60111111111"}, res.Matched)
		assert.Equal(t, 100.0, res.MatchRate)
	})

	t.Run("discards non-phone identifiers and duplicates", func(t *testing.T) {
		target := []string{"60111111111", "60111111111", "not-a-phone", "123"}
		members := []string{"60111111111", "60111111111@s.whatsapp.net"}

		res := Compare(target, members)
		assert.Equal(t, []string{"60111111111"}, res.Matched)
		assert.Empty(t, res.Unmatched)
		assert.Empty(t, res.Extra)
		assert.Equal(t, 100.0, res.MatchRate)
	})

	t.Run("rate rounds to two decimals", func(t *testing.T) {
		target := []string{"1111111", "2222222", "3333333"}
		members := []string{"1111111", "2222222"}

		res := Compare(target, members)
		assert.Equal(t, 66.67, res.MatchRate)
	})
}
