package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBaseID(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"60123456789@s.whatsapp.net", "60123456789"},
		{"60123456789:12@s.whatsapp.net", "60123456789"},
		{"60123456789:3", "60123456789"},
		{"60123456789", "60123456789"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, BaseID(tt.raw), "BaseID(%q)", tt.raw)
	}
}

func TestIdentityMatches(t *testing.T) {
	self := Identity{
		JID: "60123456789:12@s.whatsapp.net",
		LID: "987654321098765@lid",
	}

	t.Run("matches full identifier", func(t *testing.T) {
		assert.True(t, self.Matches("60123456789:12@s.whatsapp.net"))
	})

	t.Run("matches alias identifier", func(t *testing.T) {
		assert.True(t, self.Matches("987654321098765@lid"))
	})

	t.Run("matches base segment", func(t *testing.T) {
		assert.True(t, self.Matches("60123456789@s.whatsapp.net"))
		assert.True(t, self.Matches("60123456789:99@s.whatsapp.net"))
		assert.True(t, self.Matches("60123456789"))
	})

	t.Run("matches alias base segment", func(t *testing.T) {
		assert.True(t, self.Matches("987654321098765:2@lid"))
	})

	t.Run("rejects other participants", func(t *testing.T) {
		assert.False(t, self.Matches("60198765432@s.whatsapp.net"))
		assert.False(t, self.Matches("111222333444555@lid"))
	})

	t.Run("rejects empty input", func(t *testing.T) {
		assert.False(t, self.Matches(""))
	})

	t.Run("unbound identity matches nothing", func(t *testing.T) {
		assert.False(t, Identity{}.Matches("60123456789"))
	})
}
