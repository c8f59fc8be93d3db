package locale

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNegotiate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		explicit string
		accept   string
		want     Lang
	}{
		{"default", "", "", English},
		{"explicit zh", "zh", "", Chinese},
		{"explicit region", "zh-CN", "en-US", Chinese},
		{"explicit en beats header", "en", "zh-CN,zh;q=0.9", English},
		{"header", "", "zh-CN,zh;q=0.9,en;q=0.8", Chinese},
		{"header english", "", "en-GB,en;q=0.9", English},
		{"garbage explicit falls back to header", "!!", "zh", Chinese},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Negotiate(tc.explicit, tc.accept))
		})
	}
}

func TestLabelsFallback(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Bookmarks", Lang("fr").Labels().SheetName)
	assert.Equal(t, "书签", Chinese.Labels().SheetName)
}
