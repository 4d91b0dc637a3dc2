package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldBlock(t *testing.T) {
	set := map[string]bool{"images": true, "fonts": true, "media": true}

	cases := []struct {
		resType string
		want    bool
	}{
		{"Image", true},
		{"Font", true},
		{"Media", true},
		{"Stylesheet", false},
		{"Document", false},
		{"Script", false},
		{"XHR", false},
		{"Fetch", false},
		{"Other", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, shouldBlock(set, tc.resType), tc.resType)
	}
}

func TestShouldBlock_NeverBlocksDocuments(t *testing.T) {
	set := map[string]bool{"document": true, "script": true, "stylesheets": true}
	assert.False(t, shouldBlock(set, "Document"))
	assert.False(t, shouldBlock(set, "Script"))
	assert.True(t, shouldBlock(set, "Stylesheet"))
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.defaults()
	assert.NotNil(t, c.Logger)
}
