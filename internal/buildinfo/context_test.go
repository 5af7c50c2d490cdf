package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextGetters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		ctx     *Context
		version string
		commit  string
		date    string
	}{
		{"nil context", nil, UnknownValue, UnknownValue, UnknownValue},
		{"empty values", NewContext("", "", ""), UnknownValue, UnknownValue, UnknownValue},
		{"populated", NewContext("1.2.0", "abc1234", "2026-10-01T12:00:00Z"), "1.2.0", "abc1234", "2026-10-01T12:00:00Z"},
		{"pre-release", NewContext("1.2.0-beta.1", "", ""), "1.2.0-beta.1", UnknownValue, UnknownValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.version, tt.ctx.GetVersion())
			assert.Equal(t, tt.commit, tt.ctx.GetCommit())
			assert.Equal(t, tt.date, tt.ctx.GetBuildDate())
		})
	}
}

func TestContextStrings(t *testing.T) {
	t.Parallel()

	ctx := NewContext("1.2.0", "abc1234", "2026-10-01")
	assert.Equal(t, "1.2.0 (commit abc1234, built 2026-10-01)", ctx.String())
	assert.Equal(t, "radiotracker/1.2.0", ctx.UserAgent())
	assert.Equal(t, "radiotracker@1.2.0", ctx.Release())

	var nilCtx *Context
	assert.Equal(t, "radiotracker/unknown", nilCtx.UserAgent())
}
