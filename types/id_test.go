package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestID_StringAndParse(t *testing.T) {
	tests := []struct {
		name string
		id   ID
		want string
	}{
		{name: "module only", id: NewID("mod"), want: "mod"},
		{name: "nested", id: NewID("mod", "Suite", "test"), want: "mod/Suite/test"},
		{
			name: "disambiguated",
			id:   ID{Module: "mod", Names: []string{"test"}, Source: &SourceLocation{File: "a.go", Line: 12}},
			want: "mod/test@a.go:12",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.id.String())
			parsed, err := ParseID(tt.want)
			require.NoError(t, err)
			assert.True(t, parsed.Equal(tt.id))
		})
	}
}

func TestParseID_Errors(t *testing.T) {
	for _, s := range []string{"", "mod//x", "mod/x@a.go", "mod/x@a.go:z"} {
		_, err := ParseID(s)
		assert.Error(t, err, s)
	}
}

func TestID_Hierarchy(t *testing.T) {
	suite := NewID("mod", "Suite")
	test := suite.Child("test")

	assert.Equal(t, "mod/Suite/test", test.String())
	assert.True(t, suite.IsAncestorOf(test))
	assert.False(t, test.IsAncestorOf(suite))
	assert.False(t, suite.IsAncestorOf(suite))
	assert.False(t, NewID("other", "Suite").IsAncestorOf(test))

	parent, ok := test.Parent()
	require.True(t, ok)
	assert.True(t, parent.Equal(suite))

	root, ok := suite.Parent()
	require.True(t, ok)
	assert.Equal(t, "mod", root.String())
	_, ok = root.Parent()
	assert.False(t, ok)
}
