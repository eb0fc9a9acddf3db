package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfile_ResolveInherited(t *testing.T) {
	limit := time.Second
	tests := []struct {
		name     string
		profiles map[string]Profile
		id       string
		want     Profile
		wantErr  string
	}{
		{
			name: "single level inheritance",
			profiles: map[string]Profile{
				"base": {
					ID:        "base",
					Include:   []string{"mod/A"},
					Tags:      []string{"smoke"},
					Overrides: []Override{{ID: "mod/A/x", Disabled: "broken"}},
				},
				"child": {
					ID:        "child",
					Inherits:  []string{"base"},
					Include:   []string{"mod/B"},
					Overrides: []Override{{ID: "mod/A/x", TimeLimit: &limit}},
				},
			},
			id: "child",
			want: Profile{
				ID:        "child",
				Inherits:  []string{"base"},
				Include:   []string{"mod/B", "mod/A"},
				Tags:      []string{"smoke"},
				Overrides: []Override{{ID: "mod/A/x", TimeLimit: &limit}},
			},
		},
		{
			name: "multi-level inheritance",
			profiles: map[string]Profile{
				"root":   {ID: "root", Tags: []string{"a"}, ExcludeTags: []string{"slow"}},
				"middle": {ID: "middle", Inherits: []string{"root"}, Tags: []string{"b"}},
				"leaf":   {ID: "leaf", Inherits: []string{"middle"}, Tags: []string{"a", "c"}},
			},
			id: "leaf",
			want: Profile{
				ID:          "leaf",
				Inherits:    []string{"middle"},
				Tags:        []string{"a", "c", "b"},
				ExcludeTags: []string{"slow"},
			},
		},
		{
			name: "circular inheritance",
			profiles: map[string]Profile{
				"a": {ID: "a", Inherits: []string{"b"}},
				"b": {ID: "b", Inherits: []string{"a"}},
			},
			id:      "a",
			wantErr: "circular inheritance",
		},
		{
			name: "missing parent",
			profiles: map[string]Profile{
				"a": {ID: "a", Inherits: []string{"nope"}},
			},
			id:      "a",
			wantErr: "non-existent profile",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.profiles[tt.id]
			err := p.ResolveInherited(tt.profiles)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p)
		})
	}
}
