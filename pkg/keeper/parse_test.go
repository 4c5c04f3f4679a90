package keeper

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSON(t *testing.T) {
	parse := JSON[map[string]int]()

	v, err := parse([]byte(`{"a":1}`))
	require.NoError(t, err)
	require.Equal(t, map[string]int{"a": 1}, *v)

	_, err = parse([]byte(`{"a":1`))
	require.Error(t, err)

	_, err = parse([]byte("  \n"))
	require.ErrorIs(t, err, ErrEmpty)
}

func TestYAML(t *testing.T) {
	type route struct {
		Prefix string `yaml:"prefix"`
		Weight int    `yaml:"weight"`
	}
	parse := YAML[[]route]()

	v, err := parse([]byte("- prefix: /api\n  weight: 3\n- prefix: /web\n  weight: 1\n"))
	require.NoError(t, err)
	require.Equal(t, []route{{Prefix: "/api", Weight: 3}, {Prefix: "/web", Weight: 1}}, *v)

	_, err = parse([]byte("- prefix: [\n"))
	require.Error(t, err)

	_, err = parse(nil)
	require.ErrorIs(t, err, ErrEmpty)
}

func TestLines(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    LineSet
		wantErr error
	}{
		{
			name:    "entries",
			content: "10.0.0.1\n  10.0.0.2  \n\n10.0.0.1\n",
			want:    LineSet{"10.0.0.1": {}, "10.0.0.2": {}},
		},
		{
			name:    "comments only",
			content: "# nobody is allowed\n",
			want:    LineSet{},
		},
		{
			name:    "empty",
			content: "",
			wantErr: ErrEmpty,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Lines([]byte(tt.content))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, *v)
		})
	}

	set := LineSet{"a": {}}
	require.True(t, set.Contains("a"))
	require.False(t, set.Contains("b"))
}
