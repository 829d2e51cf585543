package introspection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseValueList(t *testing.T) {
	cases := []struct {
		name, kind, columnType string
		want                   []string
	}{
		{"simple", "enum", "enum('a','b','c')", []string{"a", "b", "c"}},
		{"escapes", "enum", "ENUM('in\\'progress','it''s','back\\\\slash','a,b')", []string{"in'progress", "it's", "back\\slash", "a,b"}},
		{"empty string", "enum", "ENUM('')", []string{""}},
		{"whitespace", "enum", "ENUM( 'a' , 'b' )", []string{"a", "b"}},
		{"set", "set", "set('red','green','blue')", []string{"red", "green", "blue"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			values, err := parseValueList(tc.kind, tc.columnType)
			assert.NoError(t, err)
			assert.Equal(t, tc.want, values)
		})
	}
}

func TestParseValueListErrors(t *testing.T) {
	for _, columnType := range []string{"varchar(10)", "enum()", "enum(a)", "enum('a' 'b')", "enum('a)"} {
		_, err := parseValueList("enum", columnType)
		assert.Error(t, err, columnType)
	}
}
