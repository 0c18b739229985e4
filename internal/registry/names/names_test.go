package names_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/orels1/api.v3.cogs.red/internal/registry/names"
)

func TestValid(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		name     string
		reserved []string

		want bool
	}{
		"Simple lower-case name":       {name: "admin", want: true},
		"Name with underscore":         {name: "my_cog", want: true},
		"Name with digits after start": {name: "cog2", want: true},
		"Mixed case name":              {name: "MyCog", want: true},
		"Leading underscore":           {name: "_private", want: true},

		"Empty name":                {name: "", want: false},
		"Leading digit":             {name: "1abc", want: false},
		"Leading dot":               {name: ".hidden", want: false},
		"Hyphenated name":           {name: "my-cog", want: false},
		"Name with space":           {name: "my cog", want: false},
		"Name with slash":           {name: "a/b", want: false},
		"Name with non-ASCII rune":  {name: "café", want: false},
		"Python keyword":            {name: "class", want: false},
		"Python keyword lambda":     {name: "lambda", want: false},
		"Capitalized keyword None":  {name: "None", want: false},
		"Keyword prefix is allowed": {name: "classy", want: true},

		"Custom denylist rejects its words": {name: "admin", reserved: []string{"admin"}, want: false},
		"Custom denylist replaces default":  {name: "class", reserved: []string{"admin"}, want: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			v := names.New(tc.reserved)
			assert.Equal(t, tc.want, v.Valid(tc.name), "Valid(%q) returned unexpected result", tc.name)
		})
	}
}
