package jsonx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObject(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", `{"amount":100,"days":2}`, `{"amount":100,"days":2}`},
		{"fenced json", "```json\n{\"amount\":100}\n```", `{"amount":100}`},
		{"bare fence", "```\n{\"days\":3}\n```", `{"days":3}`},
		{"with commentary", `Here are the arguments: {"amount": 5} hope that helps`, `{"amount": 5}`},
		{"whitespace", "  \n{\"a\":1}\n ", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Object(tt.input)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestObjectRejects(t *testing.T) {
	for _, input := range []string{"", "no json here", "[1,2,3]", "{broken", "} backwards {"} {
		_, err := Object(input)
		assert.Error(t, err, "input %q", input)
	}
}
