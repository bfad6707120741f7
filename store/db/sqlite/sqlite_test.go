package sqlite

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDSNWithPragmas(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
		want string
	}{
		{
			name: "bare file path",
			dsn:  "file:lotus.db",
			want: "file:lotus.db?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)",
		},
		{
			name: "existing query parameters",
			dsn:  "lotus_dev.db?_loc=auto",
			want: "lotus_dev.db?_loc=auto&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)",
		},
		{
			name: "in-memory",
			dsn:  ":memory:",
			want: ":memory:?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dsnWithPragmas(tt.dsn))
		})
	}
}
