package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableNames(t *testing.T) {
	tests := []struct {
		name     string
		model    interface{ TableName() string }
		expected string
	}{
		{"SchemaMeta", &SchemaMeta{}, "schema_meta"},
		{"SaveAudit", &SaveAudit{}, "save_audits"},
		{"MarkerRecord", &MarkerRecord{}, "markers"},
		{"SessionRecord", &SessionRecord{}, "sessions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.model.TableName())
		})
	}
}

func TestDatabaseModelsCoverTables(t *testing.T) {
	seen := make(map[string]bool)
	for _, m := range DatabaseModels {
		named, ok := m.(interface{ TableName() string })
		if assert.True(t, ok, "model %T must define TableName", m) {
			assert.False(t, seen[named.TableName()], "duplicate table %s", named.TableName())
			seen[named.TableName()] = true
		}
	}
	assert.Len(t, seen, 4)
}
