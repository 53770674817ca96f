package tablestorage

import (
	"fmt"
	"strings"

	"rex/api/internal/store"
)

// quote renders value as an OData string literal.
func quote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

func partitionFilter(partition store.ID) string {
	return "PartitionKey eq " + quote(key(partition))
}

// ideaFilter narrows an idea query on the server. Tags are stored
// comma-joined, so the tag clause is a substring match and the result must be
// re-checked with store.IdeaFilter before it is returned.
func ideaFilter(collection store.ID, f store.IdeaFilter) string {
	clauses := []string{partitionFilter(collection)}
	if f.Completed != nil {
		clauses = append(clauses, fmt.Sprintf("Completed eq %t", *f.Completed))
	}
	if f.Tag != nil {
		clauses = append(clauses, fmt.Sprintf("contains(Tags, %s)", quote(*f.Tag)))
	}
	return strings.Join(clauses, " and ")
}

func key(id store.ID) string {
	return id.String()
}
