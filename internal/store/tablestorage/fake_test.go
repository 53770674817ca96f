package tablestorage

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-json"
)

// fakeTable emulates the table service closely enough for the backend:
// entities ordered by (PartitionKey, RowKey), a small page size, and the
// three filter clause shapes the backend emits.
type fakeTable struct {
	mu       sync.Mutex
	pageSize int
	rows     map[[2]string][]byte

	queries  []string
	pages    int
	failWith error
}

func newFakeTable(pageSize int) *fakeTable {
	return &fakeTable{pageSize: pageSize, rows: map[[2]string][]byte{}}
}

func newFakeTables(pageSize int) Tables {
	return Tables{
		Ideas:           newFakeTable(pageSize),
		Collections:     newFakeTable(pageSize),
		RoleAssignments: newFakeTable(pageSize),
		Users:           newFakeTable(pageSize),
	}
}

func (f *fakeTable) Get(_ context.Context, partitionKey, rowKey string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	raw, ok := f.rows[[2]string{partitionKey, rowKey}]
	if !ok {
		return nil, ErrEntityNotFound
	}
	return raw, nil
}

func (f *fakeTable) Upsert(_ context.Context, entity []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	var keys struct {
		PartitionKey string
		RowKey       string
	}
	if err := json.Unmarshal(entity, &keys); err != nil {
		return err
	}
	f.rows[[2]string{keys.PartitionKey, keys.RowKey}] = append([]byte(nil), entity...)
	return nil
}

func (f *fakeTable) Delete(_ context.Context, partitionKey, rowKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	k := [2]string{partitionKey, rowKey}
	if _, ok := f.rows[k]; !ok {
		return ErrEntityNotFound
	}
	delete(f.rows, k)
	return nil
}

func (f *fakeTable) Query(_ context.Context, filter string, from *Continuation) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return Page{}, f.failWith
	}
	f.queries = append(f.queries, filter)
	f.pages++

	clauses, err := parseFilter(filter)
	if err != nil {
		return Page{}, err
	}

	keys := make([][2]string, 0, len(f.rows))
	for k := range f.rows {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})

	var matched [][2]string
	for _, k := range keys {
		if from != nil && (k[0] < from.PartitionKey || (k[0] == from.PartitionKey && k[1] < from.RowKey)) {
			continue
		}
		var fields map[string]any
		if err := json.Unmarshal(f.rows[k], &fields); err != nil {
			return Page{}, err
		}
		if clauses.match(fields) {
			matched = append(matched, k)
		}
	}

	var page Page
	for i, k := range matched {
		if i == f.pageSize {
			page.Next = &Continuation{PartitionKey: k[0], RowKey: k[1]}
			break
		}
		page.Entities = append(page.Entities, f.rows[k])
	}
	return page, nil
}

type clause struct {
	field string
	op    string
	value any
}

type clauses []clause

func (cs clauses) match(fields map[string]any) bool {
	for _, c := range cs {
		switch c.op {
		case "eq":
			if fields[c.field] != c.value {
				return false
			}
		case "contains":
			s, _ := fields[c.field].(string)
			if !strings.Contains(s, c.value.(string)) {
				return false
			}
		}
	}
	return true
}

var (
	eqString = regexp.MustCompile(`^(\w+) eq '((?:[^']|'')*)'`)
	eqBool   = regexp.MustCompile(`^(\w+) eq (true|false)`)
	contains = regexp.MustCompile(`^contains\((\w+), '((?:[^']|'')*)'\)`)
)

func parseFilter(filter string) (clauses, error) {
	var out clauses
	rest := filter
	for rest != "" {
		switch {
		case eqString.MatchString(rest):
			m := eqString.FindStringSubmatch(rest)
			out = append(out, clause{field: m[1], op: "eq", value: strings.ReplaceAll(m[2], "''", "'")})
			rest = rest[len(m[0]):]
		case eqBool.MatchString(rest):
			m := eqBool.FindStringSubmatch(rest)
			out = append(out, clause{field: m[1], op: "eq", value: m[2] == "true"})
			rest = rest[len(m[0]):]
		case contains.MatchString(rest):
			m := contains.FindStringSubmatch(rest)
			out = append(out, clause{field: m[1], op: "contains", value: strings.ReplaceAll(m[2], "''", "'")})
			rest = rest[len(m[0]):]
		default:
			return nil, fmt.Errorf("unsupported filter at %q", rest)
		}
		rest = strings.TrimPrefix(rest, " and ")
	}
	return out, nil
}
