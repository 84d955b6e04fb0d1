package engine

import (
	"sort"
	"strings"

	"github.com/sarveshkapre/embeddb/pkg/errors"
	"github.com/sarveshkapre/embeddb/pkg/memtable"
	"github.com/sarveshkapre/embeddb/pkg/types"
	"github.com/sarveshkapre/embeddb/pkg/wal"
)

// TableInfo is the describe_table output.
type TableInfo struct {
	Name          string
	Schema        types.Schema
	EmbeddingSpec *types.EmbeddingSpec
}

// CreateTable registers a new table. The name must be unique and
// usable as a directory component; the schema must declare at least
// one column; an embedding spec may only reference declared columns.
func (e *Engine) CreateTable(name string, schema types.Schema, spec *types.EmbeddingSpec) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkOpen(); err != nil {
		return err
	}

	if err := validateTableName(name); err != nil {
		return err
	}
	if _, exists := e.tables[name]; exists {
		return errors.AlreadyExists("table %q", name)
	}
	if err := validateSchema(schema); err != nil {
		return err
	}
	if spec != nil {
		if err := validateEmbeddingSpec(schema, *spec); err != nil {
			return err
		}
	}

	if err := e.maybeAutoCheckpoint(); err != nil {
		return err
	}
	if err := e.wal.Append(wal.Record{
		Kind:          wal.KindCreateTable,
		Table:         name,
		Schema:        schema,
		EmbeddingSpec: spec,
	}); err != nil {
		return err
	}

	var specCopy *types.EmbeddingSpec
	if spec != nil {
		s := *spec
		specCopy = &s
	}
	e.tables[name] = &tableState{
		name:       name,
		schema:     schema,
		spec:       specCopy,
		mem:        memtable.New(),
		embedding:  make(map[int64]*types.EmbeddingMeta),
		nextSSTNum: 1,
	}
	e.log.Info("table created", "table", name, "columns", len(schema.Columns), "embedded", spec != nil)
	return nil
}

// ListTables returns all table names sorted.
func (e *Engine) ListTables() ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(e.tables))
	for name := range e.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// DescribeTable returns a table's schema and embedding spec.
func (e *Engine) DescribeTable(name string) (TableInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkOpen(); err != nil {
		return TableInfo{}, err
	}

	t, err := e.getTable(name)
	if err != nil {
		return TableInfo{}, err
	}
	info := TableInfo{Name: t.name, Schema: t.schema}
	if t.spec != nil {
		s := *t.spec
		info.EmbeddingSpec = &s
	}
	return info, nil
}

func validateTableName(name string) error {
	if name == "" {
		return errors.InvalidArgument("table name must not be empty")
	}
	if strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return errors.InvalidArgument("table name %q is not a valid directory component", name)
	}
	return nil
}

func validateSchema(schema types.Schema) error {
	if len(schema.Columns) == 0 {
		return errors.SchemaViolation("schema must declare at least one column")
	}
	seen := make(map[string]bool, len(schema.Columns))
	for _, c := range schema.Columns {
		if c.Name == "" {
			return errors.SchemaViolation("column name must not be empty")
		}
		if seen[c.Name] {
			return errors.SchemaViolation("duplicate column %q", c.Name)
		}
		seen[c.Name] = true
		if c.Type > types.ColumnBytes {
			return errors.SchemaViolation("column %q has unknown type %d", c.Name, c.Type)
		}
	}
	return nil
}

func validateEmbeddingSpec(schema types.Schema, spec types.EmbeddingSpec) error {
	if len(spec.SourceColumns) == 0 {
		return errors.InvalidArgument("embedding spec must name at least one source column")
	}
	for _, col := range spec.SourceColumns {
		if _, ok := schema.Find(col); !ok {
			return errors.InvalidArgument("embedding source column %q not in schema", col)
		}
	}
	if spec.DefaultMetric != types.MetricCosine && spec.DefaultMetric != types.MetricL2 {
		return errors.InvalidArgument("unknown metric %d in embedding spec", spec.DefaultMetric)
	}
	return nil
}

// validatePayload checks payload against schema and returns a
// normalized deep copy: integer literals narrow to Float columns,
// everything else must match its declared type exactly. Columns not
// declared by the schema are rejected.
func validatePayload(schema types.Schema, payload types.Payload) (types.Payload, error) {
	for name := range payload {
		if _, ok := schema.Find(name); !ok {
			return nil, errors.SchemaViolation("column %q not in schema", name)
		}
	}

	out := make(types.Payload, len(schema.Columns))
	for _, col := range schema.Columns {
		v, present := payload[col.Name]
		if !present || v.IsNull() {
			if !col.Nullable {
				return nil, errors.SchemaViolation("required column %q missing", col.Name)
			}
			if present {
				out[col.Name] = types.NullValue()
			}
			continue
		}

		switch col.Type {
		case types.ColumnInt:
			if v.Kind != types.KindInt64 {
				return nil, errors.SchemaViolation("column %q wants Int, got %s", col.Name, v.Kind.String())
			}
		case types.ColumnFloat:
			switch v.Kind {
			case types.KindFloat64:
			case types.KindInt64:
				v = types.FloatValue(float64(v.Int))
			default:
				return nil, errors.SchemaViolation("column %q wants Float, got %s", col.Name, v.Kind.String())
			}
		case types.ColumnBool:
			if v.Kind != types.KindBool {
				return nil, errors.SchemaViolation("column %q wants Bool, got %s", col.Name, v.Kind.String())
			}
		case types.ColumnString:
			if v.Kind != types.KindString {
				return nil, errors.SchemaViolation("column %q wants String, got %s", col.Name, v.Kind.String())
			}
		case types.ColumnBytes:
			if v.Kind != types.KindBytes {
				return nil, errors.SchemaViolation("column %q wants Bytes, got %s", col.Name, v.Kind.String())
			}
		}
		out[col.Name] = v.Clone()
	}
	return out, nil
}
