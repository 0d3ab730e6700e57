package generic

// =============================================================================
// SCHEMA - Header aliases resolved once per dataset
// =============================================================================

// FieldSpec declares a canonical field and the header names accepted for it,
// highest priority first.
type FieldSpec struct {
	Field      string
	Candidates []string
}

// Schema maps canonical fields to the headers actually present in one dataset.
// It is computed once at load time and passed to every consumer, so no code
// path rescans header aliases per record.
type Schema struct {
	Dataset    string              `json:"dataset"`
	Headers    []string            `json:"headers"`
	Fields     map[string]string   `json:"fields"`     // canonical field -> header
	Candidates map[string][]string `json:"candidates"` // canonical field -> accepted names
}

// ResolveSchema resolves every field spec against the dataset's headers. Fields with
// no matching header are simply absent; callers decide which are required.
func ResolveSchema(dataset string, headers []string, specs []FieldSpec) Schema {
	s := Schema{
		Dataset:    dataset,
		Headers:    append([]string(nil), headers...),
		Fields:     make(map[string]string, len(specs)),
		Candidates: make(map[string][]string, len(specs)),
	}
	for _, spec := range specs {
		s.Candidates[spec.Field] = spec.Candidates
		if h, ok := ResolveHeader(spec.Candidates, headers); ok {
			s.Fields[spec.Field] = h
		}
	}
	return s
}

// Header returns the dataset header resolved for field.
func (s Schema) Header(field string) (string, bool) {
	h, ok := s.Fields[field]
	return h, ok
}

// Has reports whether field resolved to a header.
func (s Schema) Has(field string) bool {
	_, ok := s.Fields[field]
	return ok
}

// Value reads field from row through the resolved header. Unresolved fields
// read as nil.
func (s Schema) Value(row Row, field string) any {
	h, ok := s.Fields[field]
	if !ok {
		return nil
	}
	return row[h]
}

// Text reads field from row as trimmed text.
func (s Schema) Text(row Row, field string) string {
	return Text(s.Value(row, field))
}

// Require returns a MissingHeaderError for the first field that did not
// resolve.
func (s Schema) Require(fields ...string) error {
	for _, f := range fields {
		if s.Has(f) {
			continue
		}
		candidates := s.Candidates[f]
		return &MissingHeaderError{
			Dataset:    s.Dataset,
			Field:      f,
			Candidates: candidates,
			Suggestion: SuggestHeader(candidates, s.Headers),
		}
	}
	return nil
}

// Extra returns the row's columns that no field claimed.
func (s Schema) Extra(row Row) map[string]any {
	claimed := make(map[string]bool, len(s.Fields))
	for _, h := range s.Fields {
		claimed[h] = true
	}
	var extra map[string]any
	for k, v := range row {
		if claimed[k] {
			continue
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		extra[k] = v
	}
	return extra
}
