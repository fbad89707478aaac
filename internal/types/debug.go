package types

// StageDebug carries the audit trail of a stage result. The three fields are
// independent of validity: a good result keeps its raw text, a stub keeps the
// error and whatever raw text caused it.
type StageDebug struct {
	RawModelText       *string `json:"raw_model_text"`
	NormalizedJSONText *string `json:"normalized_json_text"`
	ModelError         *string `json:"model_error"`
}

// IsStub reports whether the result is a placeholder produced after a model failure
func (d StageDebug) IsStub() bool {
	return d.ModelError != nil
}

// Debug returns the debug fields themselves so embedding types satisfy Debuggable
func (d StageDebug) Debug() StageDebug {
	return d
}

// Debuggable is implemented by every stage output through its embedded StageDebug
type Debuggable interface {
	Debug() StageDebug
}

// StringPtr returns a pointer to s, or nil when s is empty
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or ""
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// SetDebug replaces the debug fields. Stage outputs get it through embedding.
func (d *StageDebug) SetDebug(v StageDebug) {
	*d = v
}
