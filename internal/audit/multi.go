package audit

// MultiSink fans a record out to every sink. Appends continue past
// failures so a broken database never silences the JSONL trail; the
// first error is returned.
type MultiSink []Sink

// Append implements Sink.
func (m MultiSink) Append(rec CycleRecord) error {
	var first error
	for _, s := range m {
		if err := s.Append(rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}
