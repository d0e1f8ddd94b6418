package config

// Defaults returns a snapshot populated entirely from registry defaults.
// Intended for tests and for first-run before any value is persisted.
func Defaults() *Snapshot {
	s := &Snapshot{
		values: make(map[Key]string),
		defs:   make(map[Key]Definition),
	}
	for _, def := range Registry() {
		s.defs[def.Key] = def
		s.values[def.Key] = def.Default
	}
	return s
}

// With returns a copy of the snapshot with one value overridden. The
// override must still validate; With panics otherwise, which keeps test
// setups honest.
func (s *Snapshot) With(path, value string) *Snapshot {
	def, ok := Lookup(path)
	if !ok {
		panic("config: unregistered key " + path)
	}
	if err := validateValue(def, value); err != nil {
		panic("config: " + path + ": " + err.Error())
	}

	next := &Snapshot{
		values: make(map[Key]string, len(s.values)),
		defs:   s.defs,
	}
	for k, v := range s.values {
		next.values[k] = v
	}
	next.values[def.Key] = value
	return next
}
