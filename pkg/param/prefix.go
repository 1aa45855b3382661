package param

// Prefixed is a narrowed view of a Store for a single component-class
// prefix (e.g. "pts.l1d$." or "pts.mc."), so components never have to
// repeat their own prefix at every lookup call site.
type Prefixed struct {
	store  *Store
	prefix string
}

// WithPrefix returns a Prefixed view of store scoped to prefix.
func WithPrefix(store *Store, prefix string) Prefixed {
	return Prefixed{store: store, prefix: prefix}
}

func (p Prefixed) key(name string) string { return p.prefix + name }

// Uint64 looks up p.prefix+name, falling back to def.
func (p Prefixed) Uint64(name string, def uint64) uint64 {
	return p.store.Uint64(p.key(name), def)
}

// Bool looks up p.prefix+name, falling back to def.
func (p Prefixed) Bool(name string, def bool) bool {
	return p.store.Bool(p.key(name), def)
}

// String looks up p.prefix+name.
func (p Prefixed) String(name string) string {
	return p.store.String(p.key(name))
}
