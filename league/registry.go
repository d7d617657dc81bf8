package league

// Registry owns the process's leagues, constructed once at startup and read
// thereafter. It replaces any notion of a hidden global league cache.
type Registry struct {
	leagues map[string]*League
	order   []string
}

// NewRegistry builds a registry from already-constructed leagues.
func NewRegistry(leagues ...*League) *Registry {
	r := &Registry{leagues: make(map[string]*League, len(leagues))}
	for _, l := range leagues {
		if _, dup := r.leagues[l.Name()]; dup {
			continue
		}
		r.leagues[l.Name()] = l
		r.order = append(r.order, l.Name())
	}
	return r
}

// Get returns the league with the given name, or nil.
func (r *Registry) Get(name string) *League { return r.leagues[name] }

// All returns the leagues in configuration order.
func (r *Registry) All() []*League {
	out := make([]*League, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.leagues[name])
	}
	return out
}
