package zorm

import (
	"fmt"
	"sort"
)

// Define registers a model under name.
// Relations may reference models that are defined later; they are resolved on use.
func (db *DB) Define(name string, configure func(ec *EntityConfigurator)) (*Model, error) {
	ec := newEntityConfigurator(name)
	if configure != nil {
		configure(ec)
	}

	m, err := ec.build(db)
	if err != nil {
		return nil, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.models[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrModelExists, name)
	}
	db.models[name] = m
	db.order = append(db.order, name)

	db.logger.Debug("zorm: model defined", "model", name, "table", m.table)
	return m, nil
}

// Model returns the registered model with the given name.
func (db *DB) Model(name string) (*Model, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	m, ok := db.models[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	return m, nil
}

// Models returns the names of every registered model, sorted.
func (db *DB) Models() []string {
	db.mu.RLock()
	names := make([]string, len(db.order))
	copy(names, db.order)
	db.mu.RUnlock()

	sort.Strings(names)
	return names
}

// ModelByTable returns the registered model mapped to table.
func (db *DB) ModelByTable(table string) (*Model, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, name := range db.order {
		if m := db.models[name]; m.table == table {
			return m, true
		}
	}
	return nil, false
}

// declaredModels returns the registered models in definition order.
func (db *DB) declaredModels() []*Model {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := make([]*Model, 0, len(db.order))
	for _, name := range db.order {
		out = append(out, db.models[name])
	}
	return out
}
