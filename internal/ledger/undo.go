package ledger

// undoLog collects inverse mutations so a multi-step operation can be
// reverted to its exact pre-call state.
type undoLog []func()

func (u *undoLog) push(fn func()) {
	*u = append(*u, fn)
}

func (u *undoLog) rollback() {
	for i := len(*u) - 1; i >= 0; i-- {
		(*u)[i]()
	}
	*u = nil
}

func setEntry[K comparable, V any](u *undoLog, m map[K]V, key K, value V, remove bool) {
	prev, existed := m[key]
	u.push(func() {
		if existed {
			m[key] = prev
		} else {
			delete(m, key)
		}
	})
	if remove {
		delete(m, key)
		return
	}
	m[key] = value
}
