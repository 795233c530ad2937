package core

// memo caches the first successful result of an initializer. Failures are not
// cached, so a later call retries.
type memo[T any] struct {
	done bool
	val  T
}

func (m *memo[T]) get(init func() (T, error)) (T, error) {
	if m.done {
		return m.val, nil
	}
	v, err := init()
	if err != nil {
		var zero T
		return zero, err
	}
	m.val, m.done = v, true
	return v, nil
}

// view caches a value that cannot fail.
type view[T any] struct {
	done bool
	val  T
}

func (v *view[T]) get(init func() T) T {
	if !v.done {
		v.val, v.done = init(), true
	}
	return v.val
}
