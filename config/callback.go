package config

// ConfigCallback fans a parsed configuration out to packages that need to
// reconfigure themselves (e.g. the logger) without importing them here.
type ConfigCallback[T any] struct {
	callbacks []func(T)
}

func (cc *ConfigCallback[T]) AddCallback(f func(T)) {
	cc.callbacks = append(cc.callbacks, f)
}

func (cc *ConfigCallback[T]) Call(c T) {
	for _, f := range cc.callbacks {
		f(c)
	}
}
