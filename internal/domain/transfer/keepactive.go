package transfer

import "sync"

// Activity is whatever keeps the host awake while transfers run
type Activity interface {
	SetKeepActive(on bool)
}

// ActivityFunc adapts a function to Activity
type ActivityFunc func(on bool)

func (f ActivityFunc) SetKeepActive(on bool) { f(on) }

// KeepActive is a reference-counted guard over an Activity. The flag is on
// while at least one holder has not released.
type KeepActive struct {
	mu     sync.Mutex
	count  int
	target Activity
}

// NewKeepActive creates a guard driving target
func NewKeepActive(target Activity) *KeepActive {
	if target == nil {
		target = ActivityFunc(func(bool) {})
	}
	return &KeepActive{target: target}
}

// Acquire turns the flag on and returns its release. Calling release more
// than once has no further effect.
func (k *KeepActive) Acquire() (release func()) {
	k.mu.Lock()
	k.count++
	if k.count == 1 {
		k.target.SetKeepActive(true)
	}
	k.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(k.release)
	}
}

func (k *KeepActive) release() {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.count--
	if k.count == 0 {
		k.target.SetKeepActive(false)
	}
}

// Active reports whether any holder is outstanding
func (k *KeepActive) Active() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.count > 0
}
