package llm

import "sync"

// Lazy builds a Client on first use and caches the outcome, success or
// failure, for every later call.
type Lazy struct {
	cfg  Config
	once sync.Once
	c    Client
	err  error

	newClient func(Config) (Client, error)
}

// NewLazy returns a Lazy for cfg. Nothing is contacted until Get.
func NewLazy(cfg Config) *Lazy {
	return &Lazy{cfg: cfg, newClient: NewClient}
}

// Ready returns a Lazy that always yields c.
func Ready(c Client) *Lazy {
	l := &Lazy{c: c}
	l.once.Do(func() {})
	return l
}

// Get returns the client, initializing it on first call.
func (l *Lazy) Get() (Client, error) {
	l.once.Do(func() {
		l.c, l.err = l.newClient(l.cfg)
	})
	return l.c, l.err
}
