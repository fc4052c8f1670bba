package conn

import (
	"sync"

	"collator/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"gorm.io/gorm"
)

// Pool shares one client per connection string.
type Pool struct {
	base Option
	open func(Option) (*Client, error)

	mu      sync.Mutex
	clients map[string]*Client
}

// NewPool creates a pool. base fills in a source that names no DSN.
func NewPool(base Option) *Pool {
	return &Pool{base: base, open: New, clients: make(map[string]*Client)}
}

// Get returns the database for dsn, opening it on first use.
func (p *Pool) Get(dsn string) (*gorm.DB, error) {
	if p == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "postgres pool")
	}
	opt := p.base
	if dsn != "" {
		opt.ConnString = dsn
	}
	key, err := opt.DSN()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[key]; ok {
		return c.DB(), nil
	}
	c, err := p.open(opt)
	if err != nil {
		return nil, err
	}
	p.clients[key] = c
	logs.Infof("conn: opened postgres %s", opt.Host)
	return c.DB(), nil
}

// Close closes every client.
func (p *Pool) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var first error
	for key, c := range p.clients {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
		delete(p.clients, key)
	}
	return first
}
