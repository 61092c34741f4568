package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const persistTimeout = 30 * time.Second

// persister runs writes on one background goroutine. Requests arriving
// while a write is pending collapse into that write.
type persister struct {
	write  func(ctx context.Context) error
	logger *slog.Logger
	kick   chan struct{}
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newPersister(write func(ctx context.Context) error, logger *slog.Logger) *persister {
	p := &persister{
		write:  write,
		logger: logger,
		kick:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *persister) schedule() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

func (p *persister) run() {
	defer close(p.done)
	for {
		select {
		case <-p.kick:
			p.flush()
		case <-p.stop:
			select {
			case <-p.kick:
				p.flush()
			default:
			}
			return
		}
	}
}

func (p *persister) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := p.write(ctx); err != nil {
		p.logger.Warn("persist learned entries failed", "error", err)
	}
}

// close writes any pending request and stops the goroutine.
func (p *persister) close() {
	p.once.Do(func() { close(p.stop) })
	<-p.done
}
