package demo

import (
	"github.com/Trinoooo/quail_ev/async"
	"github.com/Trinoooo/quail_ev/bridge"
	"github.com/Trinoooo/quail_ev/consts"
	"github.com/Trinoooo/quail_ev/reactor"
	"go.uber.org/zap"
)

// Pinger drives one attached client: a repeating loop timer issues PING
// commands while the bridge relays readiness between context and loop.
type Pinger struct {
	loop *reactor.Loop
	ctx  *async.Context
	cfg  *Config
	tick *reactor.Timer
}

func NewPinger(host string, port int, cfg *Config) (*Pinger, error) {
	lp, err := reactor.New()
	if err != nil {
		return nil, err
	}

	ctx, err := async.Connect(host, port)
	if err != nil {
		_ = lp.Close()
		return nil, err
	}

	if err = bridge.Attach(lp, ctx); err != nil {
		ctx.Disconnect()
		_ = lp.Close()
		return nil, err
	}

	p := &Pinger{
		loop: lp,
		ctx:  ctx,
		cfg:  cfg,
	}
	ctx.OnDisconnect(func(err error) {
		if err != nil {
			demoLogger.Error("pinger disconnected", zap.Error(err))
		} else {
			demoLogger.Info("pinger disconnected")
		}
		_ = lp.Close()
	})
	p.tick = &reactor.Timer{
		Repeat:   cfg.PingInterval(),
		Callback: p.ping,
	}
	return p, nil
}

// Run arms the ping timer and drives the loop until Stop or disconnect.
func (p *Pinger) Run() error {
	p.loop.StartTimer(p.tick)
	return p.loop.Run()
}

func (p *Pinger) ping(*reactor.Timer) {
	// healthy pings keep re-arming the command timeout ahead of expiry
	p.ctx.SetTimeout(p.cfg.PingTimeout())
	err := p.ctx.Do("PING", func(reply string, err error) {
		if err != nil {
			demoLogger.Error("ping failed", zap.Error(err))
			return
		}
		demoLogger.Info("pong", zap.String(consts.LogFieldValue, reply))
	})
	if err != nil {
		demoLogger.Error("queue ping failed", zap.Error(err))
		_ = p.loop.Close()
	}
}

func (p *Pinger) Stop() {
	_ = p.loop.Submit(func() {
		p.ctx.Disconnect()
		_ = p.loop.Close()
	})
}
