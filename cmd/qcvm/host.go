package main

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/qcvm/builtins"
	"github.com/chazu/qcvm/config"
	"github.com/chazu/qcvm/progs"
	"github.com/chazu/qcvm/replay"
	"github.com/chazu/qcvm/snapshot"
	"github.com/chazu/qcvm/vm"
	"github.com/chazu/qcvm/world"
)

// host ties a loaded program to a world, the standard built-ins and an
// optional replay archive, and drives it tick by tick.
type host struct {
	cfg   *config.Config
	vm    *vm.VM
	world *world.World
	log   commonlog.Logger

	entry vm.FunctionID

	// Think dispatch is enabled only when the program declares both fields.
	thinks    bool
	nextThink vm.FieldAddr
	think     vm.FieldAddr

	archive *replay.Archive
	session uuid.UUID
}

func newHost(cfg *config.Config, progsPath string) (*host, error) {
	tables, err := progs.ReadFile(progsPath, progs.LoadOptions{IgnoreCRC: cfg.Run.IgnoreCRC})
	if err != nil {
		return nil, err
	}
	machine, err := vm.Load(tables, cfg.VMOptions()...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", progsPath, err)
	}

	h := &host{
		cfg:   cfg,
		vm:    machine,
		world: world.New(machine.Fields(), cfg.VM.MaxEntities),
		log:   commonlog.GetLogger("qcvm"),
	}
	builtins.Register(machine, h.world, builtins.Options{
		Seed:  cfg.Builtins.RandomSeed,
		Cvars: cfg.Cvars,
	})

	if nt, err := h.world.Field("nextthink"); err == nil {
		if th, err := h.world.Field("think"); err == nil {
			h.thinks, h.nextThink, h.think = true, nt, th
		}
	}

	if cfg.Replay.Record && cfg.ReplayPath() != "" {
		h.archive, err = replay.Open(cfg.ReplayPath())
		if err != nil {
			return nil, err
		}
		h.session, err = h.archive.Begin(filepath.Base(progsPath))
		if err != nil {
			h.archive.Close()
			return nil, err
		}
		h.log.Infof("recording session %s to %s", h.session, cfg.ReplayPath())
	}
	return h, nil
}

func (h *host) close() {
	if h.archive != nil {
		if err := h.archive.Close(); err != nil {
			h.log.Errorf("closing replay archive: %s", err)
		}
	}
}

// run executes ticks. Each tick advances time by the frame time, calls the
// entry function, runs due entity thinks and records a snapshot. The first
// VM error ends the run.
func (h *host) run(ticks int) error {
	var err error
	h.entry, err = h.vm.FindFunction(h.cfg.Run.Entry)
	if err != nil {
		return err
	}

	g := h.vm.Globals()
	frameTime := h.cfg.Run.FrameTime
	for tick := 0; tick < ticks; tick++ {
		now, err := g.Float(vm.AddrTime)
		if err != nil {
			return err
		}
		now += frameTime
		if err := g.PutFloat(vm.AddrFrameTime, frameTime); err != nil {
			return err
		}
		if err := g.PutFloat(vm.AddrTime, now); err != nil {
			return err
		}
		h.log.Debugf("tick %d time %.3f", tick, now)

		if err := h.vm.Call(h.entry); err != nil {
			return fmt.Errorf("tick %d: %w", tick, err)
		}
		if err := h.runThinks(now); err != nil {
			return fmt.Errorf("tick %d: %w", tick, err)
		}
		if h.archive != nil {
			if err := h.archive.Record(h.session, tick, snapshot.Take(h.vm, h.world)); err != nil {
				return err
			}
		}
	}
	return nil
}

// runThinks calls the think function of every entity whose nextthink has
// come due, with self set to the entity. Entities spawned by a think wait
// for the next tick.
func (h *host) runThinks(now float32) error {
	if !h.thinks {
		return nil
	}
	var live []vm.EntityID
	h.world.Each(func(id vm.EntityID) bool {
		live = append(live, id)
		return true
	})

	g := h.vm.Globals()
	for _, id := range live {
		e, err := h.world.Entity(id)
		if err != nil {
			continue // removed by an earlier think
		}
		due, err := e.Float(h.nextThink)
		if err != nil {
			return err
		}
		if due <= 0 || due > now {
			continue
		}
		fn, err := e.FunctionID(h.think)
		if err != nil {
			return err
		}
		if err := e.SetFloat(h.nextThink, 0); err != nil {
			return err
		}
		if fn == 0 {
			continue
		}
		if err := g.PutEntityID(vm.AddrSelf, id); err != nil {
			return err
		}
		if err := g.PutEntityID(vm.AddrOther, 0); err != nil {
			return err
		}
		if err := h.vm.Call(fn); err != nil {
			return fmt.Errorf("entity %d think: %w", id, err)
		}
	}
	return nil
}
