package driver

import (
	"context"
	"fmt"

	"github.com/anggasct/fluo"

	"github.com/signalsfoundry/border-queue-sim/core"
	"github.com/signalsfoundry/border-queue-sim/internal/logging"
)

// Lifecycle states.
const (
	StateIdle    = "idle"
	StateRunning = "running"
)

// Lifecycle events. Reset, apply and load are self-transitions on idle, so
// the machine rejects them while a run is in progress.
const (
	eventStart       = "start"
	eventRunEnded    = "run_ended"
	eventReset       = "reset"
	eventApplyConfig = "apply_config"
	eventLoad        = "load"
)

func newLifecycle(log logging.Logger) fluo.Machine {
	m := fluo.NewMachine().
		State(StateIdle).Initial().
		To(StateRunning).On(eventStart).
		ToSelf().On(eventReset).
		ToSelf().On(eventApplyConfig).
		ToSelf().On(eventLoad).
		State(StateRunning).
		To(StateIdle).On(eventRunEnded).
		Build().
		CreateInstance()
	m.AddObserver(lifecycleObserver{log: log})
	if err := m.Start(); err != nil {
		// The definition above is static; failing here is a programming error.
		panic(fmt.Sprintf("driver: start lifecycle: %v", err))
	}
	return m
}

// fire sends event to the lifecycle. A rejection means the command is not
// allowed in the current state and maps to core.ErrInvalidOperation.
func fire(m fluo.Machine, event string) error {
	res := m.HandleEvent(event, nil)
	if res.Success() {
		return nil
	}
	return fmt.Errorf("%w: %s while %s", core.ErrInvalidOperation, event, res.CurrentState)
}

type lifecycleObserver struct {
	log logging.Logger
}

// OnTransition runs under the machine's lock and must not call back into it.
func (o lifecycleObserver) OnTransition(from, to string, event fluo.Event, _ fluo.Context) {
	if from == to {
		return
	}
	name := ""
	if event != nil {
		name = event.GetName()
	}
	o.log.Debug(context.Background(), "lifecycle transition",
		logging.String("from", from),
		logging.String("to", to),
		logging.String("event", name),
	)
}

func (lifecycleObserver) OnStateEnter(string, fluo.Context) {}
