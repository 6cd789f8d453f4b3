package dtx

import (
	"context"

	"eve.evalgo.org/multidb/multidberr"
)

// Step is one forward/compensate pair in a Saga. Forward performs the
// shard-local write; Compensate undoes it. Compensate is only ever
// invoked for steps whose Forward already ran.
type Step struct {
	Shard      string
	Forward    func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// RunSaga executes steps' Forward functions in order. If any Forward
// fails, every already-executed step's Compensate runs in reverse order;
// a Compensate failure is recorded but does not stop the unwind or
// replace the original error -- the Saga always surfaces the original
// forward failure, with any compensation failures attached alongside it.
func RunSaga(ctx context.Context, steps []Step) error {
	executed := 0
	var forwardErr error

	for i, s := range steps {
		if err := s.Forward(ctx); err != nil {
			forwardErr = err
			executed = i
			break
		}
		executed = i + 1
	}

	if forwardErr == nil {
		return nil
	}

	var compFailures []multidberr.CompensationFailure
	for i := executed - 1; i >= 0; i-- {
		if steps[i].Compensate == nil {
			continue
		}
		if err := steps[i].Compensate(ctx); err != nil {
			compFailures = append(compFailures, multidberr.CompensationFailure{Step: i, Err: err})
		}
	}

	return &multidberr.SagaFailure{Step: executed, Original: forwardErr, CompensationFailures: compFailures}
}
