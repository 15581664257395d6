package core

import "time"

// Steps reported to a StateEventListener while a state update is applied.
const (
	StepClassesTrie   = "classes_trie"
	StepContractsTrie = "contracts_trie"
	StepStorageTries  = "storage_tries"
)

type StateEventListener interface {
	OnUpdateStepDone(step string, blockNum uint64, took time.Duration)
}

type SelectiveListener struct {
	OnUpdateStepDoneCb func(step string, blockNum uint64, took time.Duration)
}

func (l *SelectiveListener) OnUpdateStepDone(step string, blockNum uint64, took time.Duration) {
	if l.OnUpdateStepDoneCb != nil {
		l.OnUpdateStepDoneCb(step, blockNum, took)
	}
}
