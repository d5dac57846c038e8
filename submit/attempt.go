package submit

import (
	"github.com/BaSui01/sceneflow/remote"
	"github.com/BaSui01/sceneflow/types"
)

// Kind is the outcome class of one submission attempt.
type Kind int

const (
	KindSubmitted Kind = iota
	KindAuth
	KindBadRequest
	KindOverload
	KindNetwork
	KindCancelled
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindSubmitted:
		return "submitted"
	case KindAuth:
		return "auth"
	case KindBadRequest:
		return "bad_request"
	case KindOverload:
		return "overload"
	case KindNetwork:
		return "network"
	case KindCancelled:
		return "cancelled"
	default:
		return "fatal"
	}
}

// Attempt is the tagged result of one submit call. The state machine switches on Kind only.
type Attempt struct {
	Kind       Kind
	Operations []remote.SubmittedOperation
	Err        *types.Error
}

// classify turns a remote call result into an Attempt.
func classify(ops []remote.SubmittedOperation, err error) Attempt {
	if err == nil {
		return Attempt{Kind: KindSubmitted, Operations: ops}
	}

	e, ok := types.AsError(err)
	if !ok {
		e = types.NewError(types.ErrBadResponse, "unclassified submit error").WithCause(err)
	}

	var kind Kind
	switch e.Code {
	case types.ErrAuthentication:
		kind = KindAuth
	case types.ErrBadRequest:
		kind = KindBadRequest
	case types.ErrOverloaded:
		kind = KindOverload
	case types.ErrNetwork, types.ErrTimeout:
		kind = KindNetwork
	case types.ErrCancelled:
		kind = KindCancelled
	default:
		kind = KindFatal
	}
	return Attempt{Kind: kind, Err: e}
}
