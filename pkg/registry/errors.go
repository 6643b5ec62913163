package registry

import "errors"

// Error surface of the key registry. The names mirror the contract's custom
// errors one to one; the watcher matches on them to decide between retry,
// abort and alarm.
var (
	ErrAlreadySubmitted = errors.New("registry: contribution already submitted")
	ErrBadContribution  = errors.New("registry: bad contribution")
	ErrDeletedID        = errors.New("registry: oprf key id is deleted")
	ErrUnknownID        = errors.New("registry: unknown oprf key id")
	ErrWrongRound       = errors.New("registry: contribution for wrong round")
	ErrInvalidPoint     = errors.New("registry: point not on curve or not in subgroup")
	ErrNotAProducer     = errors.New("registry: sender is not a producer")
	ErrNotAParticipant  = errors.New("registry: sender is not a registered peer")
	ErrOnlyAdmin        = errors.New("registry: caller is not a key-gen admin")
	ErrLastAdmin        = errors.New("registry: cannot revoke the last admin")
	ErrPeersRegistered  = errors.New("registry: peers already registered")
	ErrWrongPeerCount   = errors.New("registry: unexpected amount of peers")
)
