package crdt

import "golang.org/x/xerrors"

// +---------------------+
// | Operations - Errors |
// +---------------------+
//
// The error taxonomy is small and closed (see spec.md §7):
//
//   - Invariant violations are bugs: they panic, the same way the teacher's
//     CausalTree panics on overflow (randomUUIDv1) or unrecognized atom
//     types (ToJSON). The engine is not designed to remain consistent after
//     a corrupt mutation, so there is no recovery path to engineer.
//   - Out-of-order remote batches and invalid local positions are
//     recoverable: they're returned as one of the sentinel errors below,
//     wrapped with xerrors so callers can xerrors.Is/As them and (for the
//     remote case) buffer and retry once the missing dependency arrives.
var (
	// ErrMissingParent is returned by ApplyRemoteBatch when a batch entry's
	// parent LV hasn't been seen by this replica yet.
	ErrMissingParent = xerrors.New("crdt: remote batch references an unknown parent version")

	// ErrMissingSeq is returned by ApplyRemoteBatch when a batch's starting
	// seq is not the next one expected from its agent: either an earlier seq
	// from the same agent hasn't arrived yet, or the batch repeats seqs this
	// replica has already applied.
	ErrMissingSeq = xerrors.New("crdt: remote batch references an out-of-order agent sequence")

	// ErrOutOfBounds is returned by LocalInsert/LocalDelete when pos is
	// beyond the document's current visible length.
	ErrOutOfBounds = xerrors.New("crdt: position out of bounds")
)

// wrapf is a small helper matching the xerrors.Errorf("...: %w", err) idiom
// used throughout this package's recoverable-error paths.
func wrapf(format string, err error) error {
	return xerrors.Errorf(format, err)
}
