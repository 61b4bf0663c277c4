package coordinator

import "errors"

// Sentinel errors distinguishing the coordinator's business-rule rejections
// from the underlying store.ErrConflict/store.ErrNotFound they often wrap.
var (
	// ErrAlreadyApproved names a decomposition that was already approved.
	// Approve itself does not return it: it reports that case through
	// ApprovalResult.AlreadyApproved.
	ErrAlreadyApproved = errors.New("coordinator: decomposition already approved")

	// ErrCyclicDecomposition is returned by Decompose when the model's task
	// graph contains a cycle; no task rows are written in that case.
	ErrCyclicDecomposition = errors.New("coordinator: cyclic task decomposition")

	// ErrNoPendingQuestion mirrors store.AnswerQuestion's precondition at the
	// coordinator boundary for callers that only import this package.
	ErrNoPendingQuestion = errors.New("coordinator: no pending discovery question")

	// ErrSessionNotRunning is returned by Pause/Resume/Stop when the
	// project has no session this coordinator instance is tracking.
	ErrSessionNotRunning = errors.New("coordinator: no session running for this project")

	// ErrSessionAlreadyRunning is returned by StartSession when a session is
	// already active for the project.
	ErrSessionAlreadyRunning = errors.New("coordinator: session already running for this project")

	// ErrTaskNotBlocked is returned by UnblockTask when the target task isn't
	// in a state a human override can usefully act on.
	ErrTaskNotBlocked = errors.New("coordinator: task is not blocked or failed")
)
