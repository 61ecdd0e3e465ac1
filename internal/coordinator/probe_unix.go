package coordinator

import "syscall"

// processProbeSignal is sent to check process liveness without affecting
// the target (the standard "kill -0" idiom).
const processProbeSignal = syscall.Signal(0)
