package memutils

// Validatable is implemented by pools and other structures that can check their own bookkeeping.
// In debug_mem_utils builds, DebugValidate runs the check after every mutation.
type Validatable interface {
	Validate() error
}
