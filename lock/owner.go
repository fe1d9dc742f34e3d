package lock

// Owner identifies a thread of control holding locks.
// goroutines have no identity, and several of them may run on the same simulated
// processor, so the holder of a lock is recorded as an Owner instead of a cpu id.
// a thread creates one Owner and passes it to every Acquire/Release it does.
type Owner struct {
	// name is for debugging. it also keeps Owner from being zero sized,
	// distinct Owners must have distinct addresses
	name string
}

// NewOwner initializes Owner
func NewOwner(name string) *Owner {
	return &Owner{name: name}
}
