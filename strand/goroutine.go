package strand

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineID extracts the running goroutine's numeric id from its own
// stack trace header ("goroutine 123 [running]:"). This is the one place
// in the module that resorts to a runtime-introspection trick rather than
// a pack-grounded library: no example repo in this corpus imports a
// goroutine-local-storage package (e.g. petermattis/goid), so pulling one
// in here would be an ungrounded addition; the alternative of not
// supporting Strand.IsRunningInCurrentGoroutine at all would drop a named
// spec.md §4.G operation. It is only ever called from
// IsRunningInCurrentGoroutine and at the top of each Strand.drain
// iteration, never from a hot per-byte path.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
