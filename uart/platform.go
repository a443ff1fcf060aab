package uart

import "runtime"

// hostGOOS is the running platform, threaded through normalizeDevicePath as
// a plain value so that function stays a pure, table-driven helper
// independent of the runtime package in tests.
const hostGOOS = runtime.GOOS
