package utils

import "sync"

// gdalMu serializes GDAL calls, the driver state is not safe for concurrent use.
var gdalMu sync.Mutex

func ExecuteWithMutex(fn func()) {
	gdalMu.Lock()
	defer gdalMu.Unlock()
	fn()
}
