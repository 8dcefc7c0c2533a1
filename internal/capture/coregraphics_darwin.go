package capture

/*
#cgo LDFLAGS: -framework CoreGraphics -framework CoreFoundation
#include <CoreGraphics/CoreGraphics.h>
#include <dlfcn.h>
#include <stdlib.h>

typedef struct {
    void*  data;
    size_t size;
    int    width;
    int    height;
} FrameData;

// CGWindowListCreateImage is unavailable in the macOS 15 SDK headers but still
// present in the CoreGraphics dylib. Load it dynamically.
typedef CGImageRef (*CGWindowListCreateImageFunc)(
    CGRect screenBounds,
    uint32_t listOption,
    uint32_t windowID,
    uint32_t imageOption
);

static CGWindowListCreateImageFunc getCGWindowListCreateImage(void) {
    static CGWindowListCreateImageFunc fn = NULL;
    if (!fn) {
        fn = (CGWindowListCreateImageFunc)dlsym(RTLD_DEFAULT, "CGWindowListCreateImage");
    }
    return fn;
}

static FrameData captureDisplay(CGDirectDisplayID displayID) {
    FrameData result = {0};

    CGWindowListCreateImageFunc fn = getCGWindowListCreateImage();
    if (!fn) {
        return result;
    }

    // kCGWindowListOptionOnScreenOnly = 1, kCGNullWindowID = 0,
    // kCGWindowImageNominalResolution = 1 << 4 keeps point-sized output.
    CGImageRef image = fn(CGDisplayBounds(displayID), 1, 0, 1 << 4);
    if (!image) {
        return result;
    }

    result.width  = (int)CGImageGetWidth(image);
    result.height = (int)CGImageGetHeight(image);
    result.size   = (size_t)result.width * 4 * result.height;
    result.data   = malloc(result.size);
    if (!result.data) {
        CGImageRelease(image);
        result.size = 0;
        return result;
    }

    CGColorSpaceRef cs = CGColorSpaceCreateDeviceRGB();
    CGContextRef ctx = CGBitmapContextCreate(result.data, result.width, result.height,
        8, result.width * 4, cs, kCGImageAlphaPremultipliedLast);
    CGContextDrawImage(ctx, CGRectMake(0, 0, result.width, result.height), image);
    CGContextRelease(ctx);
    CGColorSpaceRelease(cs);
    CGImageRelease(image);

    return result;
}

static void freeFrameData(void* data) {
    free(data);
}

static int hasScreenRecordingPermission() {
    return CGPreflightScreenCaptureAccess();
}

static int requestScreenRecordingPermission() {
    return CGRequestScreenCaptureAccess();
}
*/
import "C"

import (
	"errors"
	"fmt"
	"sync"
	"time"
	"unsafe"
)

// CGSource captures a display through CoreGraphics. The device is polled:
// calls closer together than the minimum interval report ErrNotReady.
type CGSource struct {
	displayID C.CGDirectDisplayID
	interval  time.Duration

	mu   sync.Mutex
	last time.Time
}

// Open creates a screen source for the given display index.
func Open(displayIndex int, interval time.Duration) (Source, error) {
	if C.hasScreenRecordingPermission() == 0 {
		C.requestScreenRecordingPermission()
		return nil, ErrPermissionDenied
	}

	var displayID C.CGDirectDisplayID
	if displayIndex == 0 {
		displayID = C.CGMainDisplayID()
	} else {
		var displays [16]C.CGDirectDisplayID
		var count C.uint32_t
		C.CGGetActiveDisplayList(16, &displays[0], &count)
		if displayIndex < 0 || displayIndex >= int(count) {
			return nil, fmt.Errorf("display index %d out of range (have %d displays)", displayIndex, count)
		}
		displayID = displays[displayIndex]
	}
	return &CGSource{displayID: displayID, interval: interval}, nil
}

func (c *CGSource) Bounds() (int, int) {
	return int(C.CGDisplayPixelsWide(c.displayID)), int(C.CGDisplayPixelsHigh(c.displayID))
}

func (c *CGSource) Close() error { return nil }

func (c *CGSource) Frame() (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if !c.last.IsZero() && now.Sub(c.last) < c.interval {
		return nil, ErrNotReady
	}

	fd := C.captureDisplay(c.displayID)
	if fd.data == nil {
		return nil, errors.New("capture: CGWindowListCreateImage returned no image")
	}
	defer C.freeFrameData(fd.data)
	c.last = now

	n := int(fd.size)
	pix := make([]byte, n)
	copy(pix, unsafe.Slice((*byte)(fd.data), n))

	return &Frame{
		Width:     int(fd.width),
		Height:    int(fd.height),
		Pix:       pix,
		Order:     OrderRGBA,
		Timestamp: now,
	}, nil
}
