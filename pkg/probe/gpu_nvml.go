//go:build nvml

package probe

/*
#cgo LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdlib.h>
#include <string.h>

typedef int nvmlReturn_t;
typedef void* nvmlDevice_t;

typedef struct {
    unsigned long long total;
    unsigned long long free;
    unsigned long long used;
} nvmlMemory_t;

typedef struct {
    unsigned int pid;
    unsigned long long usedGpuMemory;
} nvmlProcessInfo_t;

static void* nvml_lib = NULL;

typedef nvmlReturn_t (*nvmlInit_t)(void);
typedef nvmlReturn_t (*nvmlShutdown_t)(void);
typedef nvmlReturn_t (*nvmlDeviceGetCount_t)(unsigned int*);
typedef nvmlReturn_t (*nvmlDeviceGetHandleByIndex_t)(unsigned int, nvmlDevice_t*);
typedef nvmlReturn_t (*nvmlDeviceGetMemoryInfo_t)(nvmlDevice_t, nvmlMemory_t*);
typedef nvmlReturn_t (*nvmlDeviceGetComputeRunningProcesses_t)(nvmlDevice_t, unsigned int*, nvmlProcessInfo_t*);

static nvmlInit_t f_nvmlInit = NULL;
static nvmlShutdown_t f_nvmlShutdown = NULL;
static nvmlDeviceGetCount_t f_nvmlDeviceGetCount = NULL;
static nvmlDeviceGetHandleByIndex_t f_nvmlDeviceGetHandleByIndex = NULL;
static nvmlDeviceGetMemoryInfo_t f_nvmlDeviceGetMemoryInfo = NULL;
static nvmlDeviceGetComputeRunningProcesses_t f_nvmlDeviceGetComputeRunningProcesses = NULL;

static int nvml_load() {
    nvml_lib = dlopen("libnvidia-ml.so.1", RTLD_LAZY);
    if (!nvml_lib) nvml_lib = dlopen("libnvidia-ml.so", RTLD_LAZY);
    if (!nvml_lib) return -1;

    f_nvmlInit = (nvmlInit_t)dlsym(nvml_lib, "nvmlInit_v2");
    if (!f_nvmlInit) f_nvmlInit = (nvmlInit_t)dlsym(nvml_lib, "nvmlInit");
    f_nvmlShutdown = (nvmlShutdown_t)dlsym(nvml_lib, "nvmlShutdown");
    f_nvmlDeviceGetCount = (nvmlDeviceGetCount_t)dlsym(nvml_lib, "nvmlDeviceGetCount_v2");
    if (!f_nvmlDeviceGetCount) f_nvmlDeviceGetCount = (nvmlDeviceGetCount_t)dlsym(nvml_lib, "nvmlDeviceGetCount");
    f_nvmlDeviceGetHandleByIndex = (nvmlDeviceGetHandleByIndex_t)dlsym(nvml_lib, "nvmlDeviceGetHandleByIndex_v2");
    if (!f_nvmlDeviceGetHandleByIndex) f_nvmlDeviceGetHandleByIndex = (nvmlDeviceGetHandleByIndex_t)dlsym(nvml_lib, "nvmlDeviceGetHandleByIndex");
    f_nvmlDeviceGetMemoryInfo = (nvmlDeviceGetMemoryInfo_t)dlsym(nvml_lib, "nvmlDeviceGetMemoryInfo");
    f_nvmlDeviceGetComputeRunningProcesses = (nvmlDeviceGetComputeRunningProcesses_t)dlsym(nvml_lib, "nvmlDeviceGetComputeRunningProcesses_v3");
    if (!f_nvmlDeviceGetComputeRunningProcesses) f_nvmlDeviceGetComputeRunningProcesses = (nvmlDeviceGetComputeRunningProcesses_t)dlsym(nvml_lib, "nvmlDeviceGetComputeRunningProcesses");

    if (!f_nvmlInit || !f_nvmlDeviceGetCount || !f_nvmlDeviceGetHandleByIndex) return -2;
    return f_nvmlInit();
}

static int nvml_device_count() {
    unsigned int count = 0;
    if (f_nvmlDeviceGetCount) f_nvmlDeviceGetCount(&count);
    return (int)count;
}

static int nvml_get_memory(int idx, unsigned long long* total, unsigned long long* free, unsigned long long* used) {
    nvmlDevice_t dev;
    if (f_nvmlDeviceGetHandleByIndex(idx, &dev) != 0) return -1;
    nvmlMemory_t mem;
    if (f_nvmlDeviceGetMemoryInfo(dev, &mem) != 0) return -2;
    *total = mem.total; *free = mem.free; *used = mem.used;
    return 0;
}

// nvml_get_processes fills pids/usages (capped at cap entries, and at 64)
// and returns the number of entries filled, or a negative value on failure.
static int nvml_get_processes(int idx, unsigned int* pids, unsigned long long* usages, int cap) {
    nvmlDevice_t dev;
    if (f_nvmlDeviceGetHandleByIndex(idx, &dev) != 0) return -1;
    if (!f_nvmlDeviceGetComputeRunningProcesses) return -2;

    unsigned int count = (unsigned int)cap;
    nvmlProcessInfo_t infos[64];
    if (cap > 64) count = 64;
    if (f_nvmlDeviceGetComputeRunningProcesses(dev, &count, infos) != 0) return -3;
    unsigned int n = count;
    if ((int)n > cap) n = (unsigned int)cap;
    for (unsigned int i = 0; i < n; i++) {
        pids[i] = infos[i].pid;
        usages[i] = infos[i].usedGpuMemory;
    }
    return (int)n;
}

static void nvml_shutdown() {
    if (f_nvmlShutdown) f_nvmlShutdown();
    if (nvml_lib) dlclose(nvml_lib);
}
*/
import "C"

import (
	"fmt"
	"strconv"
)

// nvmlGPU wraps NVIDIA Management Library via dlopen (no compile-time
// dependency), adapted from the teacher's pkg/worker/nvml package and
// extended with per-PID compute-process accounting — the teacher's wrapper
// only read device-wide metrics, but the Resource Manager's
// UsagePerPIDs (spec §4.A) needs per-process VRAM.
type nvmlGPU struct {
	count int
}

// NewGPU attempts to load libnvidia-ml.so and initialize NVML. A non-nil
// error means "no information", per spec §4.B's failure-mode rule — this is
// not fatal unless the caller requested CUDA explicitly (spec §8 boundary
// behaviors, §7 ResourceUnavailable).
func NewGPU() (GPU, error) {
	rc := C.nvml_load()
	if rc != 0 {
		return nil, &ErrUnavailable{Reason: fmt.Sprintf("nvml_load rc=%d", int(rc))}
	}
	count := int(C.nvml_device_count())
	if count == 0 {
		C.nvml_shutdown()
		return nil, &ErrUnavailable{Reason: "no GPUs found"}
	}
	return &nvmlGPU{count: count}, nil
}

func (g *nvmlGPU) DeviceCount() int { return g.count }

func (g *nvmlGPU) Available() (map[string]float64, error) {
	out := make(map[string]float64, g.count)
	for i := 0; i < g.count; i++ {
		var total, free, used C.ulonglong
		if C.nvml_get_memory(C.int(i), &total, &free, &used) != 0 {
			continue
		}
		out[strconv.Itoa(i)] = float64(free)
	}
	return out, nil
}

func (g *nvmlGPU) UsagePerPIDs(pids []int) (map[int]float64, error) {
	want := make(map[int]bool, len(pids))
	for _, p := range pids {
		want[p] = true
	}
	out := make(map[int]float64, len(pids))

	const cap = 64
	cpids := make([]C.uint, cap)
	cusages := make([]C.ulonglong, cap)

	for i := 0; i < g.count; i++ {
		n := int(C.nvml_get_processes(C.int(i), &cpids[0], &cusages[0], C.int(cap)))
		if n <= 0 {
			continue
		}
		for j := 0; j < n; j++ {
			pid := int(cpids[j])
			if !want[pid] {
				continue
			}
			out[pid] += float64(cusages[j])
		}
	}
	return out, nil
}
