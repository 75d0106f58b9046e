package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestServeHTTPExposesCounters(t *testing.T) {
	c := New(4)
	c.SetSlotsInUse(2)
	c.IncAdmitted()
	c.IncAdmitted()
	c.IncDeferred()
	c.IncCompleted()
	c.IncFailed()
	c.SetReservedRAM(1024)
	c.SetReservedGPU("0", 2048)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		"parexec_slots_in_use 2",
		"parexec_slots_total 4",
		"parexec_tasks_admitted_total 2",
		"parexec_tasks_deferred_total 1",
		"parexec_tasks_completed_total 1",
		"parexec_tasks_failed_total 1",
		"parexec_reserved_ram_bytes 1024",
		`parexec_reserved_gpu_bytes{device="0"} 2048`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q\ngot:\n%s", want, body)
		}
	}
}
