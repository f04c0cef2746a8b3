package metrics

import (
	"testing"
	"time"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	// Helpers must not panic after (or before) Init.
	IncAudit("success")
	IncEscalation()
	ObserveFetch("static", 250*time.Millisecond, true)
	IncJob("running")
	AddPoolWorkers(1)
	AddPoolWorkers(-1)
	IncDriftRecord("ok")
}

func TestHandlerServesRegistry(t *testing.T) {
	Init()
	if Handler() == nil {
		t.Fatal("expected non-nil metrics handler")
	}
}
