package cli

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

func TestSimpleProgressBasic(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf)

	progress.Start(100)
	progress.Update(50)
	progress.Finish()

	output := buf.String()
	if !strings.Contains(output, "50.0%") {
		t.Errorf("output missing the midpoint render: %q", output)
	}
	if !strings.Contains(output, "(100/100)") {
		t.Errorf("output missing the final render: %q", output)
	}
	if !strings.HasSuffix(output, "\n") {
		t.Error("Finish must terminate the line")
	}
}

func TestSimpleProgressZeroTotal(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf)

	progress.Start(0)
	progress.Update(0)
	progress.Finish()

	// Bar suppressed with nothing to count; only the line terminator.
	if got := buf.String(); got != "\n" {
		t.Errorf("output = %q, want a bare newline", got)
	}
}

func TestSimpleProgressError(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf)

	progress.Start(100)
	progress.Error(fmt.Errorf("export interrupted"))

	output := buf.String()
	if !strings.Contains(output, "error: export interrupted") {
		t.Errorf("output missing the failure line: %q", output)
	}
}

func TestSimpleProgressConcurrent(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf)

	progress.Start(1000)

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(start int) {
			for j := 0; j < 100; j++ {
				progress.Update(int64(start*100 + j))
			}
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	progress.Finish()

	if buf.Len() == 0 {
		t.Error("expected progress output")
	}
}

func TestNewProgressReporterNilWriter(t *testing.T) {
	progress := NewProgressReporter(nil)
	if progress == nil {
		t.Fatal("NewProgressReporter(nil) returned nil")
	}
	if _, ok := progress.(*SimpleProgress); !ok {
		t.Errorf("reporter type = %T", progress)
	}
}
