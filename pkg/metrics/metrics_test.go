package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func TestRegistry(t *testing.T) {
	if Registry == nil {
		t.Error("Registry should not be nil")
	}

	if Registry != prometheus.DefaultRegisterer {
		t.Error("Registry should be the default Prometheus registerer")
	}
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Name: "readwise_test_total",
		Help: "Test counter",
	})
	counter.Add(3)

	original := Gatherer
	Gatherer = reg
	t.Cleanup(func() { Gatherer = original })

	path := filepath.Join(t.TempDir(), "nested", "readwise.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "readwise_test_total 3") {
		t.Errorf("textfile missing counter:\n%s", data)
	}
}

func TestWriteTextfile_InvalidPath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := WriteTextfile(filepath.Join(blocker, "metrics.prom")); err == nil {
		t.Error("WriteTextfile() expected error when parent is a file")
	}
}
