package log

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

var (
	sampleInt      = 3
	sampleBytes    = []byte("123")
	sampleList     = []int64{10, 0, -10}
	sampleDuration = time.Second

	errSample = errors.New("some error")
)

func doLogs() {
	Infof("added %d candidates to election %x", sampleInt, sampleBytes)
	Debugw("registering voter", "address", "0xabc123", "height", 4)
	Errorf("cannot commit to blockstore: %v", errSample)
	Warnw("various types",
		"list", sampleList,
		"duration", sampleDuration,
	)
	Errorw(errSample, "deliver tx failed", "height", 7)
}

func TestCheckInvalidChars(t *testing.T) {
	v := []byte{'h', 'e', 'l', 'l', 'o', 0xff, 'w', 'o', 'r', 'l', 'd'}
	t.Setenv("LOG_PANIC_ON_INVALIDCHARS", "false")
	Init("debug", "stderr")
	Debugf("%s", v)
	// should not panic since env var is false. if it panics, test will fail

	// now enable panic and try again: should recover() and never reach t.Errorf()
	t.Setenv("LOG_PANIC_ON_INVALIDCHARS", "true")
	Init("debug", "stderr")
	defer func() {
		recover()
		panicOnInvalidChars = false
	}()
	Debugf("%s", v)
	t.Errorf("Debugf(%s) should have panicked because of invalid char", v)
}

func TestLoggerOutput(t *testing.T) {
	c := qt.New(t)
	var buf bytes.Buffer
	logTestWriter = &buf
	Init("debug", logTestWriterName)
	defer Init("error", "stderr")

	doLogs()

	got := buf.String()
	for _, want := range []string{
		"added 3 candidates to election 313233",
		"registering voter\t{\"address\": \"0xabc123\", \"height\": 4}",
		"cannot commit to blockstore: some error",
		`"list": [10, 0, -10]`,
		`"duration": "1s"`,
		"deliver tx failed\t{\"height\": 7, \"error\": \"some error\"}",
	} {
		c.Assert(strings.Contains(got, want), qt.IsTrue, qt.Commentf("missing %q in:\n%s", want, got))
	}
	c.Assert(Level(), qt.Equals, LogLevelDebug)
}

func TestLevelFilter(t *testing.T) {
	c := qt.New(t)
	var buf bytes.Buffer
	logTestWriter = &buf
	Init("warn", logTestWriterName)
	defer Init("error", "stderr")

	Infow("hidden message")
	Warnw("visible message")
	c.Assert(strings.Contains(buf.String(), "hidden message"), qt.IsFalse)
	c.Assert(strings.Contains(buf.String(), "visible message"), qt.IsTrue)
	c.Assert(Level(), qt.Equals, LogLevelWarn)
}

func TestFileErrorLog(t *testing.T) {
	c := qt.New(t)
	path := filepath.Join(t.TempDir(), "errors.log")
	c.Assert(SetFileErrorLog(path), qt.IsNil)
	defer func() {
		errorLogLock.Lock()
		if f, ok := errorLog.(io.Closer); ok {
			f.Close()
		}
		errorLog = nil
		errorLogLock.Unlock()
	}()

	Warnf("disk almost full: %d%%", 93)
	Errorw(errSample, "cannot store block")

	data, err := os.ReadFile(path)
	c.Assert(err, qt.IsNil)
	c.Assert(strings.Contains(string(data), "disk almost full: 93%"), qt.IsTrue)
	c.Assert(strings.Contains(string(data), "cannot store block: some error"), qt.IsTrue)
}

func BenchmarkLogger(b *testing.B) {
	logTestWriter = io.Discard // to not grow a buffer
	Init("debug", logTestWriterName)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		doLogs()
	}
}
