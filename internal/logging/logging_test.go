package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/pixil98/go-testutil"
	"github.com/sirupsen/logrus"
)

func TestNewWithOutput_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput(&buf, "debug", "JSON")
	testutil.AssertEqual(t, "level", log.GetLevel(), logrus.DebugLevel)

	log.WithField("conn", "c1").Debug("hello")
	var entry map[string]string
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected json line, got %q: %v", buf.String(), err)
	}
	testutil.AssertEqual(t, "msg", entry["msg"], "hello")
	testutil.AssertEqual(t, "conn", entry["conn"], "c1")
}

func TestNewWithOutput_TextAndFallbackLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput(&buf, "chatty", "")
	testutil.AssertEqual(t, "level", log.GetLevel(), logrus.InfoLevel)

	log.Debug("hidden")
	log.Info("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}
