package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/pixil98/go-testutil"

	"simbridge.ai/internal/protocol"
)

func TestWriteSchema_ReplacesAtomically(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "command.schema.json")
	schema := protocol.Schemas()["command.schema.json"]

	for i := 0; i < 2; i++ {
		if err := writeSchema(out, schema); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if _, err := os.Stat(out + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}

	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	title, _ := doc["title"].(string)
	testutil.AssertEqual(t, "title", title, "command envelope")
}
