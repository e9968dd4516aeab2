package database

import (
	"embed"
	"io/fs"
	"testing"
)

//go:embed testdata/*.sql
var testdataEmbed embed.FS

func testdataFS(t *testing.T) fs.FS {
	t.Helper()
	sub, err := fs.Sub(testdataEmbed, "testdata")
	if err != nil {
		t.Fatalf("fs.Sub: %v", err)
	}
	return sub
}
