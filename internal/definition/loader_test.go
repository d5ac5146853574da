package definition

import (
	"os"
	"path/filepath"
	"testing"
)

const categoriesYAML = `version: "1"
collections:
  - id: categories
    entity: category
    title: Categories
    path: /categories
    page_size: 10
    order: 2
    status: {param: status, label_active: Active, label_inactive: Inactive}
    columns:
      - {field: name, label: Name, type: text}
    form:
      - {field: name, label: Name, type: text, required: true}
    capabilities: {view: "categories:view", create: "categories:create"}
    operations: {list: listCategories, create: createCategory, update: updateCategory,
                 delete: deleteCategory, toggle: toggleCategoryStatus}
`

const companiesYAML = `version: "1"
collections:
  - id: companies
    entity: company
    title: Companies
    path: /companies
    page_size: 20
    order: 1
    status: {param: isSuspended, inverted: true}
    columns:
      - {field: name, label: Name, type: text}
`

func writeDefs(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestLoader_LoadFile(t *testing.T) {
	dir := writeDefs(t, map[string]string{"categories.yaml": categoriesYAML})
	path := filepath.Join(dir, "categories.yaml")

	file, err := NewLoader().LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if len(file.Collections) != 1 {
		t.Fatalf("Collections = %d, want 1", len(file.Collections))
	}
	c := file.Collections[0]
	if c.ID != "categories" || c.Entity != "category" || c.PageSize != 10 {
		t.Errorf("collection = %+v", c)
	}
	if c.Status.Param != "status" || c.Status.Inverted {
		t.Errorf("Status = %+v", c.Status)
	}
	if c.Operations.Toggle != "toggleCategoryStatus" {
		t.Errorf("Operations.Toggle = %q", c.Operations.Toggle)
	}
	if len(file.Checksum) != 64 {
		t.Errorf("Checksum = %q, want sha256 hex", file.Checksum)
	}
	if file.SourceFile != path {
		t.Errorf("SourceFile = %q, want %q", file.SourceFile, path)
	}
}

func TestLoader_LoadFile_unknownField(t *testing.T) {
	dir := writeDefs(t, map[string]string{"bad.yaml": "collections:\n  - id: x\n    colums: []\n"})
	if _, err := NewLoader().LoadFile(filepath.Join(dir, "bad.yaml")); err == nil {
		t.Error("LoadFile() should reject unknown keys")
	}
}

func TestLoader_LoadFile_empty(t *testing.T) {
	dir := writeDefs(t, map[string]string{"empty.yaml": ""})
	file, err := NewLoader().LoadFile(filepath.Join(dir, "empty.yaml"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if len(file.Collections) != 0 {
		t.Errorf("Collections = %d, want 0", len(file.Collections))
	}
}

func TestLoader_LoadAll(t *testing.T) {
	dir := writeDefs(t, map[string]string{
		"categories.yaml":       categoriesYAML,
		"nested/companies.yml":  companiesYAML,
		"README.md":             "# not a definition",
	})

	files, err := NewLoader().LoadAll([]string{dir})
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("LoadAll() = %d files, want 2", len(files))
	}
}

func TestLoader_LoadAll_missingDir(t *testing.T) {
	if _, err := NewLoader().LoadAll([]string{filepath.Join(t.TempDir(), "nope")}); err == nil {
		t.Error("LoadAll() should fail for a missing directory")
	}
}

func TestLoader_LoadAll_parseError(t *testing.T) {
	dir := writeDefs(t, map[string]string{"broken.yaml": "collections: [\n"})
	if _, err := NewLoader().LoadAll([]string{dir}); err == nil {
		t.Error("LoadAll() should surface parse errors")
	}
}
