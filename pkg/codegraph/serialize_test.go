package codegraph

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/trellis-ai/trellis/backend/pkg/common"
)

func TestSerializeRoundTrip(t *testing.T) {
	g := New()
	g.MergeImportEdges(map[string][]string{"n1": {"n2", "n3"}, "n4": {"n1"}})
	g.MergeExportEdges(map[string][]string{"n2": {"n1"}, "n3": {"n1"}})
	g.AddOrUpdateFileInSymbolTable("src/a.ts", common.FileDetails{NodeIDs: []string{"n1", "n4"}, SHA: "a1"})
	g.AddOrUpdateFileInSymbolTable("src/b.ts", common.FileDetails{NodeIDs: []string{"n2", "n3"}, SHA: "b1"})

	data, err := g.Serialize()
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	loaded, err := FromSerialized(data)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if !reflect.DeepEqual(loaded.GetImportEdges(), g.GetImportEdges()) {
		t.Fatalf("import edges changed across round trip: %v vs %v", loaded.GetImportEdges(), g.GetImportEdges())
	}
	if !reflect.DeepEqual(loaded.GetExportEdges(), g.GetExportEdges()) {
		t.Fatalf("export edges changed across round trip: %v vs %v", loaded.GetExportEdges(), g.GetExportEdges())
	}
	if !reflect.DeepEqual(loaded.GetSymbolTable(), g.GetSymbolTable()) {
		t.Fatalf("symbol table changed across round trip: %v vs %v", loaded.GetSymbolTable(), g.GetSymbolTable())
	}
}

func TestSerialize_AssociationListShape(t *testing.T) {
	g := New()
	g.MergeImportEdges(map[string][]string{"n1": {"n2"}})
	g.AddOrUpdateFileInSymbolTable("src/a.ts", common.FileDetails{NodeIDs: []string{"n1"}, SHA: "a1"})

	data, err := g.Serialize()
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	var state map[string]json.RawMessage
	if err := json.Unmarshal(data, &state); err != nil {
		t.Fatalf("expected top-level object, got %v", err)
	}
	for _, key := range []string{"importEdges", "exportEdges", "symbolTable"} {
		if _, ok := state[key]; !ok {
			t.Fatalf("expected key %s in serialized state", key)
		}
	}

	var imports [][]json.RawMessage
	if err := json.Unmarshal(state["importEdges"], &imports); err != nil {
		t.Fatalf("expected importEdges to be a list of pairs, got %v", err)
	}
	if len(imports) != 1 || len(imports[0]) != 2 {
		t.Fatalf("expected one [id, targets] pair, got %v", imports)
	}
	var id string
	if err := json.Unmarshal(imports[0][0], &id); err != nil || id != "n1" {
		t.Fatalf("expected pair key n1, got %s (err %v)", id, err)
	}
	var targets []string
	if err := json.Unmarshal(imports[0][1], &targets); err != nil || !reflect.DeepEqual(targets, []string{"n2"}) {
		t.Fatalf("expected pair targets [n2], got %v (err %v)", targets, err)
	}
}

func TestFromSerialized_CorruptData(t *testing.T) {
	if _, err := FromSerialized([]byte("not json")); err == nil {
		t.Fatal("expected error for corrupt state, got nil")
	}
	if _, err := FromSerialized([]byte(`{"importEdges": [["n1"]]}`)); err == nil {
		t.Fatal("expected error for malformed pair, got nil")
	}
}

func TestFromSerialized_EmptyState(t *testing.T) {
	g, err := FromSerialized([]byte(`{}`))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(g.GetImportEdges()) != 0 || len(g.GetExportEdges()) != 0 || len(g.GetSymbolTable()) != 0 {
		t.Fatal("expected an empty graph from empty state")
	}
}
