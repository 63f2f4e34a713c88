package main

import (
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

func TestModelFromRecord(t *testing.T) {
	rec := &neo4j.Record{
		Keys: []string{"n"},
		Values: []any{dbtype.Node{Props: map[string]any{
			"model_num": "WDT780SAEM1",
			"name":      "Whirlpool Dishwasher WDT780SAEM1",
			"brand":     "Whirlpool",
			"url":       "https://example.com/models/WDT780SAEM1",
		}}},
	}

	m, err := modelFromRecord(rec)
	if err != nil {
		t.Fatalf("modelFromRecord: %v", err)
	}
	if m.ModelNum != "WDT780SAEM1" {
		t.Fatalf("ModelNum = %q", m.ModelNum)
	}
	if m.Brand != "Whirlpool" {
		t.Fatalf("Brand = %q", m.Brand)
	}
	if m.Name == "" || m.URL == "" {
		t.Fatalf("missing fields: %+v", m)
	}
}

func TestModelFromRecordMissingProps(t *testing.T) {
	rec := &neo4j.Record{
		Keys:   []string{"n"},
		Values: []any{dbtype.Node{Props: map[string]any{"model_num": "106.51133210"}}},
	}
	m, err := modelFromRecord(rec)
	if err != nil {
		t.Fatalf("modelFromRecord: %v", err)
	}
	if m.ModelNum != "106.51133210" || m.Name != "" || m.Brand != "" {
		t.Fatalf("unexpected mapping: %+v", m)
	}
}

func TestModelFromRecordWrongShape(t *testing.T) {
	rec := &neo4j.Record{Keys: []string{"n"}, Values: []any{"not a node"}}
	if _, err := modelFromRecord(rec); err == nil {
		t.Fatal("expected error for non-node value")
	}
	rec = &neo4j.Record{Keys: []string{"other"}, Values: []any{dbtype.Node{}}}
	if _, err := modelFromRecord(rec); err == nil {
		t.Fatal("expected error for missing node column")
	}
}
