package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/PartSenseAI/partsense-mvp/engine/domain"
	"github.com/PartSenseAI/partsense-mvp/pkg/repo"
)

// newPartRepo builds the read-only part catalog repository keyed by the
// PartSelect number.
func newPartRepo(driver neo4j.DriverWithContext) *repo.Neo4jRepo[domain.Part, string] {
	return repo.NewNeo4jRepo[domain.Part, string](
		driver, "Part", partFromRecord,
		repo.WithIDKey[domain.Part, string]("partselect_num"),
	)
}

// partFromRecord maps a MATCH (n:Part) row onto a domain.Part.
func partFromRecord(rec *neo4j.Record) (domain.Part, error) {
	var p domain.Part
	val, ok := rec.Get("n")
	if !ok {
		return p, fmt.Errorf("part row missing node")
	}
	node, ok := val.(dbtype.Node)
	if !ok {
		return p, fmt.Errorf("unexpected part value type %T", val)
	}

	str := func(key string) string {
		if v, ok := node.Props[key]; ok {
			return fmt.Sprint(v)
		}
		return ""
	}

	p.ID = str("id")
	p.URL = str("url")
	p.Name = str("name")
	p.PartSelectNum = str("partselect_num")
	p.ManufacturerPartNum = str("manufacturer_part_num")
	p.Status = str("status")
	p.InstallDifficulty = str("install_difficulty")
	p.InstallTime = str("install_time")
	p.Description = str("description")

	switch v := node.Props["price"].(type) {
	case float64:
		p.Price = v
	case int64:
		p.Price = float64(v)
	case string:
		p.Price, _ = strconv.ParseFloat(strings.TrimPrefix(v, "$"), 64)
	}
	if v, ok := node.Props["works_with_products"].([]any); ok {
		for _, item := range v {
			p.WorksWithProducts = append(p.WorksWithProducts, fmt.Sprint(item))
		}
	}
	return p, nil
}

func handleGetPart(parts repo.Repository[domain.Part, string], logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		num := strings.ToUpper(r.PathValue("num"))
		part, err := parts.Get(r.Context(), num)
		if err != nil {
			logger.Debug("part lookup miss", "num", num, "err", err)
			http.Error(w, `{"error":"part not found"}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(part)
	}
}

func handleListParts(parts repo.Repository[domain.Part, string]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 || limit > 100 {
			limit = 25
		}

		out, err := parts.List(r.Context(), repo.ListOpts{Offset: offset, Limit: limit})
		if err != nil {
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"parts": out, "offset": offset, "limit": limit})
	}
}
