package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/PartSenseAI/partsense-mvp/engine/domain"
	"github.com/PartSenseAI/partsense-mvp/pkg/repo"
)

// newModelRepo builds the read-only appliance model repository keyed by the
// model number.
func newModelRepo(driver neo4j.DriverWithContext) *repo.Neo4jRepo[domain.Model, string] {
	return repo.NewNeo4jRepo[domain.Model, string](
		driver, "Model", modelFromRecord,
		repo.WithIDKey[domain.Model, string]("model_num"),
	)
}

// modelFromRecord maps a MATCH (n:Model) row onto a domain.Model.
func modelFromRecord(rec *neo4j.Record) (domain.Model, error) {
	var m domain.Model
	val, ok := rec.Get("n")
	if !ok {
		return m, fmt.Errorf("model row missing node")
	}
	node, ok := val.(dbtype.Node)
	if !ok {
		return m, fmt.Errorf("unexpected model value type %T", val)
	}

	str := func(key string) string {
		if v, ok := node.Props[key]; ok {
			return fmt.Sprint(v)
		}
		return ""
	}

	m.ModelNum = str("model_num")
	m.Name = str("name")
	m.Brand = str("brand")
	m.URL = str("url")
	return m, nil
}

func handleGetModel(models repo.Repository[domain.Model, string], logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		num := strings.ToUpper(r.PathValue("num"))
		model, err := models.Get(r.Context(), num)
		if err != nil {
			logger.Debug("model lookup miss", "num", num, "err", err)
			http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(model)
	}
}
