// Package semantic provides similarity search over the Qdrant vector index.
// One collection exists per content type; the index is populated by an
// external build job using the same embedding model queried here, and is
// treated as read-only.
package semantic

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/PartSenseAI/partsense-mvp/engine/domain"
)

// VectorStore is the sole owner of all Qdrant operations.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	prefix      string
}

// NewStore creates a VectorStore connected to Qdrant at the given gRPC
// address. Collections are named <prefix>_<content-type>.
func NewStore(addr string, prefix string) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		prefix:      prefix,
	}, nil
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	return v.conn.Close()
}

// Collection returns the collection name for a content type.
func (v *VectorStore) Collection(ct domain.ContentType) string {
	return v.prefix + "_" + string(ct)
}

// CheckCollections verifies that the collection for every content type
// exists. Called at startup so an index-version mismatch fails fast.
func (v *VectorStore) CheckCollections(ctx context.Context) error {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	have := make(map[string]bool, len(list.GetCollections()))
	for _, c := range list.GetCollections() {
		have[c.GetName()] = true
	}
	for ct := range domain.ValidContentTypes {
		if !have[v.Collection(ct)] {
			return fmt.Errorf("semantic: collection %s missing; index build incomplete", v.Collection(ct))
		}
	}
	return nil
}

// SearchCollection performs k-NN similarity search in one collection.
func (v *VectorStore) SearchCollection(ctx context.Context, ct domain.ContentType, embedding []float32, topK int) ([]Hit, error) {
	req := &pb.SearchPoints{
		CollectionName: v.Collection(ct),
		Vector:         embedding,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}

	resp, err := v.points.Search(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("semantic: search %s: %w", ct, domain.ErrRetrievalTimeout)
		}
		return nil, fmt.Errorf("semantic: search %s: %w", ct, err)
	}

	hits := make([]Hit, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		h := Hit{
			ID:          r.GetId().GetUuid(),
			Score:       r.GetScore(),
			ContentType: ct,
			Meta:        make(map[string]string),
		}
		for k, val := range r.GetPayload() {
			s := val.GetStringValue()
			switch k {
			case "content":
				h.Content = s
			case "entity_type":
				h.EntityType = domain.EntityType(s)
			case "entity_id":
				h.EntityID = s
			default:
				h.Meta[k] = s
			}
		}
		hits[i] = h
	}
	return hits, nil
}
